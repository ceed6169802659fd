package scan

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func good(path, label string) *model.CapturedImage {
	img := &model.CapturedImage{Success: true, FilePath: path, Quality: model.Quality{OK: boolPtr(true)}}
	if label != "" {
		img.Side = &model.SideDetection{Label: label}
	}
	return img
}

func bad(path string, q model.Quality) *model.CapturedImage {
	q.OK = boolPtr(false)
	return &model.CapturedImage{Success: true, FilePath: path, Quality: q}
}

func newState() State {
	return New("s-1", 1, nil, "", time.Unix(0, 0))
}

func TestNewDefaults(t *testing.T) {
	s := newState()
	assert.Equal(t, StepCapture, s.Step)
	assert.Equal(t, model.SideObverse, s.CurrentSide)
	assert.Equal(t, "Please scan the obverse side of the coin.", s.Prompt)
	assert.Equal(t, -1, s.Camera)
	assert.False(t, s.Attaching())

	s = New("s-2", 1, nil, "reverse", time.Now())
	assert.Equal(t, model.SideReverse, s.CurrentSide)
	assert.Equal(t, "Please scan the reverse side of the coin.", s.Prompt)

	s = New("s-3", 1, nil, "sideways", time.Now())
	assert.Equal(t, model.SideObverse, s.CurrentSide)
}

func TestNewForExistingCoin(t *testing.T) {
	coin := &model.Coin{
		ID:      "c-1",
		Country: "Austria",
		Notes:   "from grandfather",
		Images:  []model.CoinImage{{FilePath: "coins/o.jpg", ImageType: "obverse"}},
	}
	s := New("s-1", 1, coin, "reverse", time.Now())
	assert.True(t, s.Attaching())
	assert.Equal(t, "c-1", s.ExistingCoinID)
	assert.Equal(t, "coins/o.jpg", s.ExistingObverse)
	assert.Empty(t, s.ExistingReverse)
	assert.Equal(t, "Austria", s.Draft.Country)
	assert.True(t, s.HasSide(model.SideObverse))
	assert.False(t, s.HasSide(model.SideReverse))
}

func TestRejectedCaptureKeepsSlotsAndSide(t *testing.T) {
	for _, side := range []model.Side{model.SideObverse, model.SideReverse} {
		s := New("s", 1, nil, string(side), time.Now())
		next, err := ApplyCapture(s, bad("x.jpg", model.Quality{IsBlurry: true}))

		var qe *capture.QualityError
		require.True(t, errors.As(err, &qe))
		assert.Nil(t, next.Captures.Obverse)
		assert.Nil(t, next.Captures.Reverse)
		assert.Equal(t, side, next.CurrentSide)
		assert.Equal(t, StepCapture, next.Step)
		assert.Contains(t, next.QualityWarning, "Image looks blurry")
	}
}

func TestAcceptedCaptureFlipsSide(t *testing.T) {
	tests := []struct {
		requested model.Side
		label     string
		stored    model.Side
	}{
		{model.SideObverse, "obverse", model.SideObverse},
		{model.SideObverse, "reverse", model.SideReverse},
		{model.SideReverse, "", model.SideReverse},
		{model.SideReverse, "garbage", model.SideReverse},
	}

	for _, tt := range tests {
		s := New("s", 1, nil, string(tt.requested), time.Now())
		s.QualityWarning = "old warning"
		next, err := ApplyCapture(s, good("x.jpg", tt.label))
		require.NoError(t, err)
		assert.NotNil(t, next.Captures.Get(tt.stored))
		assert.Nil(t, next.Captures.Get(tt.stored.Opposite()))
		assert.Equal(t, tt.stored.Opposite(), next.CurrentSide)
		assert.Equal(t, capture.Prompt(tt.stored.Opposite()), next.Prompt)
		assert.Empty(t, next.QualityWarning)
	}
}

func TestObverseCaptureStartsAnalysis(t *testing.T) {
	s, err := ApplyCapture(newState(), good("captures/o.jpg", "obverse"))
	require.NoError(t, err)
	assert.Equal(t, StepAnalyze, s.Step)

	req, ok := AnalysisRequest(s)
	require.True(t, ok)
	assert.Equal(t, "captures/o.jpg", req.ImagePath)
	assert.Empty(t, req.CoinID)
}

func TestReverseFirstStaysInCapture(t *testing.T) {
	s, err := ApplyCapture(New("s", 1, nil, "reverse", time.Now()), good("r.jpg", "reverse"))
	require.NoError(t, err)
	assert.Equal(t, StepCapture, s.Step)
	assert.Equal(t, model.SideObverse, s.CurrentSide)

	s, err = ApplyCapture(s, good("o.jpg", "obverse"))
	require.NoError(t, err)
	assert.Equal(t, StepAnalyze, s.Step)
	assert.Equal(t, "o.jpg", s.AnalysisImage)
}

func TestExistingObverseIsAnalyzedAfterCapture(t *testing.T) {
	coin := &model.Coin{ID: "c-1", Images: []model.CoinImage{{FilePath: "coins/o.jpg", ImageType: "obverse"}}}
	s := New("s", 1, coin, "reverse", time.Now())

	s, err := ApplyCapture(s, good("r.jpg", "reverse"))
	require.NoError(t, err)
	assert.Equal(t, StepAnalyze, s.Step)
	assert.Equal(t, "coins/o.jpg", s.AnalysisImage)
}

func TestAttachWithoutObverseGoesToEdit(t *testing.T) {
	s := New("s", 1, &model.Coin{ID: "c-1"}, "reverse", time.Now())
	s, err := ApplyCapture(s, good("r.jpg", "reverse"))
	require.NoError(t, err)
	assert.Equal(t, StepEdit, s.Step)
	assert.NoError(t, SaveCheck(s))
}

func TestAnalysisPrefill(t *testing.T) {
	s, _ := ApplyCapture(newState(), good("o.jpg", "obverse"))
	resp := &model.AnalyzeResponse{
		Success: true,
		Analysis: &model.AnalysisResult{
			Identification: model.Identification{Country: "USA", Denomination: "Quarter", Year: 1976},
			Condition:      model.Condition{Grade: "Fine"},
		},
	}

	s, err := ApplyAnalysis(s, s.Epoch, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, StepEdit, s.Step)
	assert.Equal(t, model.CoinDraft{
		Country:        "USA",
		Denomination:   "Quarter",
		Year:           1976,
		MintMark:       "",
		Composition:    "",
		ConditionGrade: "Fine",
	}, s.Draft)
}

func TestAnalysisPrefillFromJSON(t *testing.T) {
	var resp model.AnalyzeResponse
	body := `{"success": true, "analysis": {"identification": {"country": "USA", "denomination": "Quarter", "year": 1976}, "condition": {"grade": "Fine"}}, "valuation": {"estimated_value_low": 1}, "valuation_text": "cheap"}`
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	s, _ := ApplyCapture(newState(), good("o.jpg", "obverse"))
	s, err := ApplyAnalysis(s, s.Epoch, &resp, nil)
	require.NoError(t, err)
	assert.Equal(t, 1976, s.Draft.Year)
	assert.Equal(t, "cheap", s.ValuationText)
	require.NotNil(t, s.Valuation)
}

func TestAnalysisFailureStaysInAnalyze(t *testing.T) {
	s, _ := ApplyCapture(newState(), good("o.jpg", "obverse"))

	next, err := ApplyAnalysis(s, s.Epoch, &model.AnalyzeResponse{Success: false, Error: "model offline"}, nil)
	require.Error(t, err)
	assert.Equal(t, StepAnalyze, next.Step)
	assert.Equal(t, "model offline", next.Error)

	next, err = ApplyAnalysis(s, s.Epoch, nil, errors.New("dial tcp: refused"))
	require.Error(t, err)
	assert.Equal(t, StepAnalyze, next.Step)
	assert.Equal(t, "Request failed. Check the backend connection.", next.Error)

	retried, err := RetryAnalysis(next)
	require.NoError(t, err)
	assert.Empty(t, retried.Error)
	assert.Equal(t, next.Epoch+1, retried.Epoch)
	_, ok := AnalysisRequest(retried)
	assert.True(t, ok)

	skipped, err := SkipAnalysis(next)
	require.NoError(t, err)
	assert.Equal(t, StepEdit, skipped.Step)
}

func TestStaleAnalysisIgnored(t *testing.T) {
	s, _ := ApplyCapture(newState(), good("o.jpg", "obverse"))
	epoch := s.Epoch
	s.Epoch++

	resp := &model.AnalyzeResponse{Success: true, Analysis: &model.AnalysisResult{}}
	next, err := ApplyAnalysis(s, epoch, resp, nil)
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, StepAnalyze, next.Step)
	assert.Nil(t, next.Analysis)
}

func TestNewCoinSaveNeedsBothSides(t *testing.T) {
	s := newState()
	s.Step = StepEdit
	assert.ErrorIs(t, SaveCheck(s), ErrMissingSide)
	side, missing := MissingSide(s)
	assert.True(t, missing)
	assert.Equal(t, model.SideObverse, side)

	s.Captures.Obverse = good("o.jpg", "")
	assert.ErrorIs(t, SaveCheck(s), ErrMissingSide)
	assert.False(t, CanSave(s))
	side, _ = MissingSide(s)
	assert.Equal(t, model.SideReverse, side)

	s.Captures.Reverse = good("r.jpg", "")
	assert.NoError(t, SaveCheck(s))
	assert.True(t, CanSave(s))
}

func TestAttachSaveNeedsOneSide(t *testing.T) {
	s := New("s", 1, &model.Coin{ID: "c-1"}, "", time.Now())
	s.Step = StepEdit
	assert.ErrorIs(t, SaveCheck(s), ErrMissingSide)

	s.Captures.Reverse = good("r.jpg", "")
	assert.NoError(t, SaveCheck(s))

	s.Captures = Captures{Obverse: good("o.jpg", "")}
	assert.NoError(t, SaveCheck(s))
	_, missing := MissingSide(s)
	assert.False(t, missing)
}

func TestSaveCheckOutsideEdit(t *testing.T) {
	s := newState()
	s.Captures = Captures{Obverse: good("o.jpg", ""), Reverse: good("r.jpg", "")}
	assert.ErrorIs(t, SaveCheck(s), ErrNotEditable)
}

func TestScanOtherSideKeepsCaptures(t *testing.T) {
	s := newState()
	s.Step = StepEdit
	s.Captures.Obverse = good("o.jpg", "")
	s.Analysis = &model.AnalysisResult{}

	next, err := ScanOtherSide(s)
	require.NoError(t, err)
	assert.Equal(t, StepCapture, next.Step)
	assert.Equal(t, model.SideReverse, next.CurrentSide)
	assert.NotNil(t, next.Captures.Obverse)

	next, err = ApplyCapture(next, good("r.jpg", "reverse"))
	require.NoError(t, err)
	assert.Equal(t, StepEdit, next.Step, "analysis already present")
	assert.NoError(t, SaveCheck(next))
}

func TestScanOtherSideNotFromCapture(t *testing.T) {
	_, err := ScanOtherSide(newState())
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestEditDraft(t *testing.T) {
	_, err := EditDraft(newState(), model.CoinDraft{Country: "x"})
	assert.ErrorIs(t, err, ErrNotEditable)

	s := newState()
	s.Step = StepEdit
	s, err = EditDraft(s, model.CoinDraft{Country: "Peru", Notes: "holed"})
	require.NoError(t, err)
	assert.Equal(t, "Peru", s.Draft.Country)
}

func TestCameraSelection(t *testing.T) {
	cams := []model.Camera{{Index: 0, Available: boolPtr(false)}, {Index: 1}, {Index: 2}}

	s, changed := SetCameras(newState(), cams, -1)
	assert.True(t, changed)
	assert.Equal(t, 1, s.Camera)

	s, changed = SetCameras(newState(), cams, 2)
	assert.True(t, changed)
	assert.Equal(t, 2, s.Camera)

	epoch := s.Epoch
	s, err := SelectCamera(s, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Camera)
	assert.Equal(t, epoch+1, s.Epoch)

	_, err = SelectCamera(s, 0)
	assert.Error(t, err)
	_, err = SelectCamera(s, 7)
	assert.Error(t, err)

	s, changed = SetCameras(s, nil, -1)
	assert.True(t, changed)
	assert.Equal(t, -1, s.Camera)
}

func TestComplete(t *testing.T) {
	s := Complete(newState(), "c-9", 2*time.Second)
	assert.Equal(t, StepComplete, s.Step)
	assert.Equal(t, "/coins/c-9", s.RedirectTo)
	assert.Equal(t, 2*time.Second, s.RedirectAfter)
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	s, _ := ApplyCapture(newState(), good("o.jpg", "obverse"))
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Step, back.Step)
	assert.Equal(t, s.AnalysisImage, back.AnalysisImage)
	assert.Equal(t, "o.jpg", back.Captures.Obverse.FilePath)
}

func TestStepIndex(t *testing.T) {
	assert.Equal(t, 0, StepCapture.Index())
	assert.Equal(t, 3, StepComplete.Index())
	assert.Equal(t, -1, Step("bogus").Index())
}
