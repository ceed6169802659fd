package scan

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/model"
)

func editState(existing *model.Coin, caps Captures) State {
	s := New("s-1", 1, existing, "", time.Now())
	s.Step = StepEdit
	s.Captures = caps
	s.Draft = model.CoinDraft{Country: "USA", Denomination: "Quarter", Year: 1976, ConditionGrade: "Fine"}
	return s
}

func TestSaveNewCoin(t *testing.T) {
	fb := newFakeBackend()
	w := NewWizard(fb, 0, 0)

	s := editState(nil, Captures{Obverse: good("cap/o.jpg", ""), Reverse: good("cap/r.jpg", "")})
	s, err := w.Save(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, StepComplete, s.Step)
	assert.Equal(t, "coin-1", s.CoinID)
	assert.Equal(t, "/coins/coin-1", s.RedirectTo)
	assert.Equal(t, 2000*time.Millisecond, s.RedirectAfter)

	require.Len(t, fb.created, 1)
	assert.Equal(t, "USA", fb.created[0].Country)
	require.NotNil(t, fb.created[0].Year)
	assert.Equal(t, 1976, *fb.created[0].Year)

	ups := fb.sortedUploads()
	require.Len(t, ups, 2)
	assert.Equal(t, upload{CoinID: "coin-1", Side: model.SideObverse, Primary: true, Data: "img:cap/o.jpg"}, ups[0])
	assert.Equal(t, upload{CoinID: "coin-1", Side: model.SideReverse, Primary: false, Data: "img:cap/r.jpg"}, ups[1])

	calls := fb.analyzeCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.AnalyzeRequest{ImagePath: "cap/o.jpg", CoinID: "coin-1"}, calls[0])
}

func TestSaveNewCoinWithOneSideIssuesNothing(t *testing.T) {
	fb := newFakeBackend()
	w := NewWizard(fb, 0, 0)

	for _, caps := range []Captures{{}, {Obverse: good("o.jpg", "")}, {Reverse: good("r.jpg", "")}} {
		_, err := w.Save(context.Background(), editState(nil, caps))
		assert.ErrorIs(t, err, ErrMissingSide)
	}
	assert.Empty(t, fb.created)
	assert.Empty(t, fb.uploads)
	assert.Empty(t, fb.analyzed)
}

func TestSaveCreateFailureStaysInEdit(t *testing.T) {
	fb := newFakeBackend()
	fb.createErr = &backend.HTTPError{StatusCode: http.StatusUnprocessableEntity, Detail: "country is too long"}
	w := NewWizard(fb, 0, 0)

	s, err := w.Save(context.Background(), editState(nil, Captures{Obverse: good("o.jpg", ""), Reverse: good("r.jpg", "")}))
	require.Error(t, err)
	assert.Equal(t, StepEdit, s.Step)
	assert.Equal(t, "country is too long", s.Error)
	assert.Empty(t, s.CoinID)
	assert.Empty(t, fb.uploads)
}

func TestSaveResumesAfterUploadFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.uploadErr[model.SideReverse] = errors.New("connection reset")
	w := NewWizard(fb, 0, 0)

	s, err := w.Save(context.Background(), editState(nil, Captures{Obverse: good("o.jpg", ""), Reverse: good("r.jpg", "")}))
	require.Error(t, err)
	assert.Equal(t, StepEdit, s.Step)
	assert.Equal(t, "coin-1", s.CoinID)
	assert.NotEmpty(t, s.Error)
	assert.Empty(t, fb.analyzeCalls())

	fb.mu.Lock()
	delete(fb.uploadErr, model.SideReverse)
	fb.mu.Unlock()

	s, err = w.Save(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StepComplete, s.Step)
	assert.Len(t, fb.created, 1, "retry must not create a second coin")

	ups := fb.sortedUploads()
	require.Len(t, ups, 2, "each side uploaded exactly once")
	assert.Equal(t, model.SideObverse, ups[0].Side)
	assert.Equal(t, model.SideReverse, ups[1].Side)
}

func TestSaveAnalysisFailureSurfaced(t *testing.T) {
	fb := newFakeBackend()
	fb.analyze = func(req model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
		return &model.AnalyzeResponse{Success: false, Error: "quota exceeded"}, nil
	}
	w := NewWizard(fb, 0, 0)

	s, err := w.Save(context.Background(), editState(nil, Captures{Obverse: good("o.jpg", ""), Reverse: good("r.jpg", "")}))
	require.Error(t, err)
	assert.Equal(t, StepEdit, s.Step)
	assert.Equal(t, "quota exceeded", s.Error)
}

func TestAttachReverse(t *testing.T) {
	fb := newFakeBackend()
	w := NewWizard(fb, 0, 0)
	existing := &model.Coin{ID: "c-7", Images: []model.CoinImage{{FilePath: "coins/o.jpg", ImageType: "obverse"}}}

	s, err := w.Save(context.Background(), editState(existing, Captures{Reverse: good("cap/r.jpg", "")}))
	require.NoError(t, err)
	assert.Equal(t, StepComplete, s.Step)
	assert.Equal(t, "/coins/c-7", s.RedirectTo)
	assert.Equal(t, 1500*time.Millisecond, s.RedirectAfter)

	assert.Empty(t, fb.created)
	ups := fb.sortedUploads()
	require.Len(t, ups, 1)
	assert.Equal(t, upload{CoinID: "c-7", Side: model.SideReverse, Primary: false, Data: "img:cap/r.jpg"}, ups[0])
	assert.Empty(t, fb.analyzeCalls(), "reverse attach is not analyzed")
}

func TestAttachObverseAnalyzes(t *testing.T) {
	fb := newFakeBackend()
	w := NewWizard(fb, 0, 0)

	s, err := w.Save(context.Background(), editState(&model.Coin{ID: "c-7"}, Captures{Obverse: good("cap/o.jpg", "")}))
	require.NoError(t, err)
	assert.Equal(t, StepComplete, s.Step)

	ups := fb.sortedUploads()
	require.Len(t, ups, 1)
	assert.True(t, ups[0].Primary)

	calls := fb.analyzeCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, model.AnalyzeRequest{ImagePath: "cap/o.jpg", CoinID: "c-7"}, calls[0])
}

func TestAttachStoresEditedDetails(t *testing.T) {
	fb := newFakeBackend()
	w := NewWizard(fb, 0, 0)
	existing := &model.Coin{ID: "c-7", Country: "USA", Denomination: "Quarter", Images: []model.CoinImage{{FilePath: "coins/o.jpg", ImageType: "obverse"}}}
	fb.coins["c-7"] = existing

	s := editState(existing, Captures{Reverse: good("cap/r.jpg", "")})
	s, err := EditDraft(s, model.CoinDraft{Country: "Canada", Denomination: "Quarter", Year: 1976, Notes: "edited"})
	require.NoError(t, err)

	s, err = w.Save(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, StepComplete, s.Step)

	stored, err := fb.GetCoin(context.Background(), "c-7")
	require.NoError(t, err)
	assert.Equal(t, "Canada", stored.Country)
	assert.Equal(t, "edited", stored.Notes)
	require.Len(t, fb.updated["c-7"], 1)
	assert.Equal(t, 1976, *fb.updated["c-7"][0].Year)
	assert.Len(t, fb.sortedUploads(), 1)
}

func TestAttachUpdateFailureUploadsNothing(t *testing.T) {
	fb := newFakeBackend()
	fb.updateErr = &backend.HTTPError{StatusCode: http.StatusUnprocessableEntity, Detail: "year out of range"}
	w := NewWizard(fb, 0, 0)

	s, err := w.Save(context.Background(), editState(&model.Coin{ID: "c-7"}, Captures{Reverse: good("cap/r.jpg", "")}))
	require.Error(t, err)
	assert.Equal(t, StepEdit, s.Step)
	assert.NotEmpty(t, s.Error)
	assert.Empty(t, fb.sortedUploads())
	assert.Empty(t, fb.analyzeCalls())
}

func TestCustomRedirectDelays(t *testing.T) {
	fb := newFakeBackend()
	w := NewWizard(fb, time.Second, 3*time.Second)

	s, err := w.Save(context.Background(), editState(&model.Coin{ID: "c-1"}, Captures{Reverse: good("r.jpg", "")}))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, s.RedirectAfter)
}
