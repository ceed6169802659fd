// Package scan implements the scan wizard: capture, analyze, edit, complete.
//
// The wizard state is a plain serializable value. Transition functions take a
// State and return the next one; Wizard and Manager add the backend calls and
// session persistence around them.
package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/model"
)

// Step is a wizard step.
type Step string

// Wizard steps, in order.
const (
	StepCapture  Step = "capture"
	StepAnalyze  Step = "analyze"
	StepEdit     Step = "edit"
	StepComplete Step = "complete"
)

// Steps lists the steps in display order.
var Steps = []Step{StepCapture, StepAnalyze, StepEdit, StepComplete}

// Index returns the position of the step in Steps.
func (s Step) Index() int {
	for i, st := range Steps {
		if st == s {
			return i
		}
	}
	return -1
}

var (
	// ErrMissingSide is returned when saving without the required captures.
	ErrMissingSide = errors.New("missing coin side")
	// ErrNotEditable is returned for a transition not allowed in the current step.
	ErrNotEditable = errors.New("scan cannot do that in its current step")
	// ErrNotFound is returned for unknown scan sessions or coins.
	ErrNotFound = errors.New("scan not found")
	// ErrStale is returned when a response arrives for an abandoned action.
	ErrStale = errors.New("stale response")
	// ErrNoCamera is returned when capturing without a selected camera.
	ErrNoCamera = errors.New("no camera selected")
)

// Captures is the capture pair. A nil slot has not been captured.
type Captures struct {
	Obverse *model.CapturedImage `json:"obverse,omitempty"`
	Reverse *model.CapturedImage `json:"reverse,omitempty"`
}

// Get returns the capture of side.
func (c Captures) Get(side model.Side) *model.CapturedImage {
	if side == model.SideObverse {
		return c.Obverse
	}
	if side == model.SideReverse {
		return c.Reverse
	}
	return nil
}

// Set stores img under side.
func (c *Captures) Set(side model.Side, img *model.CapturedImage) {
	switch side {
	case model.SideObverse:
		c.Obverse = img
	case model.SideReverse:
		c.Reverse = img
	}
}

// Count returns how many sides are captured.
func (c Captures) Count() int {
	n := 0
	if c.Obverse != nil {
		n++
	}
	if c.Reverse != nil {
		n++
	}
	return n
}

// State is the complete wizard state of one scan session.
type State struct {
	ID     string `json:"id"`
	UserID int64  `json:"user_id"`
	Step   Step   `json:"step"`

	Cameras []model.Camera `json:"cameras"`
	// Camera is the selected camera index, or -1.
	Camera int `json:"camera"`

	CurrentSide    model.Side `json:"current_side"`
	Prompt         string     `json:"prompt"`
	QualityWarning string     `json:"quality_warning,omitempty"`
	Captures       Captures   `json:"captures"`

	// ExistingCoinID is set when attaching sides to a stored coin.
	ExistingCoinID  string `json:"existing_coin_id,omitempty"`
	ExistingObverse string `json:"existing_obverse,omitempty"`
	ExistingReverse string `json:"existing_reverse,omitempty"`

	Draft         model.CoinDraft       `json:"draft"`
	Analysis      *model.AnalysisResult `json:"analysis,omitempty"`
	AnalysisImage string                `json:"analysis_image,omitempty"`
	Valuation     *model.Valuation      `json:"valuation,omitempty"`
	ValuationText string                `json:"valuation_text,omitempty"`

	// CoinID is the coin created or updated by save. Uploaded lists sides
	// already stored, so a retried save resumes instead of starting over.
	CoinID   string       `json:"coin_id,omitempty"`
	Uploaded []model.Side `json:"uploaded,omitempty"`

	RedirectTo    string        `json:"redirect_to,omitempty"`
	RedirectAfter time.Duration `json:"redirect_after,omitempty"`

	Error string `json:"error,omitempty"`
	// Epoch changes whenever in-flight work is abandoned.
	Epoch int `json:"epoch"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attaching reports whether the scan adds sides to an existing coin.
func (s State) Attaching() bool {
	return s.ExistingCoinID != ""
}

// HasSide reports whether side is captured or already stored on the coin.
func (s State) HasSide(side model.Side) bool {
	if s.Captures.Get(side) != nil {
		return true
	}
	if side == model.SideObverse {
		return s.ExistingObverse != ""
	}
	return s.ExistingReverse != ""
}

// ObversePath returns the obverse image to analyze: the captured one, else
// the one stored on the existing coin.
func (s State) ObversePath() string {
	if s.Captures.Obverse != nil {
		return s.Captures.Obverse.FilePath
	}
	return s.ExistingObverse
}

// IsUploaded reports whether side was already stored by an earlier save.
func (s State) IsUploaded(side model.Side) bool {
	for _, u := range s.Uploaded {
		if u == side {
			return true
		}
	}
	return false
}

// New starts a wizard. existing is the coin being completed, or nil for a new
// coin. requested preselects the side to scan when it names a valid side.
func New(id string, userID int64, existing *model.Coin, requested string, now time.Time) State {
	side, ok := model.ParseSide(requested)
	if !ok {
		side = model.SideObverse
	}
	s := State{
		ID:          id,
		UserID:      userID,
		Step:        StepCapture,
		Camera:      -1,
		CurrentSide: side,
		Prompt:      capture.Prompt(side),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		s.ExistingCoinID = existing.ID
		s.Draft = model.DraftOf(existing)
		if img := existing.ImageOf(model.SideObverse); img != nil {
			s.ExistingObverse = img.FilePath
		}
		if img := existing.ImageOf(model.SideReverse); img != nil {
			s.ExistingReverse = img.FilePath
		}
	}
	return s
}

// SetCameras records the device list and applies the camera selection rule
// starting from preferred (-1 for none). It reports whether the selection
// changed.
func SetCameras(s State, cameras []model.Camera, preferred int) (State, bool) {
	s.Cameras = cameras
	current := s.Camera
	if current < 0 {
		current = preferred
	}
	idx, ok := capture.SelectCamera(cameras, current)
	if !ok {
		changed := s.Camera != -1
		s.Camera = -1
		return s, changed
	}
	changed := idx != s.Camera
	s.Camera = idx
	return s, changed
}

// SelectCamera switches to camera. Any capture in flight is abandoned.
func SelectCamera(s State, camera int) (State, error) {
	if s.Step != StepCapture {
		return s, ErrNotEditable
	}
	found := false
	for _, c := range s.Cameras {
		if c.Index == camera {
			if !c.IsAvailable() {
				return s, fmt.Errorf("camera %d is unavailable", camera)
			}
			found = true
		}
	}
	if !found {
		return s, fmt.Errorf("camera %d not found", camera)
	}
	if s.Camera != camera {
		s.Camera = camera
		s.Epoch++
	}
	return s, nil
}

// ApplyCapture applies a capture response taken for s.CurrentSide. A rejected
// image leaves the captures and the current side unchanged and returns a
// *capture.QualityError.
func ApplyCapture(s State, img *model.CapturedImage) (State, error) {
	if s.Step != StepCapture {
		return s, ErrNotEditable
	}
	side, err := capture.Accept(img, s.CurrentSide)
	if err != nil {
		var qe *capture.QualityError
		if errors.As(err, &qe) {
			s.QualityWarning = qe.Warning()
		}
		return s, err
	}

	s.QualityWarning = ""
	s.Error = ""
	s.Captures.Set(side, img)
	s.CurrentSide = side.Opposite()
	s.Prompt = capture.Prompt(s.CurrentSide)
	return Advance(s), nil
}

// Advance moves the wizard forward after a capture. With no analysis yet and
// an obverse image available it starts analysis. With an analysis it goes to
// edit, as does an attach scan with a captured side. Otherwise it stays in
// capture.
func Advance(s State) State {
	switch {
	case s.Analysis == nil && s.ObversePath() != "":
		s.Step = StepAnalyze
		s.AnalysisImage = s.ObversePath()
		s.Error = ""
	case s.Analysis != nil:
		s.Step = StepEdit
	case s.Attaching() && s.Captures.Count() > 0:
		s.Step = StepEdit
	default:
		s.Step = StepCapture
	}
	return s
}

// AnalysisRequest returns the analysis call for the analyze step.
func AnalysisRequest(s State) (model.AnalyzeRequest, bool) {
	if s.Step != StepAnalyze || s.AnalysisImage == "" {
		return model.AnalyzeRequest{}, false
	}
	return model.AnalyzeRequest{ImagePath: s.AnalysisImage}, true
}

// ApplyAnalysis applies the result of the analysis started at epoch. On
// failure the wizard stays in analyze with the error set. Notes already in
// the draft are kept; every other field comes from the analysis.
func ApplyAnalysis(s State, epoch int, resp *model.AnalyzeResponse, callErr error) (State, error) {
	if epoch != s.Epoch || s.Step != StepAnalyze {
		return s, ErrStale
	}
	if callErr != nil {
		s.Error = Describe(callErr)
		return s, callErr
	}
	if resp == nil || !resp.Success || resp.Analysis == nil {
		ae := &AnalysisError{}
		if resp != nil {
			ae.Message = resp.Error
		}
		s.Error = ae.Error()
		return s, ae
	}

	s.Analysis = resp.Analysis
	s.Valuation = resp.Valuation
	s.ValuationText = resp.ValuationText
	s.Draft = Prefill(resp.Analysis, s.Draft.Notes)
	s.AnalysisImage = ""
	s.Error = ""
	s.Step = StepEdit
	return s, nil
}

// Prefill builds a draft from an analysis. Missing fields are empty.
func Prefill(a *model.AnalysisResult, notes string) model.CoinDraft {
	if a == nil {
		return model.CoinDraft{Notes: notes}
	}
	return model.CoinDraft{
		Country:        a.Identification.Country,
		Denomination:   a.Identification.Denomination,
		Year:           int(a.Identification.Year),
		MintMark:       a.Identification.MintMark,
		Composition:    a.Identification.Composition,
		ConditionGrade: a.Condition.Grade,
		Notes:          notes,
	}
}

// SkipAnalysis moves a failed analysis on to manual entry.
func SkipAnalysis(s State) (State, error) {
	if s.Step != StepAnalyze || s.Error == "" {
		return s, ErrNotEditable
	}
	s.Epoch++
	s.AnalysisImage = ""
	s.Error = ""
	s.Step = StepEdit
	return s, nil
}

// RetryAnalysis restarts a failed analysis.
func RetryAnalysis(s State) (State, error) {
	if s.Step != StepAnalyze || s.Error == "" {
		return s, ErrNotEditable
	}
	s.Epoch++
	s.Error = ""
	if s.AnalysisImage == "" {
		s.AnalysisImage = s.ObversePath()
	}
	return s, nil
}

// ScanOtherSide returns to capture for the side not yet captured, keeping
// every capture.
func ScanOtherSide(s State) (State, error) {
	if s.Step != StepEdit && !(s.Step == StepAnalyze && s.Error != "") {
		return s, ErrNotEditable
	}
	if s.Step == StepAnalyze {
		s.Epoch++
		s.AnalysisImage = ""
	}
	next := model.SideObverse
	if s.Captures.Obverse != nil {
		next = model.SideReverse
	}
	s.CurrentSide = next
	s.Prompt = capture.Prompt(next)
	s.QualityWarning = ""
	s.Error = ""
	s.Step = StepCapture
	return s, nil
}

// EditDraft replaces the draft.
func EditDraft(s State, d model.CoinDraft) (State, error) {
	if s.Step != StepEdit {
		return s, ErrNotEditable
	}
	s.Draft = d
	return s, nil
}

// MissingSide returns the side a new coin still needs before it can be saved.
func MissingSide(s State) (model.Side, bool) {
	if s.Attaching() {
		return "", false
	}
	if s.Captures.Obverse == nil {
		return model.SideObverse, true
	}
	if s.Captures.Reverse == nil {
		return model.SideReverse, true
	}
	return "", false
}

// SaveCheck reports whether save is allowed, without touching the backend.
// A new coin needs both sides captured; an attach needs at least one.
func SaveCheck(s State) error {
	if s.Step != StepEdit {
		return ErrNotEditable
	}
	if s.Attaching() {
		if s.Captures.Count() == 0 {
			return fmt.Errorf("%w: capture a side to attach", ErrMissingSide)
		}
		return nil
	}
	if side, missing := MissingSide(s); missing {
		return fmt.Errorf("%w: please capture the %s side before saving", ErrMissingSide, side.Label())
	}
	return nil
}

// CanSave reports whether SaveCheck passes.
func CanSave(s State) bool {
	return SaveCheck(s) == nil
}

// Complete finishes the wizard and schedules navigation to the coin.
func Complete(s State, coinID string, after time.Duration) State {
	s.Step = StepComplete
	s.CoinID = coinID
	s.Error = ""
	s.RedirectTo = "/coins/" + coinID
	s.RedirectAfter = after
	return s
}

// Fail records err on the current step.
func Fail(s State, err error) State {
	s.Error = Describe(err)
	return s
}
