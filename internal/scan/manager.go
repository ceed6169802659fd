package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/model"
)

// Store persists scan sessions.
type Store interface {
	SaveScan(ctx context.Context, s *State) error
	// GetScan returns nil, nil when the session does not exist.
	GetScan(ctx context.Context, id string) (*State, error)
	ListScans(ctx context.Context, userID int64) ([]State, error)
	DeleteScan(ctx context.Context, id string) error
	// DeleteScansBefore removes sessions last updated before cutoff and
	// returns them.
	DeleteScansBefore(ctx context.Context, cutoff time.Time) ([]State, error)
}

// StartOptions configures a new scan session.
type StartOptions struct {
	UserID int64
	// CoinID selects attach mode for an existing coin.
	CoinID string
	// Side is the side to scan first, "obverse" or "reverse".
	Side string
	// PreferredCamera is the initial camera choice, or -1.
	PreferredCamera int
}

// Manager owns the scan sessions: it loads and stores state around each
// transition, runs analysis in the background and drives preview polling.
// Transitions of one session are serialized; network calls other than save
// run outside the session lock, and their responses are dropped when the
// session moved on meanwhile.
type Manager struct {
	backend Backend
	store   Store
	wizard  *Wizard
	hub     *capture.Hub
	base    context.Context
	now     func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]int
	wg       sync.WaitGroup
}

// NewManager creates a manager. Background analyses derive from base.
func NewManager(base context.Context, b Backend, store Store, wizard *Wizard, hub *capture.Hub) *Manager {
	return &Manager{
		backend:  b,
		store:    store,
		wizard:   wizard,
		hub:      hub,
		base:     base,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		inflight: make(map[string]int),
	}
}

func (m *Manager) lock(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.locks, id)
	delete(m.inflight, id)
	m.mu.Unlock()
}

func (m *Manager) load(ctx context.Context, id string) (*State, error) {
	s, err := m.store.GetScan(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading scan: %w", err)
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) save(ctx context.Context, s *State) error {
	s.UpdatedAt = m.now()
	if err := m.store.SaveScan(ctx, s); err != nil {
		return fmt.Errorf("saving scan: %w", err)
	}
	return nil
}

// update applies fn to the stored session and saves the result. The error
// from fn is returned along with the saved state.
func (m *Manager) update(ctx context.Context, id string, fn func(State) (State, error)) (*State, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, ferr := fn(*s)
	if errors.Is(ferr, ErrStale) || errors.Is(ferr, ErrNotEditable) {
		return s, ferr
	}
	if err := m.save(ctx, &next); err != nil {
		return nil, err
	}
	m.after(next)
	return &next, ferr
}

// after starts the side effects a new state calls for.
func (m *Manager) after(s State) {
	if s.Step != StepCapture {
		m.hub.Stop(s.ID)
	}
	if s.Step == StepAnalyze && s.Error == "" {
		m.startAnalysis(s)
	}
}

// Start creates a session, loads the camera list and opens the selected
// camera. Device errors do not fail the start; they are shown in the
// capture step.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (*State, error) {
	var existing *model.Coin
	if opts.CoinID != "" {
		if _, err := uuid.Parse(opts.CoinID); err != nil {
			return nil, fmt.Errorf("%w: invalid coin id %q", ErrNotFound, opts.CoinID)
		}
		coin, err := m.backend.GetCoin(ctx, opts.CoinID)
		if backend.IsNotFound(err) {
			return nil, fmt.Errorf("%w: coin %s", ErrNotFound, opts.CoinID)
		}
		if err != nil {
			return nil, fmt.Errorf("loading coin: %w", err)
		}
		existing = coin
	}

	s := New(uuid.NewString(), opts.UserID, existing, opts.Side, m.now())
	s = m.loadCameras(ctx, s, opts.PreferredCamera)

	if err := m.save(ctx, &s); err != nil {
		return nil, err
	}
	slog.Info("scan started", "scan", s.ID, "coin", s.ExistingCoinID, "camera", s.Camera)
	return &s, nil
}

func (m *Manager) loadCameras(ctx context.Context, s State, preferred int) State {
	devices, err := m.backend.Devices(ctx)
	if err != nil {
		slog.Warn("listing cameras failed", "scan", s.ID, "error", err)
		s.Error = Describe(err)
		return s
	}
	s.Error = ""
	s, changed := SetCameras(s, devices.Cameras, preferred)
	if changed && s.Camera >= 0 {
		s.Epoch++
		if err := m.backend.OpenCamera(ctx, s.Camera); err != nil {
			slog.Warn("opening camera failed", "scan", s.ID, "camera", s.Camera, "error", err)
		}
	}
	return s
}

// Get returns a session. A session left in analyze without a running
// analysis, e.g. after a restart, has its analysis restarted.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Step == StepAnalyze && s.Error == "" {
		m.startAnalysis(*s)
	}
	return s, nil
}

// List returns the open sessions of an operator.
func (m *Manager) List(ctx context.Context, userID int64) ([]State, error) {
	states, err := m.store.ListScans(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	return states, nil
}

// RefreshCameras reloads the device list and reapplies the selection rule.
func (m *Manager) RefreshCameras(ctx context.Context, id string) (*State, error) {
	return m.update(ctx, id, func(s State) (State, error) {
		if s.Step != StepCapture {
			return s, ErrNotEditable
		}
		s = m.loadCameras(ctx, s, -1)
		if s.Camera >= 0 {
			if _, ok := m.hub.Get(s.ID); ok {
				m.hub.Start(s.ID, s.Camera)
			}
		}
		return s, nil
	})
}

// SetCamera switches the camera. A capture in flight for the previous camera
// is ignored when it returns.
func (m *Manager) SetCamera(ctx context.Context, id string, camera int) (*State, error) {
	return m.update(ctx, id, func(s State) (State, error) {
		prev := s.Camera
		next, err := SelectCamera(s, camera)
		if err != nil {
			return Fail(s, err), err
		}
		if next.Camera != prev {
			if err := m.backend.OpenCamera(ctx, next.Camera); err != nil {
				slog.Warn("opening camera failed", "scan", id, "camera", next.Camera, "error", err)
			}
			if _, ok := m.hub.Get(id); ok {
				m.hub.Start(id, next.Camera)
			}
		}
		next.Error = ""
		return next, nil
	})
}

// Capture captures the current side. A rejected image is returned as a
// *capture.QualityError along with the state carrying the warning.
func (m *Manager) Capture(ctx context.Context, id string) (*State, error) {
	unlock := m.lock(id)
	s, err := m.load(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if s.Step != StepCapture {
		unlock()
		return s, ErrNotEditable
	}
	if s.Camera < 0 {
		unlock()
		return s, ErrNoCamera
	}
	epoch, camera, side := s.Epoch, s.Camera, s.CurrentSide
	unlock()

	img, capErr := m.backend.Capture(ctx, camera, side)

	return m.update(ctx, id, func(s State) (State, error) {
		if s.Epoch != epoch || s.Step != StepCapture || s.CurrentSide != side {
			slog.Info("dropping stale capture", "scan", id, "camera", camera)
			return s, ErrStale
		}
		if capErr != nil {
			return Fail(s, capErr), capErr
		}
		next, err := ApplyCapture(s, img)
		if err == nil {
			slog.Info("side captured", "scan", id, "file", img.FilePath, "next", next.Step)
		}
		return next, err
	})
}

// RetryAnalysis restarts a failed analysis.
func (m *Manager) RetryAnalysis(ctx context.Context, id string) (*State, error) {
	return m.update(ctx, id, RetryAnalysis)
}

// SkipAnalysis continues to manual entry after a failed analysis.
func (m *Manager) SkipAnalysis(ctx context.Context, id string) (*State, error) {
	return m.update(ctx, id, SkipAnalysis)
}

// EditDraft replaces the draft.
func (m *Manager) EditDraft(ctx context.Context, id string, d model.CoinDraft) (*State, error) {
	return m.update(ctx, id, func(s State) (State, error) {
		return EditDraft(s, d)
	})
}

// ScanOtherSide returns to capture for the missing side.
func (m *Manager) ScanOtherSide(ctx context.Context, id string) (*State, error) {
	return m.update(ctx, id, ScanOtherSide)
}

// Save persists the scan to the backend. The save runs to completion even
// if ctx is cancelled. On success the camera is released.
func (m *Manager) Save(ctx context.Context, id string) (*State, error) {
	unlock := m.lock(id)
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := SaveCheck(*s); err != nil {
		return s, err
	}

	runCtx := context.WithoutCancel(ctx)
	next, serr := m.wizard.Save(runCtx, *s)
	if err := m.save(runCtx, &next); err != nil {
		return nil, err
	}
	if serr != nil {
		slog.Error("saving scan failed", "scan", id, "error", serr)
		return &next, serr
	}

	slog.Info("scan complete", "scan", id, "coin", next.CoinID)
	m.release(runCtx, id)
	return &next, nil
}

// Cancel abandons a session. Late responses for it are dropped.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	unlock := m.lock(id)
	s, err := m.load(ctx, id)
	if err != nil {
		unlock()
		return err
	}
	if err := m.store.DeleteScan(ctx, id); err != nil {
		unlock()
		return fmt.Errorf("deleting scan: %w", err)
	}
	unlock()

	if s.Step != StepComplete {
		m.release(ctx, id)
	} else {
		m.hub.Stop(id)
	}
	m.forget(id)
	slog.Info("scan cancelled", "scan", id)
	return nil
}

func (m *Manager) release(ctx context.Context, id string) {
	m.hub.Stop(id)
	if err := m.backend.CloseCamera(ctx); err != nil {
		slog.Warn("closing camera failed", "scan", id, "error", err)
	}
}

// Preview returns the latest preview frame of a session in the capture step,
// starting the poller when needed.
func (m *Manager) Preview(ctx context.Context, id string) (*model.Frame, error) {
	if p, ok := m.hub.Get(id); ok {
		if _, running := p.Running(); running {
			return p.Latest()
		}
	}

	unlock := m.lock(id)
	s, err := m.load(ctx, id)
	unlock()
	if err != nil {
		return nil, err
	}
	if s.Step != StepCapture || s.Camera < 0 {
		return nil, capture.ErrPreviewUnavailable
	}
	return m.hub.Start(id, s.Camera).Latest()
}

// Expire deletes sessions idle for longer than ttl.
func (m *Manager) Expire(ctx context.Context, ttl time.Duration) (int, error) {
	expired, err := m.store.DeleteScansBefore(ctx, m.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("expiring scans: %w", err)
	}
	for _, s := range expired {
		// An abandoned session still holds its camera open.
		if s.Step != StepComplete && s.Camera >= 0 {
			m.release(ctx, s.ID)
		} else {
			m.hub.Stop(s.ID)
		}
		m.forget(s.ID)
		slog.Info("scan expired", "scan", s.ID, "step", s.Step)
	}
	return len(expired), nil
}

// Wait blocks until background analyses have finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) startAnalysis(s State) {
	req, ok := AnalysisRequest(s)
	if !ok {
		return
	}

	m.mu.Lock()
	if epoch, running := m.inflight[s.ID]; running && epoch == s.Epoch {
		m.mu.Unlock()
		return
	}
	m.inflight[s.ID] = s.Epoch
	m.mu.Unlock()

	id, epoch := s.ID, s.Epoch
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			if m.inflight[id] == epoch {
				delete(m.inflight, id)
			}
			m.mu.Unlock()
		}()

		slog.Info("analyzing", "scan", id, "image", req.ImagePath)
		resp, err := m.backend.Analyze(m.base, req)
		if m.base.Err() != nil {
			return
		}

		_, uerr := m.update(m.base, id, func(cur State) (State, error) {
			return ApplyAnalysis(cur, epoch, resp, err)
		})
		switch {
		case errors.Is(uerr, ErrStale), errors.Is(uerr, ErrNotFound):
			slog.Info("dropping stale analysis", "scan", id)
		case uerr != nil:
			slog.Warn("analysis failed", "scan", id, "error", uerr)
		default:
			slog.Info("analysis complete", "scan", id)
		}
	}()
}
