package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/nomisma/internal/model"
)

// Defaults for preview polling.
const (
	DefaultInterval    = 750 * time.Millisecond
	DefaultIdleTimeout = 30 * time.Second
)

// ErrPreviewUnavailable is returned when no fresh preview frame exists.
var ErrPreviewUnavailable = errors.New("preview unavailable")

// FrameSource fetches single preview frames. token must change between calls.
type FrameSource interface {
	Preview(ctx context.Context, camera int, token int64) (*model.Frame, error)
}

// PollerConfig configures preview polling.
type PollerConfig struct {
	Interval time.Duration
	// IdleTimeout stops polling when no viewer has asked for a frame for
	// this long.
	IdleTimeout time.Duration
	// Transform is applied to each fetched frame, e.g. to downscale it.
	Transform func(*model.Frame) (*model.Frame, error)
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}

// Poller refreshes the preview of one camera at a fixed interval. Each
// Start begins a new generation; frames fetched for an older generation are
// discarded.
type Poller struct {
	src  FrameSource
	cfg  PollerConfig
	base context.Context
	now  func() time.Time

	mu       sync.Mutex
	gen      uint64
	camera   int
	running  bool
	cancel   context.CancelFunc
	frame    *model.Frame
	err      error
	lastSeen time.Time
	done     chan struct{}
}

// NewPoller creates a stopped poller. Polling goroutines derive from base.
func NewPoller(base context.Context, src FrameSource, cfg PollerConfig) *Poller {
	return &Poller{src: src, cfg: cfg.withDefaults(), base: base, now: time.Now, camera: -1}
}

// Start begins polling camera. Starting the camera already being polled only
// marks the viewer as present.
func (p *Poller) Start(camera int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSeen = p.now()
	if p.running && p.camera == camera {
		return
	}
	p.stopLocked()

	ctx, cancel := context.WithCancel(p.base)
	p.gen++
	p.camera = camera
	p.running = true
	p.cancel = cancel
	p.frame = nil
	p.err = nil
	p.done = make(chan struct{})
	go p.loop(ctx, p.gen, camera, p.done)
}

// Stop disarms polling. It is safe to call on a stopped poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	done := p.done
	p.stopLocked()
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.running {
		p.gen++
	}
	p.running = false
	p.frame = nil
	p.err = nil
}

// Running reports whether the poller is active and for which camera.
func (p *Poller) Running() (camera int, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.camera, p.running
}

// Latest returns the most recent frame and marks the viewer as present.
func (p *Poller) Latest() (*model.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSeen = p.now()
	if !p.running {
		return nil, ErrPreviewUnavailable
	}
	if p.err != nil || p.frame == nil {
		return nil, ErrPreviewUnavailable
	}
	return p.frame, nil
}

func (p *Poller) loop(ctx context.Context, gen uint64, camera int, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if !p.poll(ctx, gen, camera) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll fetches one frame and reports whether polling should continue.
func (p *Poller) poll(ctx context.Context, gen uint64, camera int) bool {
	fetchCtx, cancel := context.WithTimeout(ctx, 4*p.cfg.Interval)
	frame, err := p.src.Preview(fetchCtx, camera, p.now().UnixMilli())
	cancel()
	if err == nil && p.cfg.Transform != nil {
		frame, err = p.cfg.Transform(frame)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen || ctx.Err() != nil {
		return false
	}
	if err != nil {
		if p.err == nil {
			slog.Warn("preview unavailable", "camera", camera, "error", err)
		}
		p.err = err
	} else {
		p.frame = frame
		p.err = nil
	}

	if p.now().Sub(p.lastSeen) > p.cfg.IdleTimeout {
		slog.Info("preview idle, stopping", "camera", camera)
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.running = false
		p.gen++
		p.frame = nil
		p.err = nil
		return false
	}
	return true
}
