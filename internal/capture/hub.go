package capture

import (
	"context"
	"sync"
)

// Hub owns one preview poller per scan session.
type Hub struct {
	base context.Context
	src  FrameSource
	cfg  PollerConfig

	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewHub creates an empty hub. Pollers derive their context from base, so
// cancelling base stops all polling.
func NewHub(base context.Context, src FrameSource, cfg PollerConfig) *Hub {
	return &Hub{base: base, src: src, cfg: cfg, pollers: make(map[string]*Poller)}
}

// Start starts or retargets the poller of session id.
func (h *Hub) Start(id string, camera int) *Poller {
	h.mu.Lock()
	p, ok := h.pollers[id]
	if !ok {
		p = NewPoller(h.base, h.src, h.cfg)
		h.pollers[id] = p
	}
	h.mu.Unlock()

	p.Start(camera)
	return p
}

// Get returns the poller of session id, if any.
func (h *Hub) Get(id string) (*Poller, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pollers[id]
	return p, ok
}

// Stop disarms and forgets the poller of session id.
func (h *Hub) Stop(id string) {
	h.mu.Lock()
	p, ok := h.pollers[id]
	delete(h.pollers, id)
	h.mu.Unlock()

	if ok {
		p.Stop()
	}
}

// StopAll disarms every poller.
func (h *Hub) StopAll() {
	h.mu.Lock()
	pollers := h.pollers
	h.pollers = make(map[string]*Poller)
	h.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}

// Len returns the number of tracked pollers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pollers)
}
