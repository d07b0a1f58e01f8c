package camera

import (
	"context"
	"time"
)

// Handle pairs a VideoSource and its FrameCache under one camera id.
type Handle struct {
	ID     string
	Name   string
	source *VideoSource
	cache  *FrameCache
	fresh  time.Duration
}

// Info describes a handle for listings and the API.
type Info struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Descriptor Descriptor `json:"source"`
	State      State      `json:"state"`
	Seq        uint64     `json:"seq"`
	UpdatedAt  time.Time  `json:"updated_at,omitzero"`
	Stats      Stats      `json:"stats"`
}

// CurrentFrame returns JPEG bytes for the latest frame.
// When the source has been idle it asks for a fresh decode and waits briefly for it.
func (h *Handle) CurrentFrame(ctx context.Context) ([]byte, error) {
	if h.fresh > 0 && h.isStale() {
		seq := h.cache.Seq()
		h.cache.MarkRequested()
		waitCtx, cancel := context.WithTimeout(ctx, h.fresh)
		_ = h.cache.WaitNewer(waitCtx, seq)
		cancel()
	}
	data, _, err := h.cache.GetEncoded()
	return data, err
}

// Encoded returns the latest JPEG bytes and their sequence id without waiting.
func (h *Handle) Encoded() ([]byte, uint64, error) {
	return h.cache.GetEncoded()
}

// isStale reports whether the cached frame predates the idle window and the source is still streaming.
func (h *Handle) isStale() bool {
	if h.source.State() != StateStreaming {
		return false
	}
	window := h.source.opts.IdleWindow
	if window <= 0 {
		return false
	}
	updated := h.cache.UpdatedAt()
	return !updated.IsZero() && time.Since(updated) > window
}

// State returns the source state.
func (h *Handle) State() State {
	return h.source.State()
}

// Info returns a description of the handle.
func (h *Handle) Info() Info {
	return Info{
		ID:         h.ID,
		Name:       h.Name,
		Descriptor: h.source.Descriptor(),
		State:      h.source.State(),
		Seq:        h.cache.Seq(),
		UpdatedAt:  h.cache.UpdatedAt(),
		Stats:      h.source.Stats(),
	}
}

// Done is closed when the handle's worker has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.source.Done()
}

func (h *Handle) stop() {
	h.source.Stop()
}
