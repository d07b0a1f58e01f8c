package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FrameCache holds the most recent frame for one camera and serves encoded
// bytes to any number of readers. Encoded output is cached by sequence id.
type FrameCache struct {
	mu         sync.RWMutex
	frame      *Frame
	seq        uint64
	updatedAt  time.Time
	updated    chan struct{} // closed and replaced on every Store
	encoded    []byte
	encodedSeq uint64

	lastRequest atomic.Int64 // unix nanos of the last GetEncoded/MarkRequested
	encoder     Encoder
	now         func() time.Time
}

// NewFrameCache creates an empty cache using the given encoder.
func NewFrameCache(encoder Encoder) *FrameCache {
	if encoder == nil {
		encoder = &JPEGEncoder{}
	}
	return &FrameCache{
		updated: make(chan struct{}),
		encoder: encoder,
		now:     time.Now,
	}
}

// Store replaces the current frame and bumps the sequence id.
// Only the owning source's worker calls Store.
func (c *FrameCache) Store(f Frame) {
	if f.CapturedAt.IsZero() {
		f.CapturedAt = c.now()
	}
	c.mu.Lock()
	c.frame = &f
	c.seq++
	c.updatedAt = f.CapturedAt
	close(c.updated)
	c.updated = make(chan struct{})
	c.mu.Unlock()
}

// GetEncoded returns JPEG bytes for the current frame and its sequence id.
// Returns ErrNoFrameYet if nothing has been stored.
func (c *FrameCache) GetEncoded() ([]byte, uint64, error) {
	c.MarkRequested()

	c.mu.RLock()
	frame, seq := c.frame, c.seq
	if frame != nil && c.encoded != nil && c.encodedSeq == seq {
		data := c.encoded
		c.mu.RUnlock()
		return data, seq, nil
	}
	c.mu.RUnlock()

	if frame == nil {
		return nil, seq, ErrNoFrameYet
	}

	// Encode outside the lock. Concurrent readers may encode the same id
	// twice; they all converge on bytes for that id.
	data, err := c.encoder.Encode(*frame)
	if err != nil {
		return nil, seq, err
	}

	c.mu.Lock()
	if seq > c.encodedSeq || c.encoded == nil {
		c.encoded = data
		c.encodedSeq = seq
	}
	c.mu.Unlock()

	return data, seq, nil
}

// Seq returns the current sequence id.
func (c *FrameCache) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// UpdatedAt returns when the current frame was captured.
func (c *FrameCache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Updated returns a channel closed on the next Store.
func (c *FrameCache) Updated() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// WaitNewer blocks until a frame newer than seq is stored or ctx is done.
func (c *FrameCache) WaitNewer(ctx context.Context, seq uint64) error {
	for {
		c.mu.RLock()
		cur, ch := c.seq, c.updated
		c.mu.RUnlock()
		if cur > seq {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// MarkRequested records that a consumer wants frames now.
func (c *FrameCache) MarkRequested() {
	c.lastRequest.Store(c.now().UnixNano())
}

// RequestedWithin reports whether a consumer asked for a frame within window of now.
func (c *FrameCache) RequestedWithin(now time.Time, window time.Duration) bool {
	last := c.lastRequest.Load()
	if last == 0 {
		return false
	}
	return now.Sub(time.Unix(0, last)) <= window
}

// Empty reports whether no frame is currently held.
func (c *FrameCache) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame == nil
}

// Clear drops the held frame. The sequence id is kept so it never goes backwards.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.frame = nil
	c.encoded = nil
	c.mu.Unlock()
}
