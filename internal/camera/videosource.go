package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SourceOptions tunes the capture and reconnect loop.
type SourceOptions struct {
	// ErrorBudget is the number of consecutive failed attempts after which the source fails.
	ErrorBudget int
	// OpenBackoff is the wait after a failed open.
	OpenBackoff time.Duration
	// ReadBackoff is the wait after a failed read.
	ReadBackoff time.Duration
	// MaxBackoff caps both backoffs.
	MaxBackoff time.Duration
	// IdleWindow skips decoding when no consumer asked for a frame within it. Zero always decodes.
	IdleWindow time.Duration
	// FrameInterval paces the loop for devices whose Grab does not block. Zero disables pacing.
	FrameInterval time.Duration
	// OnStateChange is called after every state transition.
	OnStateChange func(id string, oldState, newState State, err error)
	// OnFrame is called after a frame is stored.
	OnFrame func(id string)
}

// DefaultSourceOptions returns the standard loop tuning.
func DefaultSourceOptions() SourceOptions {
	return SourceOptions{
		ErrorBudget: 50,
		OpenBackoff: 5 * time.Second,
		ReadBackoff: 2 * time.Second,
		MaxBackoff:  5 * time.Second,
		IdleWindow:  10 * time.Second,
	}
}

func (o SourceOptions) withDefaults() SourceOptions {
	def := DefaultSourceOptions()
	if o.ErrorBudget <= 0 {
		o.ErrorBudget = def.ErrorBudget
	}
	if o.OpenBackoff <= 0 {
		o.OpenBackoff = def.OpenBackoff
	}
	if o.ReadBackoff <= 0 {
		o.ReadBackoff = def.ReadBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = def.MaxBackoff
	}
	return o
}

// VideoSource keeps exactly one capture worker alive for a camera and feeds its FrameCache.
type VideoSource struct {
	id     string
	desc   Descriptor
	opener Opener
	cache  *FrameCache
	opts   SourceOptions
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	stats Stats

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewVideoSource creates a source. Call Start to launch its worker.
func NewVideoSource(id string, desc Descriptor, opener Opener, cache *FrameCache, opts SourceOptions, logger *slog.Logger) *VideoSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &VideoSource{
		id:     id,
		desc:   desc,
		opener: opener,
		cache:  cache,
		opts:   opts.withDefaults(),
		logger: logger,
		state:  StateConnecting,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start launches the capture worker. Calling Start more than once is a no-op.
func (v *VideoSource) Start() {
	v.mu.Lock()
	if v.started {
		v.mu.Unlock()
		return
	}
	v.started = true
	v.mu.Unlock()

	go v.run()
}

// Stop cancels the worker, waits for it to exit and clears the cache.
// Safe to call from any state and more than once.
func (v *VideoSource) Stop() {
	v.stopOnce.Do(func() {
		v.cancel()

		v.mu.RLock()
		started := v.started
		v.mu.RUnlock()
		if started {
			<-v.done
		}

		v.cache.Clear()
		v.setState(StateStopped, nil)
		v.logger.Info("Video source stopped")
	})
}

// Done is closed when the worker has exited.
func (v *VideoSource) Done() <-chan struct{} {
	return v.done
}

// State returns the current loop state.
func (v *VideoSource) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Stats returns a snapshot of the source counters.
func (v *VideoSource) Stats() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}

// Descriptor returns the source descriptor.
func (v *VideoSource) Descriptor() Descriptor {
	return v.desc
}

func (v *VideoSource) setState(newState State, err error) {
	v.mu.Lock()
	oldState := v.state
	if oldState == newState || oldState == StateStopped {
		v.mu.Unlock()
		return
	}
	v.state = newState
	v.mu.Unlock()

	v.logger.Debug("Video source state changed", "from", oldState, "to", newState)
	if v.opts.OnStateChange != nil {
		v.opts.OnStateChange(v.id, oldState, newState, err)
	}
}

// run is the worker loop: Connecting -> Streaming -> Reconnecting -> Connecting.
func (v *VideoSource) run() {
	defer close(v.done)

	for {
		if v.ctx.Err() != nil {
			return
		}

		v.setState(StateConnecting, nil)
		v.mu.Lock()
		v.stats.Opens++
		v.mu.Unlock()

		dev, err := v.opener.Open(v.ctx, v.desc)
		if err != nil {
			if v.ctx.Err() != nil {
				return
			}
			openErr := NewCameraError(ErrCodeSourceUnavailable, "failed to open source", err)
			if !v.recordFailure(openErr, v.opts.OpenBackoff) {
				return
			}
			continue
		}

		v.logger.Info("Video source opened", "uri", v.desc.URI)
		v.setState(StateStreaming, nil)

		readErr := v.stream(dev)
		if closeErr := dev.Close(); closeErr != nil {
			v.logger.Debug("Failed to close device", "error", closeErr)
		}

		if v.ctx.Err() != nil {
			return
		}

		v.mu.Lock()
		v.stats.Reconnects++
		v.mu.Unlock()
		v.setState(StateReconnecting, readErr)

		if !v.recordFailure(NewCameraError(ErrCodeSourceUnavailable, "read failed", readErr), v.opts.ReadBackoff) {
			return
		}
	}
}

// stream pulls frames until a read fails or the source is stopped.
func (v *VideoSource) stream(dev Device) error {
	for {
		if v.ctx.Err() != nil {
			return nil
		}

		if err := dev.Grab(v.ctx); err != nil {
			return err
		}

		v.mu.Lock()
		v.stats.ConsecutiveErrors = 0
		v.mu.Unlock()

		if v.shouldSkipDecode() {
			v.mu.Lock()
			v.stats.SkippedDecodes++
			v.mu.Unlock()
		} else {
			frame, err := dev.Retrieve()
			if err != nil {
				return err
			}
			v.cache.Store(frame)

			v.mu.Lock()
			v.stats.Frames++
			v.stats.LastFrameAt = time.Now()
			v.mu.Unlock()

			if v.opts.OnFrame != nil {
				v.opts.OnFrame(v.id)
			}
		}

		if v.opts.FrameInterval > 0 {
			select {
			case <-v.ctx.Done():
				return nil
			case <-time.After(v.opts.FrameInterval):
			}
		}
	}
}

// shouldSkipDecode reports whether the decode step can be skipped because nobody is watching.
// A frame is always kept when the cache is empty so the first reader is never starved.
func (v *VideoSource) shouldSkipDecode() bool {
	if v.opts.IdleWindow <= 0 || v.cache.Empty() {
		return false
	}
	return !v.cache.RequestedWithin(time.Now(), v.opts.IdleWindow)
}

// recordFailure bumps the error counters and waits out the backoff.
// Returns false when the worker must exit, either because the error
// budget is exhausted or because the source was stopped.
func (v *VideoSource) recordFailure(err error, backoff time.Duration) bool {
	v.mu.Lock()
	v.stats.Errors++
	v.stats.ConsecutiveErrors++
	if err != nil {
		v.stats.LastError = err.Error()
	}
	consecutive := v.stats.ConsecutiveErrors
	v.mu.Unlock()

	if consecutive >= v.opts.ErrorBudget {
		v.logger.Error("Error budget exhausted, giving up", "errors", consecutive, "budget", v.opts.ErrorBudget, "error", err)
		v.setState(StateFailed, NewCameraError(ErrCodeSourceFailed, "error budget exhausted", err))
		return false
	}

	v.logger.Warn("Video source error, retrying", "error", err, "attempt", consecutive, "backoff", backoff)

	backoff = min(backoff, v.opts.MaxBackoff)
	select {
	case <-v.ctx.Done():
		return false
	case <-time.After(backoff):
		return true
	}
}
