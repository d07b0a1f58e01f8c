package camera

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Summary is the (id, name) pair returned by List.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RegistryOptions configures handles created by a Registry.
type RegistryOptions struct {
	Opener  Opener
	Source  SourceOptions
	Quality int
	Overlay bool
	// FreshTimeout bounds how long CurrentFrame waits for a fresh decode after idling.
	FreshTimeout time.Duration
	Logger       *slog.Logger
}

// Registry is the authoritative map from camera id to live Handle.
// It never reads configuration; callers drive it with Add and Remove.
type Registry struct {
	opts    RegistryOptions
	logger  *slog.Logger
	mu      sync.RWMutex
	handles map[string]*Handle
	// lifecycle serializes Add/Remove so a replace never races another replace for the same id.
	lifecycle sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.FreshTimeout == 0 {
		opts.FreshTimeout = 2 * time.Second
	}
	return &Registry{
		opts:    opts,
		logger:  logger,
		handles: make(map[string]*Handle),
	}
}

// Add creates and starts a handle for id. An existing handle for id is
// stopped and discarded first, so there is never more than one live worker per id.
func (r *Registry) Add(id string, desc Descriptor, name string) *Handle {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	old, exists := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if exists {
		r.logger.Info("Replacing camera", "camera_id", id)
		old.stop()
	}

	if name == "" {
		name = id
	}

	cache := NewFrameCache(&JPEGEncoder{
		Quality: r.opts.Quality,
		Overlay: r.opts.Overlay,
		Label:   name,
	})
	source := NewVideoSource(id, desc, r.opts.Opener, cache, r.opts.Source, r.logger.With("camera_id", id))
	handle := &Handle{
		ID:     id,
		Name:   name,
		source: source,
		cache:  cache,
		fresh:  r.opts.FreshTimeout,
	}

	r.mu.Lock()
	r.handles[id] = handle
	r.mu.Unlock()

	source.Start()
	r.logger.Info("Camera added", "camera_id", id, "name", name, "uri", desc.URI)
	return handle
}

// Remove stops and drops the handle for id. Returns false if id is unknown.
func (r *Registry) Remove(id string) bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	handle, exists := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()

	if !exists {
		return false
	}

	// Stop outside the map lock so readers are not blocked by a slow reconnect.
	handle.stop()
	r.logger.Info("Camera removed", "camera_id", id)
	return true
}

// Get returns the live handle for id.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// List returns the (id, name) pairs of all live cameras. Order is not significant.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.handles))
	for id, h := range r.handles {
		out = append(out, Summary{ID: id, Name: h.Name})
	}
	return out
}

// Infos returns detailed info for all live cameras.
func (r *Registry) Infos() []Info {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.Info())
	}
	return out
}

// IDs returns the ids of all live cameras.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// CurrentFrameBytes returns the latest JPEG for a camera.
func (r *Registry) CurrentFrameBytes(ctx context.Context, id string) ([]byte, error) {
	h, ok := r.Get(id)
	if !ok {
		return nil, ErrCameraNotFound
	}
	return h.CurrentFrame(ctx)
}

// Encoded returns the latest JPEG and its sequence id without waiting for a fresh frame.
func (r *Registry) Encoded(id string) ([]byte, uint64, error) {
	h, ok := r.Get(id)
	if !ok {
		return nil, 0, ErrCameraNotFound
	}
	return h.Encoded()
}

// StopAll stops every handle and empties the registry.
func (r *Registry) StopAll() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			h.stop()
		}(h)
	}
	wg.Wait()
}
