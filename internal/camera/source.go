package camera

import (
	"context"
	"image"
	"strconv"
	"strings"
	"time"
)

// Backend hints for opening a source.
const (
	BackendAuto = "auto"
	BackendV4L2 = "v4l2"
	BackendRTSP = "rtsp"
	BackendHTTP = "http"
)

// Descriptor identifies a physical or network video source.
type Descriptor struct {
	URI     string `json:"uri" toml:"uri"`
	Backend string `json:"backend,omitempty" toml:"backend,omitempty"`
}

// ResolveBackend returns the backend to use, inferring it from the URI when the hint is empty or auto.
func (d Descriptor) ResolveBackend() string {
	if d.Backend != "" && d.Backend != BackendAuto {
		return d.Backend
	}
	uri := strings.ToLower(strings.TrimSpace(d.URI))
	switch {
	case strings.HasPrefix(uri, "rtsp://"), strings.HasPrefix(uri, "rtsps://"), strings.HasPrefix(uri, "onvif://"):
		return BackendRTSP
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return BackendHTTP
	default:
		return BackendV4L2
	}
}

// InputURL returns the URL or device path handed to the capture backend.
// Device indexes map to /dev/videoN. onvif:// sources are returned as is;
// the opener resolves them to the device's RTSP URI.
func (d Descriptor) InputURL() string {
	uri := strings.TrimSpace(d.URI)
	if idx, err := strconv.Atoi(uri); err == nil && idx >= 0 {
		return "/dev/video" + uri
	}
	return uri
}

// StreamResolver maps an onvif:// source to the stream URI the device advertises.
type StreamResolver interface {
	StreamURI(ctx context.Context, uri string) (string, error)
}

// Frame is one captured frame. Either Image (decoded pixels) or JPEG
// (source-encoded bytes) is set; both may be.
type Frame struct {
	Image      image.Image
	JPEG       []byte
	CapturedAt time.Time
}

// Device is an opened video source.
type Device interface {
	// Grab pulls the next frame from the source without decoding it.
	Grab(ctx context.Context) error
	// Retrieve decodes the most recently grabbed frame.
	Retrieve() (Frame, error)
	// Close releases the underlying handle.
	Close() error
}

// Opener opens devices for descriptors.
type Opener interface {
	Open(ctx context.Context, desc Descriptor) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, desc Descriptor) (Device, error)

// Open calls f(ctx, desc).
func (f OpenerFunc) Open(ctx context.Context, desc Descriptor) (Device, error) {
	return f(ctx, desc)
}

// State represents the capture loop state of a video source.
type State string

// Source states.
const (
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Stats holds counters for a video source.
type Stats struct {
	Opens             uint64    `json:"opens"`
	Errors            uint64    `json:"errors"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Frames            uint64    `json:"frames"`
	SkippedDecodes    uint64    `json:"skipped_decodes"`
	Reconnects        uint64    `json:"reconnects"`
	LastError         string    `json:"last_error,omitempty"`
	LastFrameAt       time.Time `json:"last_frame_at,omitzero"`
}
