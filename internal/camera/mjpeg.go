package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"time"
)

// MJPEGBoundary is the multipart boundary used by live streams.
const MJPEGBoundary = "frame"

// FrameSource serves the latest encoded frame for a camera id.
type FrameSource interface {
	Encoded(id string) ([]byte, uint64, error)
}

// StreamOptions controls live frame streaming.
type StreamOptions struct {
	// PollInterval is how often the cache is checked for a new frame.
	PollInterval time.Duration
	// MaxEmpty is the number of consecutive polls without a new frame before the stream ends.
	MaxEmpty int
}

// DefaultStreamOptions polls at 10 fps and gives up after ~30s without a new frame.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		PollInterval: 100 * time.Millisecond,
		MaxEmpty:     300,
	}
}

// ErrStreamIdle is returned when a stream ends because no new frames arrived.
var ErrStreamIdle = errors.New("no frames within stream idle budget")

// StreamFrames calls emit for every new frame of camera id until ctx is done,
// emit fails, or MaxEmpty consecutive polls produce nothing new. The camera is
// looked up on every poll, so a removed camera counts as empty.
func StreamFrames(ctx context.Context, src FrameSource, id string, opts StreamOptions, emit func([]byte) error) error {
	def := DefaultStreamOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MaxEmpty <= 0 {
		opts.MaxEmpty = def.MaxEmpty
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	empty := 0

	for {
		data, seq, err := src.Encoded(id)
		if err == nil && seq != lastSeq {
			lastSeq = seq
			empty = 0
			if emitErr := emit(data); emitErr != nil {
				return emitErr
			}
		} else {
			if errors.Is(err, ErrCameraNotFound) {
				// A re-added camera starts a new sequence.
				lastSeq = 0
			}
			empty++
			if empty > opts.MaxEmpty {
				return ErrStreamIdle
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StreamMJPEG writes a multipart/x-mixed-replace stream of JPEG parts to w.
// flush, if non-nil, is called after every part.
func StreamMJPEG(ctx context.Context, w io.Writer, flush func(), src FrameSource, id string, opts StreamOptions) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(MJPEGBoundary); err != nil {
		return err
	}

	return StreamFrames(ctx, src, id, opts, func(data []byte) error {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", "image/jpeg")
		header.Set("Content-Length", strconv.Itoa(len(data)))
		part, err := mw.CreatePart(header)
		if err != nil {
			return fmt.Errorf("failed to create part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return fmt.Errorf("failed to write frame: %w", err)
		}
		if flush != nil {
			flush()
		}
		return nil
	})
}

// MJPEGContentType is the Content-Type header value for StreamMJPEG output.
func MJPEGContentType() string {
	return "multipart/x-mixed-replace; boundary=" + MJPEGBoundary
}
