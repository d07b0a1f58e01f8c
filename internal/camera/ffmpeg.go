package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/watchnode/internal/ffmpeg"
	"github.com/smazurov/watchnode/internal/logging"
	"github.com/smazurov/watchnode/internal/onvif"
	"github.com/smazurov/watchnode/internal/process"
)

const maxJPEGSize = 8 << 20

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegOpener opens sources by running ffmpeg and reading MJPEG frames from its stdout.
type FFmpegOpener struct {
	Binary      string
	OpenTimeout time.Duration // wait for the first frame
	ReadTimeout time.Duration // wait for each subsequent frame
	FPS         int
	Quality     int    // mjpeg quantizer 2-31
	Resolution  string // v4l2 only
	// Options are ffmpeg input options; nil picks the defaults for the backend.
	Options []ffmpeg.OptionType
	// Resolver looks up the RTSP URI of onvif:// sources. Nil uses an ONVIF client.
	Resolver StreamResolver
	Logger   *slog.Logger
}

// Open starts ffmpeg for desc and waits for its first frame.
func (o *FFmpegOpener) Open(ctx context.Context, desc Descriptor) (Device, error) {
	logger := o.Logger
	if logger == nil {
		logger = logging.GetLogger("camera")
	}

	input := desc.InputURL()
	if onvif.IsSource(desc.URI) {
		resolved, err := o.resolver().StreamURI(ctx, desc.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve onvif stream: %w", err)
		}
		logger.Debug("Resolved onvif source", "host", onvifHost(desc.URI))
		input = resolved
	}

	params := &ffmpeg.Params{
		Binary:     o.Binary,
		Input:      input,
		Format:     desc.ResolveBackend(),
		Resolution: o.Resolution,
		Quality:    o.Quality,
		TimeoutSec: int(o.readTimeout().Seconds()),
		Options:    o.Options,
	}
	if o.FPS > 0 {
		params.FPS = strconv.Itoa(o.FPS)
	}
	if params.Format == ffmpeg.FormatV4L2 {
		params.TimeoutSec = 0
	}

	args, err := ffmpeg.BuildCaptureArgs(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build capture command: %w", err)
	}

	dev := &ffmpegDevice{
		frames:      make(chan []byte, 1),
		exited:      make(chan struct{}),
		readTimeout: o.readTimeout(),
	}
	dev.proc = process.New(desc.URI, args, logger,
		process.WithStdout(dev.consume),
		process.WithOutputLog(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
	)

	go func() {
		dev.exitCode, dev.startErr = dev.proc.Run(context.Background())
		close(dev.exited)
	}()

	openTimeout := o.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 15 * time.Second
	}
	timer := time.NewTimer(openTimeout)
	defer timer.Stop()

	select {
	case data := <-dev.frames:
		dev.pending = data
		return dev, nil
	case <-dev.exited:
		return nil, fmt.Errorf("before first frame: %w", dev.exitError())
	case <-ctx.Done():
		_ = dev.Close()
		return nil, ctx.Err()
	case <-timer.C:
		_ = dev.Close()
		return nil, fmt.Errorf("no frame within %s", openTimeout)
	}
}

func (o *FFmpegOpener) resolver() StreamResolver {
	if o.Resolver != nil {
		return o.Resolver
	}
	return onvif.NewClient(o.readTimeout())
}

func onvifHost(uri string) string {
	ep, err := onvif.ParseURI(uri)
	if err != nil {
		return ""
	}
	return ep.Host
}

func (o *FFmpegOpener) readTimeout() time.Duration {
	if o.ReadTimeout <= 0 {
		return 10 * time.Second
	}
	return o.ReadTimeout
}

// ffmpegDevice keeps only the newest frame, dropping older ones if the reader falls behind.
type ffmpegDevice struct {
	proc        *process.Process
	frames      chan []byte
	exited      chan struct{}
	exitCode    int
	startErr    error
	readTimeout time.Duration

	pending    []byte
	grabbed    []byte
	grabbedAt  time.Time
	closeOnce  sync.Once
	closeError error
}

func (d *ffmpegDevice) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256<<10), maxJPEGSize)
	scanner.Split(scanJPEG)

	for scanner.Scan() {
		data := bytes.Clone(scanner.Bytes())
		select {
		case d.frames <- data:
		default:
			select {
			case <-d.frames:
			default:
			}
			select {
			case d.frames <- data:
			default:
			}
		}
	}
}

func (d *ffmpegDevice) Grab(ctx context.Context) error {
	if d.pending != nil {
		d.grabbed, d.grabbedAt, d.pending = d.pending, time.Now(), nil
		return nil
	}

	timer := time.NewTimer(d.readTimeout)
	defer timer.Stop()

	select {
	case data := <-d.frames:
		d.grabbed, d.grabbedAt = data, time.Now()
		return nil
	case <-d.exited:
		return d.exitError()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no frame within %s", d.readTimeout)
	}
}

// exitError describes why ffmpeg is gone. Valid once exited is closed.
func (d *ffmpegDevice) exitError() error {
	if d.startErr != nil {
		return fmt.Errorf("ffmpeg did not start: %w", d.startErr)
	}
	return fmt.Errorf("ffmpeg exited with code %d", d.exitCode)
}

func (d *ffmpegDevice) Retrieve() (Frame, error) {
	if d.grabbed == nil {
		return Frame{}, errors.New("no frame grabbed")
	}
	return Frame{JPEG: d.grabbed, CapturedAt: d.grabbedAt}, nil
}

func (d *ffmpegDevice) Close() error {
	d.closeOnce.Do(func() {
		d.proc.Stop()
		select {
		case <-d.exited:
		case <-time.After(15 * time.Second):
			d.closeError = errors.New("ffmpeg did not exit")
		}
	})
	return d.closeError
}

// scanJPEG is a bufio.SplitFunc yielding complete JPEG images (SOI through EOI).
// Bytes before an SOI marker are discarded.
func scanJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it starts the next marker.
		if n := len(data); n > 1 {
			return n - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if start > 0 {
			return start, nil, nil
		}
		return 0, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
