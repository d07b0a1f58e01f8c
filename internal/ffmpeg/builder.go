package ffmpeg

import (
	"errors"
	"strconv"
)

// baseArgs follow the binary in every capture command. Log lines carry a
// "[level]" prefix for ParseLogLevel.
var baseArgs = []string{"-hide_banner", "-nostdin", "-loglevel", "level+warning"}

// BuildCaptureArgs returns the argv of an ffmpeg run that decodes the
// input and writes MJPEG frames to stdout (image2pipe) or to a file.
// Arguments are never joined into one string, so URLs with quotes or
// spaces in their credentials pass through untouched.
func BuildCaptureArgs(p *Params) ([]string, error) {
	if p.Input == "" {
		return nil, errors.New("input is required")
	}

	options := p.Options
	if options == nil {
		options = DefaultOptions(p.Format)
	}
	if err := ValidateOptions(options); err != nil {
		return nil, err
	}

	binary := p.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	args := append([]string{binary}, baseArgs...)
	args = append(args, OptionArgs(options, p.Format)...)

	// ffmpeg network timeouts are in microseconds.
	timeout := strconv.Itoa(p.TimeoutSec * 1_000_000)
	switch p.Format {
	case FormatV4L2:
		args = append(args, "-f", "v4l2")
		if p.InputFormat != "" {
			args = append(args, "-input_format", p.InputFormat)
		}
		if p.Resolution != "" {
			args = append(args, "-video_size", p.Resolution)
		}
	case FormatRTSP:
		if p.TimeoutSec > 0 {
			args = append(args, "-timeout", timeout)
		}
	case FormatHTTP:
		if p.TimeoutSec > 0 {
			args = append(args, "-rw_timeout", timeout)
		}
	}

	args = append(args, "-i", p.Input, "-an")
	if p.FPS != "" {
		args = append(args, "-r", p.FPS)
	}

	quality := p.Quality
	if quality <= 0 {
		quality = 5
	}
	args = append(args, "-c:v", "mjpeg", "-q:v", strconv.Itoa(quality))
	if p.Frames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(p.Frames))
	}

	if p.Output == "" || p.Output == "-" {
		return append(args, "-f", "image2pipe", "-"), nil
	}
	return append(args, "-y", p.Output), nil
}
