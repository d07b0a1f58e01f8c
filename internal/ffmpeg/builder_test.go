package ffmpeg

import (
	"slices"
	"strings"
	"testing"
)

// hasSeq reports whether want appears in args as consecutive elements.
func hasSeq(args, want []string) bool {
	for i := 0; i+len(want) <= len(args); i++ {
		if slices.Equal(args[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func TestBuildCaptureArgs(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		contains [][]string
		excludes []string
		wantErr  bool
	}{
		{
			name:   "rtsp defaults to tcp and low latency",
			params: Params{Input: "rtsp://cam/stream", Format: FormatRTSP, TimeoutSec: 10},
			contains: [][]string{
				{"-rtsp_transport", "tcp"},
				{"-fflags", "nobuffer", "-flags", "low_delay"},
				{"-timeout", "10000000"},
				{"-i", "rtsp://cam/stream"},
				{"-c:v", "mjpeg", "-q:v", "5"},
				{"-f", "image2pipe", "-"},
			},
		},
		{
			name:     "v4l2 device with format and size",
			params:   Params{Input: "/dev/video0", Format: FormatV4L2, InputFormat: "mjpeg", Resolution: "1280x720"},
			contains: [][]string{{"-f", "v4l2", "-input_format", "mjpeg", "-video_size", "1280x720", "-i", "/dev/video0"}},
			excludes: []string{"-rtsp_transport", "-timeout"},
		},
		{
			name:     "single frame to file",
			params:   Params{Input: "/dev/video0", Format: FormatV4L2, Frames: 1, Output: "/tmp/snap.jpg", Options: []OptionType{}},
			contains: [][]string{{"-frames:v", "1"}, {"-y", "/tmp/snap.jpg"}},
			excludes: []string{"image2pipe"},
		},
		{
			name:     "http reconnect options",
			params:   Params{Input: "http://cam/video.mjpg", Format: FormatHTTP, FPS: "5", TimeoutSec: 3},
			contains: [][]string{{"-reconnect", "1"}, {"-r", "5"}, {"-rw_timeout", "3000000"}},
			excludes: []string{"-rtsp_transport"},
		},
		{
			name:     "tcp transport ignored for http input",
			params:   Params{Input: "http://cam/video.mjpg", Format: FormatHTTP, Options: []OptionType{OptionTCPTransport}},
			excludes: []string{"-rtsp_transport"},
		},
		{
			name:    "missing input",
			params:  Params{Format: FormatRTSP},
			wantErr: true,
		},
		{
			name:    "conflicting options",
			params:  Params{Input: "/dev/video0", Options: []OptionType{OptionGeneratePTS, OptionWallclockTimestamp}},
			wantErr: true,
		},
		{
			name:    "unknown option",
			params:  Params{Input: "/dev/video0", Options: []OptionType{"turbo"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BuildCaptureArgs(&tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", args)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCaptureArgs() failed: %v", err)
			}
			if !hasSeq(args, append([]string{"ffmpeg"}, baseArgs...)) || args[0] != "ffmpeg" {
				t.Errorf("args %q do not start with the base command", args)
			}
			for _, want := range tt.contains {
				if !hasSeq(args, want) {
					t.Errorf("args %q missing %q", args, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if slices.Contains(args, unwanted) {
					t.Errorf("args %q should not contain %q", args, unwanted)
				}
			}
		})
	}
}

func TestBuildCaptureArgsKeepsInputWhole(t *testing.T) {
	input := `rtsp://admin:p"a ss\word@cam/stream`
	args, err := BuildCaptureArgs(&Params{Binary: "/opt/ffmpeg bin/ffmpeg", Input: input, Format: FormatRTSP})
	if err != nil {
		t.Fatal(err)
	}
	if args[0] != "/opt/ffmpeg bin/ffmpeg" {
		t.Errorf("binary = %q", args[0])
	}
	if !hasSeq(args, []string{"-i", input}) {
		t.Errorf("input not passed as one argument: %q", args)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"[warning] frame dropped", "warning", "frame dropped"},
		{"[rtsp @ 0x55d] [error] method DESCRIBE failed", "error", "[rtsp @ 0x55d] method DESCRIBE failed"},
		{"plain line", "info", "plain line"},
		{"[notalevel] x", "info", "[notalevel] x"},
		{"[error]", "info", "[error]"},
		{"[mjpeg @ 0x1] no level here", "info", "[mjpeg @ 0x1] no level here"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, msg := ParseLogLevel(tt.line)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Errorf("ParseLogLevel(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

func TestOptionArgsFiltersByFormat(t *testing.T) {
	got := OptionArgs([]OptionType{OptionTCPTransport, OptionIgnoreErrors, OptionReconnect}, FormatRTSP)
	want := []string{"-rtsp_transport", "tcp", "-err_detect", "ignore_err"}
	if !slices.Equal(got, want) {
		t.Errorf("OptionArgs = %q, want %q", got, want)
	}
}

func TestValidateOptionsConflictOrder(t *testing.T) {
	err := ValidateOptions([]OptionType{OptionWallclockTimestamp, OptionLowLatency, OptionGeneratePTS})
	if err == nil || !strings.Contains(err.Error(), "genpts conflicts with wallclock_ts") {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateOptions(nil); err != nil {
		t.Errorf("empty options: %v", err)
	}
}
