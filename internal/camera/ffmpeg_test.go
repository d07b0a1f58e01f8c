package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func TestScanJPEGSplitsFrames(t *testing.T) {
	frameA := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frameB := []byte{0xFF, 0xD8, 0xFF, 0x00, 0x03, 0xFF, 0xD9}

	var stream bytes.Buffer
	stream.Write([]byte("garbage"))
	stream.Write(frameA)
	stream.Write([]byte{0x00, 0xFF})
	stream.Write(frameB)
	stream.Write([]byte{0xFF, 0xD8, 0x04}) // truncated trailing frame

	tests := []struct {
		name   string
		reader func() *bufio.Scanner
	}{
		{"whole", func() *bufio.Scanner { return bufio.NewScanner(bytes.NewReader(stream.Bytes())) }},
		{"one byte at a time", func() *bufio.Scanner {
			return bufio.NewScanner(iotest.OneByteReader(bytes.NewReader(stream.Bytes())))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := tt.reader()
			scanner.Split(scanJPEG)

			var got [][]byte
			for scanner.Scan() {
				got = append(got, bytes.Clone(scanner.Bytes()))
			}
			if err := scanner.Err(); err != nil {
				t.Fatalf("scanner error: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d frames, want 2", len(got))
			}
			if !bytes.Equal(got[0], frameA) || !bytes.Equal(got[1], frameB) {
				t.Errorf("frames = %x, want %x and %x", got, frameA, frameB)
			}
		})
	}
}

func TestFFmpegDeviceKeepsNewestFrame(t *testing.T) {
	dev := &ffmpegDevice{frames: make(chan []byte, 1), exited: make(chan struct{})}

	var stream bytes.Buffer
	for _, b := range []byte{1, 2, 3} {
		stream.Write([]byte{0xFF, 0xD8, b, 0xFF, 0xD9})
	}
	dev.consume(&stream)

	select {
	case data := <-dev.frames:
		if data[2] != 3 {
			t.Errorf("frame payload = %d, want newest (3)", data[2])
		}
	default:
		t.Fatal("no frame buffered")
	}
}

func TestFFmpegDeviceRetrieveBeforeGrab(t *testing.T) {
	dev := &ffmpegDevice{}
	if _, err := dev.Retrieve(); err == nil {
		t.Error("Retrieve() before Grab should fail")
	}
}

type stubResolver struct {
	uri   string
	err   error
	calls []string
}

func (r *stubResolver) StreamURI(_ context.Context, uri string) (string, error) {
	r.calls = append(r.calls, uri)
	return r.uri, r.err
}

// fakeFFmpeg writes a script that records its arguments and emits one JPEG.
func fakeFFmpeg(t *testing.T) (binary, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	binary = filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsFile + "'\nprintf '\\377\\330x\\377\\331'\nexec sleep 5\n"
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return binary, argsFile
}

func TestFFmpegOpenerResolvesONVIF(t *testing.T) {
	binary, argsFile := fakeFFmpeg(t)
	resolver := &stubResolver{uri: "rtsp://admin:pw@10.0.0.5:554/Streaming/101"}
	opener := &FFmpegOpener{Binary: binary, OpenTimeout: 5 * time.Second, Resolver: resolver, Logger: newTestLogger()}

	dev, err := opener.Open(context.Background(), Descriptor{URI: "onvif://admin:pw@10.0.0.5:80"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer dev.Close()

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Split(strings.TrimSpace(string(data)), "\n")
	i := slices.Index(args, "-i")
	if i < 0 || i+1 >= len(args) || args[i+1] != resolver.uri {
		t.Errorf("ffmpeg input = %q, want %q", args, resolver.uri)
	}
	if !slices.Contains(args, "-rtsp_transport") {
		t.Errorf("resolved source not opened as rtsp: %q", args)
	}
	if len(resolver.calls) != 1 || resolver.calls[0] != "onvif://admin:pw@10.0.0.5:80" {
		t.Errorf("resolver calls = %q", resolver.calls)
	}
}

func TestFFmpegOpenerResolveFailure(t *testing.T) {
	errDevice := errors.New("device unreachable")
	resolver := &stubResolver{err: errDevice}
	opener := &FFmpegOpener{Binary: "/nonexistent/ffmpeg", Resolver: resolver, Logger: newTestLogger()}

	_, err := opener.Open(context.Background(), Descriptor{URI: "onvif://10.0.0.5"})
	if !errors.Is(err, errDevice) {
		t.Fatalf("Open() error = %v, want %v", err, errDevice)
	}
}

func TestFFmpegOpenerSkipsResolverForRTSP(t *testing.T) {
	binary, _ := fakeFFmpeg(t)
	resolver := &stubResolver{err: errors.New("must not be called")}
	opener := &FFmpegOpener{Binary: binary, OpenTimeout: 5 * time.Second, Resolver: resolver, Logger: newTestLogger()}

	dev, err := opener.Open(context.Background(), Descriptor{URI: "rtsp://10.0.0.5/live"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer dev.Close()
	if len(resolver.calls) != 0 {
		t.Errorf("resolver called for rtsp source: %q", resolver.calls)
	}
}
