package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestJPEGEncoderPassthrough(t *testing.T) {
	src := []byte("already-jpeg")
	got, err := (&JPEGEncoder{}).Encode(Frame{JPEG: src})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("Encode() = %q, want passthrough", got)
	}
}

func TestJPEGEncoderOverlay(t *testing.T) {
	src := testJPEG(t, 160, 120)
	enc := &JPEGEncoder{Quality: 90, Overlay: true, Label: "Front Door"}

	got, err := enc.Encode(Frame{JPEG: src, CapturedAt: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if bytes.Equal(got, src) {
		t.Error("overlay should re-encode the frame")
	}

	img, err := jpeg.Decode(bytes.NewReader(got))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
		t.Errorf("bounds = %v, want 160x120", b)
	}
}

func TestJPEGEncoderDecodedImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	got, err := (&JPEGEncoder{}).Encode(Frame{Image: img})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(got)); err != nil {
		t.Errorf("output is not a JPEG: %v", err)
	}
}

func TestJPEGEncoderErrors(t *testing.T) {
	if _, err := (&JPEGEncoder{}).Encode(Frame{}); err == nil {
		t.Error("empty frame should fail")
	}
	if _, err := (&JPEGEncoder{Overlay: true}).Encode(Frame{JPEG: []byte("garbage")}); err == nil {
		t.Error("undecodable frame with overlay should fail")
	}
}
