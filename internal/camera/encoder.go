package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Encoder turns a frame into JPEG bytes.
type Encoder interface {
	Encode(f Frame) ([]byte, error)
}

// DefaultJPEGQuality matches the quality used for snapshots and streaming.
const DefaultJPEGQuality = 85

// JPEGEncoder encodes frames as JPEG, optionally stamping a label and the capture time.
type JPEGEncoder struct {
	Quality int
	Overlay bool
	Label   string
}

// Encode implements Encoder. Source-encoded JPEG passes through untouched when no overlay is requested.
func (e *JPEGEncoder) Encode(f Frame) ([]byte, error) {
	if !e.Overlay && f.Image == nil && len(f.JPEG) > 0 {
		return f.JPEG, nil
	}

	img := f.Image
	if img == nil {
		if len(f.JPEG) == 0 {
			return nil, fmt.Errorf("empty frame")
		}
		decoded, err := jpeg.Decode(bytes.NewReader(f.JPEG))
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame: %w", err)
		}
		img = decoded
	}

	if e.Overlay {
		img = e.stamp(img, f)
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// stamp draws the label and capture timestamp in the top-left corner.
func (e *JPEGEncoder) stamp(src image.Image, f Frame) image.Image {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	text := f.CapturedAt.Format("2006-01-02 15:04:05")
	if e.Label != "" {
		text = e.Label + "  " + text
	}

	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	box := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+width+8, bounds.Min.Y+height+6)
	draw.Draw(dst, box, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(bounds.Min.X+4, bounds.Min.Y+face.Metrics().Ascent.Ceil()+3),
	}
	d.DrawString(text)
	return dst
}
