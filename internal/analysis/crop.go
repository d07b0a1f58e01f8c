package analysis

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

const (
	// cropPadding widens a detection box on every side, as a fraction of its size.
	cropPadding = 0.2
	// minCropSide is the shortest side of a stored crop; smaller crops are upscaled.
	minCropSide = 96
	cropQuality = 90
)

// CropBox cuts the region of a [ymin, xmin, ymax, xmax] box normalized to
// 0-1000 out of img, padded by 20% on each side and clamped to the image.
// ok is false when the box is missing or describes an empty region.
func CropBox(img image.Image, box []int) (image.Image, bool) {
	if len(box) != 4 {
		return nil, false
	}
	ymin, xmin := clampNorm(box[0]), clampNorm(box[1])
	ymax, xmax := clampNorm(box[2]), clampNorm(box[3])
	if ymax <= ymin || xmax <= xmin {
		return nil, false
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	left := float64(xmin) * w / 1000
	top := float64(ymin) * h / 1000
	right := float64(xmax) * w / 1000
	bottom := float64(ymax) * h / 1000

	padW := (right - left) * cropPadding
	padH := (bottom - top) * cropPadding
	left = math.Max(0, left-padW)
	top = math.Max(0, top-padH)
	right = math.Min(w, right+padW)
	bottom = math.Min(h, bottom+padH)

	rect := image.Rect(
		b.Min.X+int(left), b.Min.Y+int(top),
		b.Min.X+int(math.Ceil(right)), b.Min.Y+int(math.Ceil(bottom)),
	).Intersect(b)
	if rect.Empty() {
		return nil, false
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Copy(dst, image.Point{}, img, rect, draw.Src, nil)

	short := min(rect.Dx(), rect.Dy())
	if short >= minCropSide {
		return dst, true
	}
	scale := float64(minCropSide) / float64(short)
	up := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(float64(rect.Dx())*scale)), int(math.Ceil(float64(rect.Dy())*scale))))
	draw.CatmullRom.Scale(up, up.Bounds(), dst, dst.Bounds(), draw.Src, nil)
	return up, true
}

func clampNorm(v int) int {
	return max(0, min(1000, v))
}

// cropper decodes a frame once for any number of crops.
type cropper struct {
	frame   []byte
	img     image.Image
	decoded bool
}

func newCropper(frame []byte) *cropper {
	return &cropper{frame: frame}
}

// crop returns the JPEG of box within the frame.
func (c *cropper) crop(box []int) ([]byte, bool) {
	if len(box) != 4 {
		return nil, false
	}
	if !c.decoded {
		c.decoded = true
		img, err := jpeg.Decode(bytes.NewReader(c.frame))
		if err == nil {
			c.img = img
		}
	}
	if c.img == nil {
		return nil, false
	}

	region, ok := CropBox(c.img, box)
	if !ok {
		return nil, false
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, region, &jpeg.Options{Quality: cropQuality}); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
