// Package frame applies deficiency correction to whole images.
//
// A Frame is owned by exactly one pipeline stage at a time. Processor never
// mutates its input; it returns a freshly allocated Frame so the caller may
// hand the result to a transport and forget it.
package frame

import (
	"image"

	"github.com/anthonynsimon/bild/clone"
	"golang.org/x/image/draw"
)

// Frame is a grid of non-premultiplied 8-bit RGBA pixels, row-major with
// a stride of Width*4.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// New allocates a zeroed w×h frame.
func New(w, h int) *Frame {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Frame{Width: w, Height: h, Pix: make([]uint8, w*h*4)}
}

// Empty reports whether the frame has no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*4
}

// Pixels returns the number of pixels.
func (f *Frame) Pixels() int {
	if f == nil {
		return 0
	}
	return f.Width * f.Height
}

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) (r, g, b, a uint8) {
	i := (y*f.Width + x) * 4
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// Set writes the pixel at (x, y).
func (f *Frame) Set(x, y int, r, g, b, a uint8) {
	i := (y*f.Width + x) * 4
	f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, a
}

// Fill paints every pixel with one opaque color.
func (f *Frame) Fill(r, g, b uint8) {
	for i := 0; i+3 < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, 0xff
	}
}

// FromImage copies img into a new Frame anchored at the origin.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := &Frame{Width: b.Dx(), Height: b.Dy()}

	switch src := img.(type) {
	case *image.NRGBA:
		f.Pix = make([]uint8, f.Width*f.Height*4)
		for y := 0; y < f.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Pix[y*f.Width*4:(y+1)*f.Width*4], src.Pix[off:off+f.Width*4])
		}
		return f
	}

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		// Premultiplied and straight alpha agree when every pixel is opaque.
		rgba := clone.AsRGBA(img)
		f.Pix = rgba.Pix
		if rgba.Stride != f.Width*4 {
			f.Pix = compact(rgba.Pix, rgba.Stride, f.Width, f.Height)
		}
		return f
	}

	dst := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	f.Pix = dst.Pix
	return f
}

// Image wraps the frame's pixels as an *image.NRGBA without copying. The
// frame must not be modified afterwards.
func (f *Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := &Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix))}
	copy(out.Pix, f.Pix)
	return out
}

func compact(pix []uint8, stride, w, h int) []uint8 {
	out := make([]uint8, w*h*4)
	for y := 0; y < h; y++ {
		copy(out[y*w*4:(y+1)*w*4], pix[y*stride:y*stride+w*4])
	}
	return out
}
