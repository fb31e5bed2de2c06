package frame

import (
	"fmt"
	"math"
)

// Quality summarises how far a processed frame moved from its source.
type Quality struct {
	MSE  float64
	PSNR float64
	SSIM float64
}

// Compare computes MSE and PSNR over the color channels and SSIM over luma.
func Compare(a, b *Frame) (Quality, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return Quality{}, fmt.Errorf("frame: size mismatch %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	if a.Empty() {
		return Quality{}, ErrEmptyFrame
	}
	mse := meanSquaredError(a, b)
	return Quality{MSE: mse, PSNR: PSNR(mse), SSIM: ssim(a, b)}, nil
}

// PSNR converts a mean squared error over 8-bit samples to decibels.
func PSNR(mse float64) float64 {
	if mse <= 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

func meanSquaredError(a, b *Frame) float64 {
	var sum float64
	n := a.Pixels()
	for i := 0; i < n*4; i += 4 {
		for c := 0; c < 3; c++ {
			d := float64(a.Pix[i+c]) - float64(b.Pix[i+c])
			sum += d * d
		}
	}
	return sum / float64(n*3)
}

const ssimWindow = 8

var (
	ssimC1 = math.Pow(0.01*255, 2)
	ssimC2 = math.Pow(0.03*255, 2)
)

// ssim averages the structural similarity of luma over non-overlapping
// windows. Frames smaller than one window are scored as a single window.
func ssim(a, b *Frame) float64 {
	w, h := ssimWindow, ssimWindow
	if a.Width < w {
		w = a.Width
	}
	if a.Height < h {
		h = a.Height
	}

	var total float64
	var windows int
	for y0 := 0; y0+h <= a.Height; y0 += h {
		for x0 := 0; x0+w <= a.Width; x0 += w {
			total += ssimWindowScore(a, b, x0, y0, w, h)
			windows++
		}
	}
	return total / float64(windows)
}

func ssimWindowScore(a, b *Frame, x0, y0, w, h int) float64 {
	var sa, sb, saa, sbb, sab float64
	n := float64(w * h)
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			la, lb := luma(a, x, y), luma(b, x, y)
			sa += la
			sb += lb
			saa += la * la
			sbb += lb * lb
			sab += la * lb
		}
	}
	ma, mb := sa/n, sb/n
	va := saa/n - ma*ma
	vb := sbb/n - mb*mb
	cov := sab/n - ma*mb
	return ((2*ma*mb + ssimC1) * (2*cov + ssimC2)) /
		((ma*ma + mb*mb + ssimC1) * (va + vb + ssimC2))
}

func luma(f *Frame, x, y int) float64 {
	r, g, b, _ := f.At(x, y)
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}
