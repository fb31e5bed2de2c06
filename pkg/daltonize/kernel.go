package daltonize

import (
	"math"

	"github.com/teslashibe/go-daltonize/pkg/colorspace"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
)

// Kernel is the correction for one deficiency folded into a single linear
// RGB matrix: the RGB shift for a pixel x is Shift·x before gamut fitting.
// Kernels are computed once at init and shared read-only.
type Kernel struct {
	Type  deficiency.Type
	Shift colorspace.Mat3
	Sim   colorspace.Mat3
}

var kernels [3]Kernel

func init() {
	for _, d := range deficiency.All() {
		m := d.Model()

		// Row of (I - P) that yields the impaired-channel error.
		var errRow [3]float64
		for j := 0; j < 3; j++ {
			errRow[j] = -m.Projection[m.Impaired][j]
		}
		errRow[m.Impaired]++

		var redistribute colorspace.Mat3
		for k, ch := range m.Safe {
			for j := 0; j < 3; j++ {
				redistribute[ch][j] = m.Weights[k] * errRow[j]
			}
		}

		kernels[d] = Kernel{
			Type:  d,
			Shift: colorspace.LMSToRGB().Mul(redistribute).Mul(colorspace.RGBToLMS()),
			Sim:   deficiency.LinearMatrix(d),
		}
	}
}

// KernelFor returns the shared kernel for d.
func KernelFor(d deficiency.Type) *Kernel {
	return &kernels[d]
}

// Apply corrects a linear RGB pixel. It matches Correct on in-gamut input.
func (k *Kernel) Apply(x colorspace.Vec3, s Strength) colorspace.Vec3 {
	s = s.Clamp()
	if s == 0 {
		return x
	}
	return step(x, k.Shift.MulVec(x), float64(s))
}

// Simulate returns the linear RGB pixel as seen by the deficient viewer,
// clamped to the gamut.
func (k *Kernel) Simulate(x colorspace.Vec3) colorspace.Vec3 {
	v := k.Sim.MulVec(x)
	return colorspace.Vec3{colorspace.Clamp01(v[0]), colorspace.Clamp01(v[1]), colorspace.Clamp01(v[2])}
}

func distance(a, b colorspace.Vec3) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dr*dr + dg*dg + db*db)
}
