// Package daltonize computes the corrective recoloring for a deficiency.
//
// The error a dichromat loses is the difference between a cone color and its
// simulated projection. That error lives entirely in the impaired cone
// channel; Correct moves it, scaled by a strength, into the two channels the
// viewer can still resolve. The result is then fitted back into the RGB
// gamut along the same direction so perceived change grows with strength.
package daltonize

import (
	"github.com/teslashibe/go-daltonize/pkg/colorspace"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
)

// gamutEpsilon treats channels this close to a bound as sitting on it.
const gamutEpsilon = 1e-9

// Correct returns the corrected version of original given its simulation
// under d. Strength is clamped to [0,1]; zero returns original unchanged.
func Correct(original, simulated colorspace.ConeColor, d deficiency.Type, s Strength) colorspace.ConeColor {
	s = s.Clamp()
	if s == 0 {
		return original
	}

	m := d.Model()
	o, sim := original.Vec(), simulated.Vec()
	e := o[m.Impaired] - sim[m.Impaired]

	var delta colorspace.Vec3
	delta[m.Safe[0]] = m.Weights[0] * e
	delta[m.Safe[1]] = m.Weights[1] * e

	x0 := colorspace.FromConeSpace(original).Clamp().Vec()
	v := colorspace.LMSToRGB().MulVec(delta)
	out := step(x0, v, float64(s))
	return colorspace.ToConeSpace(out.Linear())
}

// CorrectColor runs the full per-pixel chain on a display-encoded color.
func CorrectColor(c colorspace.Color, d deficiency.Type, s Strength) colorspace.Color {
	cone := colorspace.ToConeSpace(colorspace.ToLinear(c))
	out := Correct(cone, deficiency.Simulate(cone, d), d, s)
	return colorspace.FromLinear(colorspace.FromConeSpace(out))
}

// step moves x0 along v by at most s while staying inside the unit cube.
// Channels already on a bound and pushing outward are dropped from v first,
// so the direction depends only on the color and the travelled distance is
// nondecreasing in s.
func step(x0, v colorspace.Vec3, s float64) colorspace.Vec3 {
	t := s
	for i := range v {
		switch {
		case v[i] > 0:
			if x0[i] >= 1-gamutEpsilon {
				v[i] = 0
				continue
			}
			if lim := (1 - x0[i]) / v[i]; lim < t {
				t = lim
			}
		case v[i] < 0:
			if x0[i] <= gamutEpsilon {
				v[i] = 0
				continue
			}
			if lim := -x0[i] / v[i]; lim < t {
				t = lim
			}
		}
	}
	return colorspace.Vec3{
		colorspace.Clamp01(x0[0] + t*v[0]),
		colorspace.Clamp01(x0[1] + t*v[1]),
		colorspace.Clamp01(x0[2] + t*v[2]),
	}
}

// PerceivedDistance is the distance between a and b as seen by a viewer
// with deficiency d, measured in linear RGB.
func PerceivedDistance(a, b colorspace.LinearColor, d deficiency.Type) float64 {
	m := deficiency.LinearMatrix(d)
	pa, pb := m.MulVec(a.Vec()), m.MulVec(b.Vec())
	return distance(pa, pb)
}
