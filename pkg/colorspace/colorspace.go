// Package colorspace converts between display-encoded sRGB, linear-light RGB
// and the LMS cone-response space used for deficiency simulation.
//
// All conversions are total: out-of-range inputs are clamped to the valid
// interval before conversion and no function returns an error.
package colorspace

import "math"

// Color is a display-encoded (sRGB) color with channels in [0,1].
type Color struct {
	R, G, B float64
}

// LinearColor is a linear-light RGB color with channels in [0,1].
type LinearColor struct {
	R, G, B float64
}

// ConeColor is a color expressed as long, medium and short cone responses.
type ConeColor struct {
	L, M, S float64
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Vec3 is a column vector.
type Vec3 [3]float64

// rgbToLMS is the Viénot/Brettel linear RGB to LMS matrix.
var rgbToLMS = Mat3{
	{17.8824, 43.5161, 4.11935},
	{3.45565, 27.1554, 3.86714},
	{0.0299566, 0.184309, 1.46709},
}

// lmsToRGB is the exact inverse of rgbToLMS, computed once at init.
var lmsToRGB Mat3

func init() {
	lmsToRGB = rgbToLMS.Inverse()
}

// RGBToLMS returns the linear RGB to LMS matrix.
func RGBToLMS() Mat3 { return rgbToLMS }

// LMSToRGB returns the LMS to linear RGB matrix.
func LMSToRGB() Mat3 { return lmsToRGB }

// FromBytes builds a Color from 8-bit channel values.
func FromBytes(r, g, b uint8) Color {
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// Bytes quantizes the color to 8-bit channels, clamping first.
func (c Color) Bytes() (r, g, b uint8) {
	return quantize(c.R), quantize(c.G), quantize(c.B)
}

// Clamp returns the color with each channel limited to [0,1].
func (c Color) Clamp() Color {
	return Color{R: Clamp01(c.R), G: Clamp01(c.G), B: Clamp01(c.B)}
}

// Clamp returns the color with each channel limited to [0,1].
func (c LinearColor) Clamp() LinearColor {
	return LinearColor{R: Clamp01(c.R), G: Clamp01(c.G), B: Clamp01(c.B)}
}

// Vec returns the channels as a vector.
func (c LinearColor) Vec() Vec3 { return Vec3{c.R, c.G, c.B} }

// Vec returns the channels as a vector.
func (c ConeColor) Vec() Vec3 { return Vec3{c.L, c.M, c.S} }

// Linear builds a LinearColor from a vector.
func (v Vec3) Linear() LinearColor { return LinearColor{R: v[0], G: v[1], B: v[2]} }

// Cone builds a ConeColor from a vector.
func (v Vec3) Cone() ConeColor { return ConeColor{L: v[0], M: v[1], S: v[2]} }

// ToLinear applies the sRGB electro-optical transfer function.
func ToLinear(c Color) LinearColor {
	c = c.Clamp()
	return LinearColor{R: DecodeComponent(c.R), G: DecodeComponent(c.G), B: DecodeComponent(c.B)}
}

// FromLinear applies the inverse sRGB transfer function.
func FromLinear(c LinearColor) Color {
	c = c.Clamp()
	return Color{R: EncodeComponent(c.R), G: EncodeComponent(c.G), B: EncodeComponent(c.B)}
}

// ToConeSpace maps a linear color to LMS cone responses.
func ToConeSpace(c LinearColor) ConeColor {
	return rgbToLMS.MulVec(c.Clamp().Vec()).Cone()
}

// FromConeSpace maps cone responses back to linear RGB. The result is not
// clamped so callers can detect out-of-gamut colors; use Clamp when needed.
func FromConeSpace(c ConeColor) LinearColor {
	return lmsToRGB.MulVec(c.Vec()).Linear()
}

// DecodeComponent converts one sRGB-encoded channel to linear light.
func DecodeComponent(s float64) float64 {
	s = Clamp01(s)
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

// EncodeComponent converts one linear channel to sRGB encoding.
func EncodeComponent(l float64) float64 {
	l = Clamp01(l)
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1/2.4) - 0.055
}

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v >= 0:
		return v
	default:
		return 0
	}
}

func quantize(v float64) uint8 {
	return uint8(Clamp01(v)*255 + 0.5)
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = m[r][0]*n[0][c] + m[r][1]*n[1][c] + m[r][2]*n[2][c]
		}
	}
	return out
}

// Inverse returns the inverse of m by cofactor expansion. The matrices used
// here are fixed and well conditioned, so no singularity check is made.
func (m Mat3) Inverse() Mat3 {
	a, b, c := m[0][0], m[0][1], m[0][2]
	d, e, f := m[1][0], m[1][1], m[1][2]
	g, h, i := m[2][0], m[2][1], m[2][2]

	A := e*i - f*h
	B := -(d*i - f*g)
	C := d*h - e*g
	det := a*A + b*B + c*C

	return Mat3{
		{A / det, -(b*i - c*h) / det, (b*f - c*e) / det},
		{B / det, (a*i - c*g) / det, -(a*f - c*d) / det},
		{C / det, -(a*h - b*g) / det, (a*e - b*d) / det},
	}
}
