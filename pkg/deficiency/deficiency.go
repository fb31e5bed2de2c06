// Package deficiency models how dichromats perceive color.
//
// Each Type maps to a fixed projection in LMS cone space that collapses the
// cone response the viewer lacks onto the plane spanned by the other two.
// The table is built once at init and never mutated, so it is safe to read
// from any goroutine without locking.
package deficiency

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-daltonize/pkg/colorspace"
)

// Type is a color vision deficiency.
type Type int

const (
	// Protan lacks long-wavelength (L) cones.
	Protan Type = iota
	// Deutan lacks medium-wavelength (M) cones.
	Deutan
	// Tritan lacks short-wavelength (S) cones.
	Tritan
)

// Channel indexes a cone channel in a colorspace.Vec3.
type Channel int

// Cone channels.
const (
	L Channel = iota
	M
	S
)

// Model holds the constants for one deficiency.
type Model struct {
	Type Type
	// Projection maps a cone color onto the confusion plane.
	Projection colorspace.Mat3
	// Impaired is the cone channel the viewer cannot resolve.
	Impaired Channel
	// Safe are the two channels the viewer still discriminates.
	Safe [2]Channel
	// Weights scale the impaired-channel error into each safe channel.
	Weights [2]float64
}

var models = [...]Model{
	Protan: {
		Type: Protan,
		Projection: colorspace.Mat3{
			{0, 2.02344, -2.52581},
			{0, 1, 0},
			{0, 0, 1},
		},
		Impaired: L,
		Safe:     [2]Channel{M, S},
		Weights:  [2]float64{2.0, 1.0},
	},
	Deutan: {
		Type: Deutan,
		Projection: colorspace.Mat3{
			{1, 0, 0},
			{0.494207, 0, 1.24827},
			{0, 0, 1},
		},
		Impaired: M,
		Safe:     [2]Channel{L, S},
		Weights:  [2]float64{3.0, -0.5},
	},
	Tritan: {
		Type: Tritan,
		Projection: colorspace.Mat3{
			{1, 0, 0},
			{0, 1, 0},
			{-0.395913, 0.801109, 0},
		},
		Impaired: S,
		Safe:     [2]Channel{L, M},
		Weights:  [2]float64{3.0, 5.0},
	},
}

var names = [...]string{
	Protan: "protanopia",
	Deutan: "deuteranopia",
	Tritan: "tritanopia",
}

// All returns every supported deficiency in declaration order.
func All() []Type {
	return []Type{Protan, Deutan, Tritan}
}

// Valid reports whether t is one of the supported deficiencies.
func (t Type) Valid() bool {
	return t >= Protan && t <= Tritan
}

// String returns the selector used on the wire, e.g. "deuteranopia".
func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("deficiency(%d)", int(t))
	}
	return names[t]
}

// Model returns the constant model for t. It panics on an invalid Type;
// values obtained from Parse are always valid.
func (t Type) Model() Model {
	return models[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, &UnknownError{Value: t.String()}
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse resolves a selector. It accepts the full names
// (protanopia|deuteranopia|tritanopia) and the short forms
// (protan|deutan|tritan), case-insensitively.
func Parse(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "protanopia", "protan":
		return Protan, nil
	case "deuteranopia", "deutan":
		return Deutan, nil
	case "tritanopia", "tritan":
		return Tritan, nil
	}
	return 0, &UnknownError{Value: s}
}

// Names returns the wire selectors of every supported deficiency.
func Names() []string {
	return names[:]
}

// Simulate projects c onto the confusion plane of t, returning the color as
// the deficient viewer perceives it. Simulate is idempotent.
func Simulate(c colorspace.ConeColor, t Type) colorspace.ConeColor {
	return models[t].Projection.MulVec(c.Vec()).Cone()
}

// SimulateLinear simulates t on a linear RGB color and returns linear RGB.
func SimulateLinear(c colorspace.LinearColor, t Type) colorspace.LinearColor {
	return colorspace.FromConeSpace(Simulate(colorspace.ToConeSpace(c), t))
}

// LinearMatrix returns the simulation of t as a single linear RGB matrix.
func LinearMatrix(t Type) colorspace.Mat3 {
	return linearSim[t]
}

var linearSim [len(models)]colorspace.Mat3

func init() {
	for i, m := range models {
		linearSim[i] = colorspace.LMSToRGB().Mul(m.Projection).Mul(colorspace.RGBToLMS())
	}
}
