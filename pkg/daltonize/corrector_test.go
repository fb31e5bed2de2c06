package daltonize

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-daltonize/pkg/colorspace"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
)

func randomLinear(rng *rand.Rand) colorspace.LinearColor {
	return colorspace.LinearColor{R: rng.Float64(), G: rng.Float64(), B: rng.Float64()}
}

func TestCorrectZeroStrengthIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, d := range deficiency.All() {
		for i := 0; i < 500; i++ {
			cone := colorspace.ToConeSpace(randomLinear(rng))
			got := Correct(cone, deficiency.Simulate(cone, d), d, 0)
			require.Equal(t, cone, got)
		}
	}
}

func TestCorrectMonotonicInStrength(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	strengths := []Strength{0, 0.1, 0.2, 0.35, 0.5, 0.75, 0.9, 1}

	for _, d := range deficiency.All() {
		for i := 0; i < 2000; i++ {
			lin := randomLinear(rng)
			cone := colorspace.ToConeSpace(lin)
			sim := deficiency.Simulate(cone, d)

			prev := -1.0
			for _, s := range strengths {
				out := colorspace.FromConeSpace(Correct(cone, sim, d, s))
				dist := PerceivedDistance(out, lin, d)
				require.GreaterOrEqual(t, dist, prev-1e-9,
					"%s color %+v strength %.2f", d, lin, float64(s))
				prev = dist
			}
		}
	}
}

func TestCorrectStaysInGamut(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, d := range deficiency.All() {
		for i := 0; i < 1000; i++ {
			cone := colorspace.ToConeSpace(randomLinear(rng))
			out := colorspace.FromConeSpace(Correct(cone, deficiency.Simulate(cone, d), d, Full))
			for _, v := range out.Vec() {
				assert.GreaterOrEqual(t, v, -1e-9)
				assert.LessOrEqual(t, v, 1+1e-9)
			}
		}
	}
}

func TestCorrectLeavesImpairedChannelForInteriorColors(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for _, d := range deficiency.All() {
		impaired := d.Model().Impaired
		for i := 0; i < 500; i++ {
			lin := colorspace.LinearColor{
				R: 0.1 + 0.8*rng.Float64(),
				G: 0.1 + 0.8*rng.Float64(),
				B: 0.1 + 0.8*rng.Float64(),
			}
			cone := colorspace.ToConeSpace(lin)
			s := Strength(rng.Float64())
			out := Correct(cone, deficiency.Simulate(cone, d), d, s)
			assert.InDelta(t, cone.Vec()[impaired], out.Vec()[impaired], 1e-6, d.String())
		}
	}
}

func TestDeuteranopiaPureRed(t *testing.T) {
	red := colorspace.FromBytes(255, 0, 0)
	green := colorspace.ToLinear(colorspace.FromBytes(0, 255, 0))

	out := CorrectColor(red, deficiency.Deutan, Full)
	assert.NotEqual(t, red, out)

	before := PerceivedDistance(colorspace.ToLinear(red), green, deficiency.Deutan)
	after := PerceivedDistance(colorspace.ToLinear(out), green, deficiency.Deutan)
	assert.Greater(t, after, before)
}

func TestCorrectionIncreasesDiscriminability(t *testing.T) {
	// Pairs that sit close together on each deficiency's confusion lines.
	pairs := map[deficiency.Type][2]colorspace.LinearColor{
		deficiency.Protan: {{R: 1}, {G: 1}},
		deficiency.Deutan: {{R: 1}, {G: 1}},
		deficiency.Tritan: {{B: 1}, {G: 1}},
	}
	for d, p := range pairs {
		k := KernelFor(d)
		a := k.Apply(p[0].Vec(), Full).Linear()
		b := k.Apply(p[1].Vec(), Full).Linear()
		before := PerceivedDistance(p[0], p[1], d)
		after := PerceivedDistance(a, b, d)
		assert.Greater(t, after, before, d.String())
	}
}

func TestKernelMatchesCorrect(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for _, d := range deficiency.All() {
		k := KernelFor(d)
		for i := 0; i < 1000; i++ {
			lin := randomLinear(rng)
			s := Strength(rng.Float64())
			cone := colorspace.ToConeSpace(lin)
			want := colorspace.FromConeSpace(Correct(cone, deficiency.Simulate(cone, d), d, s)).Vec()
			got := k.Apply(lin.Vec(), s)
			for c := 0; c < 3; c++ {
				assert.InDelta(t, want[c], got[c], 1e-6)
			}
		}
	}
}

func TestKernelSimulateMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	for _, d := range deficiency.All() {
		k := KernelFor(d)
		for i := 0; i < 200; i++ {
			lin := randomLinear(rng)
			want := deficiency.SimulateLinear(lin, d).Clamp().Vec()
			got := k.Simulate(lin.Vec())
			for c := 0; c < 3; c++ {
				assert.InDelta(t, want[c], got[c], 1e-9)
			}
		}
	}
}

func TestStrength(t *testing.T) {
	tests := []struct {
		in      string
		want    Strength
		wantErr bool
	}{
		{"", Full, false},
		{"0", 0, false},
		{"0.35", 0.35, false},
		{"1", 1, false},
		{"1.5", 0, true},
		{"-0.1", 0, true},
		{"NaN", 0, true},
		{"strong", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrength(tt.in, Full)
			if tt.wantErr {
				var se *StrengthError
				assert.True(t, errors.As(err, &se))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, Strength(1), Strength(4).Clamp())
	assert.Equal(t, Strength(0), Strength(-1).Clamp())
	assert.Equal(t, Strength(0), Strength(math.NaN()).Clamp())
}
