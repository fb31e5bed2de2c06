package colorspace

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferKnownValues(t *testing.T) {
	assert.InDelta(t, 0.0, DecodeComponent(0), 1e-12)
	assert.InDelta(t, 1.0, DecodeComponent(1), 1e-12)
	assert.InDelta(t, 0.21404114, DecodeComponent(0.5), 1e-7)
	assert.InDelta(t, 0.5, EncodeComponent(0.21404114), 1e-7)
	assert.InDelta(t, 0.04045/12.92, DecodeComponent(0.04045), 1e-12)
}

func TestClampOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"negative", -0.3, 0},
		{"above one", 1.7, 1},
		{"inside", 0.25, 0.25},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clamp01(tt.in))
		})
	}

	lin := ToLinear(Color{R: -1, G: 2, B: 0.5})
	assert.Equal(t, 0.0, lin.R)
	assert.Equal(t, 1.0, lin.G)
}

func TestLinearRoundTripWithinOneStep(t *testing.T) {
	for r := 0; r < 256; r += 3 {
		for g := 0; g < 256; g += 5 {
			for b := 0; b < 256; b += 7 {
				c := FromBytes(uint8(r), uint8(g), uint8(b))
				back := FromLinear(ToLinear(c))
				br, bg, bb := back.Bytes()
				require.LessOrEqual(t, absDiff(br, uint8(r)), 1)
				require.LessOrEqual(t, absDiff(bg, uint8(g)), 1)
				require.LessOrEqual(t, absDiff(bb, uint8(b)), 1)
			}
		}
	}
}

func TestConeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		c := Color{R: rng.Float64(), G: rng.Float64(), B: rng.Float64()}
		lin := ToLinear(c)
		back := FromLinear(FromConeSpace(ToConeSpace(lin)))
		assert.InDelta(t, c.R, back.R, 1.0/255)
		assert.InDelta(t, c.G, back.G, 1.0/255)
		assert.InDelta(t, c.B, back.B, 1.0/255)
	}
}

func TestInverseIsIdentity(t *testing.T) {
	id := RGBToLMS().Mul(LMSToRGB())
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			want := 0.0
			if r == c {
				want = 1
			}
			assert.InDelta(t, want, id[r][c], 1e-9)
		}
	}
}

func TestByteLUTRoundTripExact(t *testing.T) {
	for i := 0; i < 256; i++ {
		assert.Equal(t, uint8(i), EncodeByte(DecodeByte(uint8(i))), "byte %d", i)
	}
	assert.Equal(t, uint8(0), EncodeByte(-0.5))
	assert.Equal(t, uint8(255), EncodeByte(3))
}

func TestLUTMatchesExactTransfer(t *testing.T) {
	for i := 0; i < 256; i++ {
		assert.InDelta(t, DecodeComponent(float64(i)/255), DecodeByte(uint8(i)), 1e-12)
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
