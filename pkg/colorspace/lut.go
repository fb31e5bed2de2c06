package colorspace

// Lookup tables for the 8-bit hot path. decodeLUT maps every sRGB byte to
// linear light; encodeLUT maps linear light quantized to 12 bits back to an
// sRGB byte. 12 bits is enough for every byte to survive a round trip.
const encodeSteps = 4095

var (
	decodeLUT [256]float64
	encodeLUT [encodeSteps + 1]uint8
)

func init() {
	for i := range decodeLUT {
		decodeLUT[i] = DecodeComponent(float64(i) / 255)
	}
	for i := range encodeLUT {
		encodeLUT[i] = quantize(EncodeComponent(float64(i) / encodeSteps))
	}
}

// DecodeByte converts an sRGB byte to linear light using the lookup table.
func DecodeByte(b uint8) float64 {
	return decodeLUT[b]
}

// EncodeByte converts linear light to an sRGB byte using the lookup table.
// Values outside [0,1] are clamped.
func EncodeByte(l float64) uint8 {
	return encodeLUT[int(Clamp01(l)*encodeSteps+0.5)]
}
