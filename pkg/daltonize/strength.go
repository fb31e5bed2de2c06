package daltonize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Strength controls how much correction is blended in: 0 is passthrough,
// 1 applies the full redistribution.
type Strength float64

// Common strengths.
const (
	None Strength = 0
	Full Strength = 1
)

// StrengthError is returned for strengths that are not numbers in [0,1].
type StrengthError struct {
	Value string
}

// Error implements the error interface.
func (e *StrengthError) Error() string {
	return fmt.Sprintf("daltonize: strength %s must be a number in [0.0, 1.0]", e.Value)
}

// NewStrength validates v.
func NewStrength(v float64) (Strength, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, &StrengthError{Value: strconv.FormatFloat(v, 'g', -1, 64)}
	}
	return Strength(v), nil
}

// ParseStrength parses and validates a textual strength. An empty string
// yields def.
func ParseStrength(s string, def Strength) (Strength, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &StrengthError{Value: strconv.Quote(s)}
	}
	return NewStrength(v)
}

// Clamp limits s to [0,1]. NaN maps to 0.
func (s Strength) Clamp() Strength {
	switch {
	case s > 1:
		return 1
	case s >= 0:
		return s
	default:
		return 0
	}
}
