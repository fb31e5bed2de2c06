package frame

import (
	"errors"
	"fmt"
)

// ErrEmptyFrame is returned for frames without pixels.
var ErrEmptyFrame = errors.New("frame: zero-sized frame")

// TooLargeError is returned when a frame exceeds the processor's pixel budget.
type TooLargeError struct {
	Width     int
	Height    int
	MaxPixels int
}

// Error implements the error interface.
func (e *TooLargeError) Error() string {
	return fmt.Sprintf("frame: %dx%d exceeds limit of %d pixels", e.Width, e.Height, e.MaxPixels)
}
