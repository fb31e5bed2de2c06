package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrEmptyInput is returned when there are no bytes to decode.
	ErrEmptyInput = errors.New("codec: empty input")

	// ErrUnsupportedFormat is returned when the payload is not a known image type.
	ErrUnsupportedFormat = errors.New("codec: unsupported image format")

	// ErrInputTooLarge is returned when the encoded payload exceeds the byte limit.
	ErrInputTooLarge = errors.New("codec: encoded input too large")

	// ErrNativeUnavailable is returned when the OpenCV backend was not compiled in.
	ErrNativeUnavailable = errors.New("codec: native decoder not built (use -tags gocv)")
)

// DecodeError wraps a failure of the underlying image decoder.
type DecodeError struct {
	Format Format
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("codec: decode failed: %v", e.Err)
	}
	return fmt.Sprintf("codec: decode %s failed: %v", e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DataURLError is returned for malformed data URLs and base64 payloads.
type DataURLError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DataURLError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: invalid data url: %s: %v", e.Reason, e.Err)
	}
	return "codec: invalid data url: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *DataURLError) Unwrap() error {
	return e.Err
}
