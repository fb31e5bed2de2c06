package recolor

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-daltonize/pkg/codec"
	"github.com/teslashibe/go-daltonize/pkg/daltonize"
	"github.com/teslashibe/go-daltonize/pkg/deficiency"
	"github.com/teslashibe/go-daltonize/pkg/frame"
)

// Kind classifies a failure for the transport layer.
type Kind string

// Failure kinds.
const (
	KindInput    Kind = "input"
	KindResource Kind = "resource"
	KindSession  Kind = "session"
	KindInternal Kind = "internal"
)

// ErrStaleSession is returned when work is submitted to a closed session.
var ErrStaleSession = errors.New("recolor: stale session")

// InputError reports a malformed image or parameter. It is scoped to a
// single request or frame.
type InputError struct {
	Err error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InputError) Unwrap() error {
	return e.Err
}

// ResourceError reports a request that exceeds processing limits.
type ResourceError struct {
	Err error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource limit: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// SessionStateError reports an operation against a session in the wrong
// state. It matches ErrStaleSession when the session is closed.
type SessionStateError struct {
	SessionID string
	State     string
}

// Error implements the error interface.
func (e *SessionStateError) Error() string {
	return fmt.Sprintf("session %s is %s", e.SessionID, e.State)
}

// Is reports closed-session errors as ErrStaleSession.
func (e *SessionStateError) Is(target error) bool {
	return target == ErrStaleSession && e.State == "closed"
}

// Classify wraps errors from the codec and pipeline packages into the
// taxonomy. Already classified errors and nil pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		in  *InputError
		res *ResourceError
		st  *SessionStateError
	)
	if errors.As(err, &in) || errors.As(err, &res) || errors.As(err, &st) || errors.Is(err, ErrStaleSession) {
		return err
	}

	var (
		tooLarge *frame.TooLargeError
		unknown  *deficiency.UnknownError
		strength *daltonize.StrengthError
		decode   *codec.DecodeError
		dataURL  *codec.DataURLError
	)
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, codec.ErrInputTooLarge):
		return &ResourceError{Err: err}
	case errors.As(err, &unknown),
		errors.As(err, &strength),
		errors.As(err, &decode),
		errors.As(err, &dataURL),
		errors.Is(err, frame.ErrEmptyFrame),
		errors.Is(err, codec.ErrEmptyInput),
		errors.Is(err, codec.ErrUnsupportedFormat):
		return &InputError{Err: err}
	}
	return err
}

// KindOf reports the failure kind of err.
func KindOf(err error) Kind {
	err = Classify(err)
	var (
		in  *InputError
		res *ResourceError
	)
	switch {
	case errors.As(err, &in):
		return KindInput
	case errors.As(err, &res):
		return KindResource
	case errors.Is(err, ErrStaleSession):
		return KindSession
	default:
		var st *SessionStateError
		if errors.As(err, &st) {
			return KindSession
		}
	}
	return KindInternal
}
