package session

import "errors"

var (
	// ErrNoParams is returned for frames sent before any deficiency was chosen.
	ErrNoParams = errors.New("session: no deficiency selected yet")

	// ErrTooManySessions is returned when the registry is full.
	ErrTooManySessions = errors.New("session: too many concurrent sessions")
)
