package deficiency

import (
	"fmt"
	"strings"
)

// UnknownError is returned when a deficiency selector is not recognised.
type UnknownError struct {
	Value string
}

// Error implements the error interface.
func (e *UnknownError) Error() string {
	return fmt.Sprintf("deficiency: unsupported value %q, choose from %s",
		e.Value, strings.Join(Names(), ", "))
}
