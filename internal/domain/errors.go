package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrMissingSerialID indicates an authorization request without a
	// device identifier. No state is mutated.
	ErrMissingSerialID = errors.New("missing serial_id")

	// ErrSessionNotFound means the requested session id does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// BridgeError wraps a bridge process failure together with the output the
// process produced before it died.
type BridgeError struct {
	Op     string
	Output string
	Err    error
}

func (e *BridgeError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("bridge %s: %v (output: %s)", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("bridge %s: %v", e.Op, e.Err)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}
