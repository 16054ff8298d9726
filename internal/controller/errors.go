package controller

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateCapability is returned when a capability name is registered
	// twice.
	ErrDuplicateCapability = errors.New("capability already registered")

	// ErrUnknownCapability is returned by Dispatch when the requested
	// capability name is not in the registry.
	ErrUnknownCapability = errors.New("unknown capability")
)

// InvalidParamsError reports a request whose parameters do not satisfy the
// capability's expectations. Dispatch fills in Capability before returning.
type InvalidParamsError struct {
	Capability string
	Field      string
	Reason     string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params for %q: field %q: %s", e.Capability, e.Field, e.Reason)
}

// StaleElementError reports an element index that is absent from the current
// page snapshot. The message is phrased for the decision oracle, which is
// expected to retry with a fresh snapshot or choose a different action.
type StaleElementError struct {
	Index int
}

func (e *StaleElementError) Error() string {
	return fmt.Sprintf("Element with index %d does not exist - retry or use alternative actions.", e.Index)
}
