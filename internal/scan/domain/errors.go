package domain

import (
	"errors"
	"fmt"
)

// ErrUnreachableServer is returned when both the real probe and its
// random-name control probe fail at the transport layer. It is fatal and
// aborts the whole scan.
var ErrUnreachableServer = errors.New("unable to reach server")

// ErrPageUnstableCode is returned when more than fifty consecutive responses
// carry a status code diverging from the baseline and a random control probe
// confirms the divergence. It is fatal and aborts the whole scan.
var ErrPageUnstableCode = errors.New("the page became unstable (code)")

// NewUnreachableServerError wraps the transport error that triggered
// ErrUnreachableServer so callers can still inspect the underlying cause.
func NewUnreachableServerError(cause error) error {
	return fmt.Errorf("%w: %v", ErrUnreachableServer, cause)
}

// NewPageUnstableCodeError names the target URL in the fatal instability
// error, matching the requirement that the message identify the target.
func NewPageUnstableCodeError(url string) error {
	return fmt.Errorf("%s: %w", url, ErrPageUnstableCode)
}
