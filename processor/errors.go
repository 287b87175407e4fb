package processor

import "gitlab.com/NebulousLabs/errors"

// ErrUnknownProcessor is returned by Registry.Load when no factory is
// registered under the requested name.
var ErrUnknownProcessor = errors.New("processor: unknown processor name")

// ProcessingError is returned by a Processor's ProcessTask to carry an
// explicit requeue decision, mirroring the original ProcessingException.
// Any other error is checked in with requeue=true, leaving the decision
// to the Policy; DefaultPolicy never requeues such Exception failures.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (e *ProcessingError) Error() string { return e.Err.Error() }
func (e *ProcessingError) Unwrap() error { return e.Err }

// NewProcessingError wraps err as a ProcessingError with an explicit
// requeue decision.
func NewProcessingError(err error, requeue bool) *ProcessingError {
	return &ProcessingError{Err: err, Requeue: requeue}
}
