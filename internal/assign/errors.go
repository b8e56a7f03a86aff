package assign

import (
	"errors"
	"fmt"
)

// ErrChangePending is returned when a category change is requested for
// a transaction whose previous change has not resolved yet. The second
// request is rejected rather than superseding the first; the control is
// disabled for the whole window, so this only fires for callers that
// bypass the control.
var ErrChangePending = errors.New("category change already pending")

// ErrNotBound is returned for a transaction with no bound control.
var ErrNotBound = errors.New("transaction not bound")

// FailureKind classifies why a category update did not commit. All
// kinds roll back the same way; they differ only in the notice shown.
type FailureKind int

const (
	// FailureNetwork: the request never reached the server or the
	// response never arrived in usable form.
	FailureNetwork FailureKind = iota + 1
	// FailureServerRejected: the server answered with a non-2xx status.
	FailureServerRejected
	// FailureApplicationRejected: a 2xx response whose payload signals
	// the operation did not succeed.
	FailureApplicationRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureServerRejected:
		return "server_rejected"
	case FailureApplicationRejected:
		return "application_rejected"
	default:
		return "unknown"
	}
}

// UpdateError is a failed category update. Message is user-facing and
// carries the server's text when one was provided.
type UpdateError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *UpdateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("category update failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("category update failed (%s): %s", e.Kind, e.Message)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Notice is the user-visible text for the failure.
func (e *UpdateError) Notice() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case FailureNetwork:
		return "Network error while updating category. Please try again."
	case FailureServerRejected:
		return "The server could not update the category. Please try again."
	default:
		return "Category update was rejected."
	}
}

// asUpdateError normalizes any updater error into an UpdateError.
// Errors without a classification count as network failures.
func asUpdateError(err error) *UpdateError {
	if err == nil {
		return nil
	}
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpdateError{Kind: FailureNetwork, Err: err}
}
