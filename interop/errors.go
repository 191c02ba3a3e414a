package interop

import (
	"errors"
	"fmt"
)

// ErrRequestNotFound is returned when no request record exists for an id.
var ErrRequestNotFound = errors.New("interop request not found")

// ErrAlreadyDispatched is the sentinel for the write-once response rule:
// dispatching a request that already has a response. Superseding requires
// a new request, never a second response.
var ErrAlreadyDispatched = errors.New("request already dispatched")

// AlreadyDispatchedError reports the conflicting dispatch.
type AlreadyDispatchedError struct {
	RequestID string
	// AnsweredBy is the child run recorded in the existing response.
	AnsweredBy string
}

func (e *AlreadyDispatchedError) Error() string {
	if e.AnsweredBy == "" {
		return fmt.Sprintf("request %s already dispatched", e.RequestID)
	}
	return fmt.Sprintf("request %s already dispatched (answered by run %s)", e.RequestID, e.AnsweredBy)
}

// Is matches the ErrAlreadyDispatched sentinel.
func (e *AlreadyDispatchedError) Is(target error) bool {
	return target == ErrAlreadyDispatched
}

// ErrRoutingAmbiguous marks a failed from_phase inference. Surfaced to the
// requester as a blocked response, never as a process crash.
var ErrRoutingAmbiguous = errors.New("routing ambiguous: cannot infer from_phase")
