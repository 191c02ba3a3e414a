package runledger

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/warden/types"
)

// ErrRunNotFound is returned when no run record exists for an id.
var ErrRunNotFound = errors.New("run not found")

// ErrAlreadyFinalized is the sentinel for finalization idempotency
// violations: a terminal run re-finalized with a different status.
var ErrAlreadyFinalized = errors.New("run already finalized")

// AlreadyFinalizedError reports the conflicting statuses.
type AlreadyFinalizedError struct {
	RunID     string
	Current   types.RunStatus
	Requested types.RunStatus
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("run %s already finalized as %s, cannot finalize as %s",
		e.RunID, e.Current, e.Requested)
}

// Is matches the ErrAlreadyFinalized sentinel.
func (e *AlreadyFinalizedError) Is(target error) bool {
	return target == ErrAlreadyFinalized
}

// ErrArtifactExists is returned when a write-once artifact (capsule or
// manifest) already exists for the run.
var ErrArtifactExists = errors.New("artifact already written")
