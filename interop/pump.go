package interop

import (
	"context"
	"errors"

	"github.com/pithecene-io/warden/types"
)

// ErrQueueEmpty is returned by PumpOnce when no request is pending.
var ErrQueueEmpty = errors.New("no pending interop requests")

// PumpOnce dispatches a single request and returns its response: the named
// request when requestID is non-empty, otherwise the oldest pending
// request of the highest priority. This is the "fire once, poll response
// file" pattern for long-running phases: callers re-invoke the pump rather
// than holding a dispatch open.
func (r *Router) PumpOnce(ctx context.Context, requestID string) (*types.InteropResponse, error) {
	if requestID != "" {
		return r.Dispatch(ctx, requestID)
	}

	pending, err := r.store.PendingRequests()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrQueueEmpty
	}
	return r.Dispatch(ctx, pending[0].RequestID)
}
