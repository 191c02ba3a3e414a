package interop

import (
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// RequestParams carries the caller-supplied fields for a new request.
type RequestParams struct {
	FromSubsystem        string
	FromPhase            string
	ToSubsystem          string
	Action               string
	Args                 []string
	ParentRunID          string
	MustRead             []string
	ReadBudget           types.ReadBudget
	ExpectedDeliverables []string
	Priority             types.RequestPriority
	Reasoning            string
}

// CreateRequest allocates, validates, and persists a request, and records
// a request_created event on the parent run when one is resolvable. The
// returned request is immutable; superseding it requires a new request.
func CreateRequest(store *Store, ledger *runledger.Ledger, params RequestParams) (*types.InteropRequest, error) {
	request := &types.InteropRequest{
		RequestID:            NewRequestID(),
		FromSubsystem:        params.FromSubsystem,
		FromPhase:            params.FromPhase,
		ToSubsystem:          params.ToSubsystem,
		Action:               params.Action,
		Args:                 params.Args,
		ParentRunID:          params.ParentRunID,
		MustRead:             params.MustRead,
		ReadBudget:           params.ReadBudget,
		ExpectedDeliverables: params.ExpectedDeliverables,
		Priority:             params.Priority,
		Reasoning:            params.Reasoning,
		EnqueuedAt:           types.NowUTC(),
	}
	if request.Priority == "" {
		request.Priority = types.PriorityNormal
	}
	if err := store.SaveRequest(request); err != nil {
		return nil, err
	}

	// The event is best-effort: a request from outside any tracked run is
	// still a valid request.
	if parent, err := ledger.Load(params.ParentRunID); err == nil {
		_ = runledger.AppendEvent(parent.EventsPath, parent.RunID, types.EventRequestCreated,
			map[string]any{
				"request_id":   request.RequestID,
				"to_subsystem": request.ToSubsystem,
				"action":       request.Action,
				"priority":     string(request.Priority),
			})
	}
	return request, nil
}
