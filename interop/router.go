package interop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/log"
	"github.com/pithecene-io/warden/runledger"
	"github.com/pithecene-io/warden/types"
)

// PhaseResult is what a phase execution reports back to the router.
type PhaseResult struct {
	// Status is the terminal status of the child run.
	Status types.RunStatus
	// Deliverables are the paths produced for the requester.
	Deliverables []string
	// Notes is one line of free-text context.
	Notes string
	// Pointers are evidence paths for the capsule.
	Pointers []string
}

// PhaseRunner executes one phase on behalf of a dispatched request. The
// run record, the originating request, and the effective (already merged)
// read budget are all resolved before the runner is invoked. A runner that
// writes its own capsule/manifest through the ledger wins; otherwise the
// router writes minimal ones from the result.
type PhaseRunner interface {
	Run(ctx context.Context, run *types.RunMeta, request *types.InteropRequest, budget types.ReadBudget) (PhaseResult, error)
}

// PhaseRunnerFunc adapts a function to the PhaseRunner interface.
type PhaseRunnerFunc func(ctx context.Context, run *types.RunMeta, request *types.InteropRequest, budget types.ReadBudget) (PhaseResult, error)

// Run implements PhaseRunner.
func (f PhaseRunnerFunc) Run(ctx context.Context, run *types.RunMeta, request *types.InteropRequest, budget types.ReadBudget) (PhaseResult, error) {
	return f(ctx, run, request, budget)
}

// PhaseDefaults maps "<subsystem>.<phase>" (or bare "<phase>") to that
// phase's default read budget. The stricter of a request's declared budget
// and the target default always wins.
type PhaseDefaults map[string]types.ReadBudget

// budgetFor resolves the default budget for a target, most specific key
// first.
func (d PhaseDefaults) budgetFor(subsystem, phase string) types.ReadBudget {
	if b, ok := d[subsystem+"."+phase]; ok {
		return b
	}
	if b, ok := d[phase]; ok {
		return b
	}
	return types.ReadBudget{}
}

// Router dispatches persisted requests: exactly one child run per
// dispatch, one write-once response per request. There is no adjacency
// restriction; any phase may target any other, and request chains may
// close cycles across subsystems.
type Router struct {
	store    *Store
	ledger   *runledger.Ledger
	runner   PhaseRunner
	defaults PhaseDefaults
	logger   *log.Logger
}

// NewRouter builds a router. defaults may be nil when no phase declares a
// default budget.
func NewRouter(store *Store, ledger *runledger.Ledger, runner PhaseRunner, defaults PhaseDefaults, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.NewPlainLogger()
	}
	return &Router{store: store, ledger: ledger, runner: runner, defaults: defaults, logger: logger}
}

// Dispatch executes a persisted request synchronously and returns the
// response it wrote. Dispatching an already-answered request is
// ErrAlreadyDispatched and never creates a second child run. Inference and
// routing failures produce a blocked response, not an error.
func (r *Router) Dispatch(ctx context.Context, requestID string) (*types.InteropResponse, error) {
	request, err := r.store.LoadRequest(requestID)
	if err != nil {
		return nil, err
	}

	// One dispatcher per request at a time. The lock closes the window
	// between the answered check and the response write where two pumps
	// could each create a child run; the store's write-once response is
	// the backstop for anything that bypasses the lock.
	lock, err := iox.AcquireLock(r.store.DispatchLockPath(requestID))
	if err != nil {
		return nil, fmt.Errorf("lock dispatch of %s: %w", requestID, err)
	}
	defer lock.Release()

	if existing, err := r.store.LoadResponse(requestID); err == nil {
		return nil, &AlreadyDispatchedError{RequestID: requestID, AnsweredBy: existing.RunID}
	}

	if request.FromPhase == "" {
		phase, err := r.inferFromPhase(request)
		if err != nil {
			r.logger.Warn("from_phase inference failed", map[string]any{
				"request_id": requestID, "parent_run_id": request.ParentRunID,
			})
			return r.writeBlocked(request, fmt.Sprintf("cannot infer from_phase: %v", err))
		}
		request.FromPhase = phase
	}

	phase, err := targetPhase(request)
	if err != nil {
		return r.writeBlocked(request, err.Error())
	}

	effective := request.ReadBudget.Merge(r.defaults.budgetFor(request.ToSubsystem, phase))

	// Exactly one child run per dispatch, parented to the requester's run.
	parentID := request.ParentRunID
	child, err := r.ledger.Create(request.ToSubsystem, phase, &parentID)
	if err != nil {
		return nil, err
	}
	r.logger.Info("dispatching request", map[string]any{
		"request_id": requestID,
		"child_run":  child.RunID,
		"target":     request.ToSubsystem + "." + phase,
	})

	result, runErr := r.runner.Run(ctx, child, request, effective)
	if runErr != nil {
		result = PhaseResult{
			Status: types.RunStatusFailed,
			Notes:  runErr.Error(),
		}
	}
	if !result.Status.Terminal() {
		result.Status = types.RunStatusFailed
		if result.Notes == "" {
			result.Notes = "phase runner returned a non-terminal status"
		}
	}

	if err := r.sealChildRun(child.RunID, request, result); err != nil {
		return nil, err
	}

	sealed, err := r.ledger.Load(child.RunID)
	if err != nil {
		return nil, err
	}
	response := &types.InteropResponse{
		RequestID:    requestID,
		Status:       responseStatus(result.Status),
		RunID:        child.RunID,
		CapsulePath:  sealed.CapsulePath,
		ManifestPath: sealed.ManifestPath,
		Deliverables: result.Deliverables,
		Notes:        result.Notes,
		CompletedAt:  types.NowUTC(),
	}
	if err := r.writeResponse(request, response); err != nil {
		return nil, err
	}
	return response, nil
}

// inferFromPhase resolves the requesting phase from the parent run's
// record, falling back to its event trail.
func (r *Router) inferFromPhase(request *types.InteropRequest) (string, error) {
	parent, err := r.ledger.Load(request.ParentRunID)
	if err == nil && parent.Phase != "" {
		return parent.Phase, nil
	}

	// The run record may be gone while its event stream survives.
	events, evErr := runledger.ReadEvents(r.ledger.RunDir(request.ParentRunID) + "/events.jsonl")
	if evErr == nil {
		for _, event := range events {
			if event.Type != types.EventRunCreated {
				continue
			}
			if phase, ok := event.Payload["phase"].(string); ok && phase != "" {
				return phase, nil
			}
		}
	}
	return "", fmt.Errorf("%w: parent run %s unresolvable", ErrRoutingAmbiguous, request.ParentRunID)
}

// sealChildRun writes minimal artifacts when the runner did not, then
// finalizes the run.
func (r *Router) sealChildRun(runID string, request *types.InteropRequest, result PhaseResult) error {
	meta, err := r.ledger.Load(runID)
	if err != nil {
		return err
	}

	if meta.CapsulePath == "" {
		reason := ""
		if result.Status != types.RunStatusOK {
			reason = result.Notes
			if reason == "" {
				reason = "phase did not complete"
			}
		}
		pointers := result.Pointers
		if pointers == nil {
			pointers = result.Deliverables
		}
		if _, err := r.ledger.WriteCapsule(runID, runledger.Capsule{
			Outcome:  result.Status,
			Pointers: pointers,
			Reason:   reason,
		}); err != nil && !errors.Is(err, runledger.ErrArtifactExists) {
			return err
		}
	}
	if meta.ManifestPath == "" {
		entries := make([]runledger.ArtifactEntry, 0, len(result.Deliverables))
		for _, path := range result.Deliverables {
			if entry, err := runledger.HashArtifact(path); err == nil {
				entries = append(entries, entry)
			} else {
				entries = append(entries, runledger.ArtifactEntry{Path: path})
			}
		}
		if _, err := r.ledger.WriteManifest(runID, entries, request.MustRead); err != nil && !errors.Is(err, runledger.ErrArtifactExists) {
			return err
		}
	}
	return r.ledger.Finalize(runID, result.Status)
}

// writeBlocked persists a blocked response for a request that could not be
// routed. No child run exists in this case.
func (r *Router) writeBlocked(request *types.InteropRequest, notes string) (*types.InteropResponse, error) {
	response := &types.InteropResponse{
		RequestID:   request.RequestID,
		Status:      types.ResponseBlocked,
		Notes:       notes,
		CompletedAt: types.NowUTC(),
	}
	if err := r.writeResponse(request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (r *Router) writeResponse(request *types.InteropRequest, response *types.InteropResponse) error {
	if err := r.store.SaveResponse(response); err != nil {
		return err
	}
	// Best-effort event on the requester's run.
	if parent, err := r.ledger.Load(request.ParentRunID); err == nil {
		_ = runledger.AppendEvent(parent.EventsPath, parent.RunID, types.EventResponseWritten,
			map[string]any{
				"request_id": response.RequestID,
				"status":     string(response.Status),
				"run_id":     response.RunID,
			})
	}
	return nil
}

func responseStatus(status types.RunStatus) types.ResponseStatus {
	switch status {
	case types.RunStatusOK:
		return types.ResponseOK
	case types.RunStatusBlocked:
		return types.ResponseBlocked
	default:
		return types.ResponseFailed
	}
}

// targetPhase extracts the phase from the request action. Actions are
// "<subsystem>.<phase>"; a bare action is taken as the phase itself.
func targetPhase(request *types.InteropRequest) (string, error) {
	action := request.Action
	if i := strings.IndexByte(action, '.'); i >= 0 {
		prefix, phase := action[:i], action[i+1:]
		if phase == "" {
			return "", fmt.Errorf("action %q has an empty phase", action)
		}
		if prefix != request.ToSubsystem {
			return "", fmt.Errorf("action %q does not match target subsystem %q", action, request.ToSubsystem)
		}
		return phase, nil
	}
	return action, nil
}
