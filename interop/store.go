// Package interop implements the request/response handoff protocol between
// phases: request creation and persistence, the dispatch router, and the
// queue pump. Requests and responses are plain JSON files under
// <root>/interop, so any process can observe the protocol without the
// router running.
package interop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// Store persists requests and responses under one orchestration root.
type Store struct {
	root string
}

// NewStore creates a store rooted at root. Records live under
// <root>/interop/requests and <root>/interop/responses.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// NewRequestID produces a collision-free, time-ordered request identifier.
func NewRequestID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("rq-%s-%s", ts, suffix)
}

func (s *Store) requestsDir() string {
	return filepath.Join(s.root, "interop", "requests")
}

func (s *Store) responsesDir() string {
	return filepath.Join(s.root, "interop", "responses")
}

// RequestPath returns the on-disk location of a request record.
func (s *Store) RequestPath(requestID string) string {
	return filepath.Join(s.requestsDir(), requestID+".json")
}

// ResponsePath returns the on-disk location of a response record.
func (s *Store) ResponsePath(requestID string) string {
	return filepath.Join(s.responsesDir(), requestID+".json")
}

// DispatchLockPath returns the lock file serializing dispatch of one
// request across pump processes.
func (s *Store) DispatchLockPath(requestID string) string {
	return filepath.Join(s.root, "interop", "locks", requestID+".lock")
}

// SaveRequest validates and persists a request record. Requests are
// immutable: overwriting an existing record is an error.
func (s *Store) SaveRequest(request *types.InteropRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	path := s.RequestPath(request.RequestID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("request %s already persisted", request.RequestID)
	}
	data, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return fmt.Errorf("encode request %s: %w", request.RequestID, err)
	}
	return iox.AtomicWrite(path, append(data, '\n'), 0o644)
}

// LoadRequest reads a request record by id.
func (s *Store) LoadRequest(requestID string) (*types.InteropRequest, error) {
	data, err := os.ReadFile(s.RequestPath(requestID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("read request %s: %w", requestID, err)
	}
	var request types.InteropRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", requestID, err)
	}
	return &request, nil
}

// SaveResponse persists a response record. Write-once: an existing
// response for the same request id is AlreadyDispatchedError. The record
// is created exclusively, so of two racing writers exactly one wins and
// the loser's response never replaces the winner's.
func (s *Store) SaveResponse(response *types.InteropResponse) error {
	if err := response.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return fmt.Errorf("encode response %s: %w", response.RequestID, err)
	}
	err = iox.ExclusiveWrite(s.ResponsePath(response.RequestID), append(data, '\n'), 0o644)
	if errors.Is(err, os.ErrExist) {
		dispatched := &AlreadyDispatchedError{RequestID: response.RequestID}
		if existing, loadErr := s.LoadResponse(response.RequestID); loadErr == nil {
			dispatched.AnsweredBy = existing.RunID
		}
		return dispatched
	}
	return err
}

// LoadResponse reads the response for a request id, if one exists.
func (s *Store) LoadResponse(requestID string) (*types.InteropResponse, error) {
	data, err := os.ReadFile(s.ResponsePath(requestID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no response for %s", ErrRequestNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", requestID, err)
	}
	var response types.InteropResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", requestID, err)
	}
	return &response, nil
}

// Answered reports whether a response exists for the request id.
func (s *Store) Answered(requestID string) bool {
	_, err := os.Stat(s.ResponsePath(requestID))
	return err == nil
}

// ListRequests returns all persisted requests sorted by id (time-ordered
// by construction).
func (s *Store) ListRequests() ([]*types.InteropRequest, error) {
	entries, err := os.ReadDir(s.requestsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read requests dir: %w", err)
	}

	var requests []*types.InteropRequest
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		request, err := s.LoadRequest(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		requests = append(requests, request)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].RequestID < requests[j].RequestID })
	return requests, nil
}

// PendingRequests returns unanswered requests ordered by priority (high
// first) then by request id, so the pump always picks the oldest request
// of the highest pending priority.
func (s *Store) PendingRequests() ([]*types.InteropRequest, error) {
	all, err := s.ListRequests()
	if err != nil {
		return nil, err
	}
	var pending []*types.InteropRequest
	for _, request := range all {
		if !s.Answered(request.RequestID) {
			pending = append(pending, request)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		pi, pj := priorityRank(pending[i].Priority), priorityRank(pending[j].Priority)
		if pi != pj {
			return pi > pj
		}
		return pending[i].RequestID < pending[j].RequestID
	})
	return pending, nil
}

func priorityRank(p types.RequestPriority) int {
	switch p {
	case types.PriorityHigh:
		return 2
	case types.PriorityLow:
		return 0
	default:
		return 1
	}
}
