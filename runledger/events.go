package runledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pithecene-io/warden/iox"
	"github.com/pithecene-io/warden/types"
)

// AppendEvent appends one entry to a run's events.jsonl. The sequence
// number continues from the last entry in the stream; a lock file next to
// the stream serializes the read-then-append across processes so two
// writers never mint the same sequence number. Each entry is a single
// line written with O_APPEND, so concurrent observers reading the stream
// see only whole lines.
func AppendEvent(path, runID string, eventType types.EventType, payload map[string]any) error {
	lock, err := iox.AcquireLock(path + ".lock")
	if err != nil {
		return err
	}
	defer lock.Release()

	last, err := lastSeq(path)
	if err != nil {
		return err
	}

	event := types.Event{
		RunID:   runID,
		Seq:     last + 1,
		Type:    eventType,
		Ts:      types.NowUTC(),
		Payload: payload,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event stream %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append event to %s: %w", path, err)
	}
	return nil
}

// ReadEvents decodes a run's full event stream. A missing stream reads as
// empty. Lines that fail to decode are skipped rather than poisoning the
// whole stream.
func ReadEvents(path string) ([]types.Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event stream %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var events []types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event types.Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event stream %s: %w", path, err)
	}
	return events, nil
}

func lastSeq(path string) (int64, error) {
	events, err := ReadEvents(path)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Seq, nil
}
