package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/warden/adapter"
)

func testEvent() *adapter.RunFinalizedEvent {
	return &adapter.RunFinalizedEvent{
		EventType:   "run_finalized",
		RunID:       "run-20260207T120000-abcd1234",
		Subsystem:   "tdd",
		Phase:       "implement",
		Status:      "ok",
		CapsulePath: "runs/run-20260207T120000-abcd1234/capsules/tdd_implement.md",
		StartedAt:   "2026-02-07T12:00:00Z",
	}
}

// asyncReceive starts a goroutine that reads one message from the subscriber
// and sends it to the returned channel. Must be called BEFORE Publish to
// avoid deadlocking miniredis's synchronous pub/sub delivery.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{} // unreachable
	}
}

func TestPublish_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)

	var received adapter.RunFinalizedEvent
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.RunID != "run-20260207T120000-abcd1234" {
		t.Errorf("unexpected run id %s", received.RunID)
	}
	if received.EventType != "run_finalized" {
		t.Errorf("expected run_finalized, got %s", received.EventType)
	}
	if received.Status != "ok" {
		t.Errorf("expected ok, got %s", received.Status)
	}
}

func TestPublish_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: "ops:runs", Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe("ops:runs")
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msg := waitMessage(t, ch)
	if msg.Channel != "ops:runs" {
		t.Errorf("message on channel %s, want ops:runs", msg.Channel)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty URL should fail")
	}
	if _, err := New(Config{URL: "not-a-redis-url"}); err == nil {
		t.Error("invalid URL should fail")
	}
	if _, err := New(Config{URL: "redis://localhost:6379", Retries: -1}); err == nil {
		t.Error("negative retries should fail")
	}
}
