package surface

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRegisterReceivesEveryBatch(t *testing.T) {
	o := NewObserver(zap.NewNop())
	var batches []Batch
	o.Register(func(b Batch) { batches = append(batches, b) }, RegisterOptions{})

	o.Publish(Batch{Added: []Element{{ID: "a"}}})
	o.Publish(Batch{Added: []Element{{ID: "b"}}})

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
}

func TestOnTagInvokedOncePerMatchingElement(t *testing.T) {
	o := NewObserver(zap.NewNop())
	var matched []Element
	o.OnTag("run-log-entry", func(e Element) { matched = append(matched, e) })

	o.Publish(Batch{Added: []Element{
		{ID: "1", Classes: []string{"run-log-entry"}},
		{ID: "2", Classes: []string{"other"}},
		{ID: "3", Classes: []string{"run-log-entry", "extra"}},
	}})

	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matched), matched)
	}
	if matched[0].ID != "1" || matched[1].ID != "3" {
		t.Fatalf("unexpected match order: %+v", matched)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	o := NewObserver(zap.NewNop())
	called := false
	h := o.Register(func(Batch) { called = true }, RegisterOptions{})

	o.Unregister(h)
	o.Unregister(h) // must not panic or error

	o.Publish(Batch{Added: []Element{{ID: "x"}}})
	if called {
		t.Fatal("expected unregistered subscriber to not be invoked")
	}
}

func TestPanickingSubscriberDoesNotStopOthers(t *testing.T) {
	o := NewObserver(zap.NewNop())
	secondCalled := false
	o.Register(func(Batch) { panic("boom") }, RegisterOptions{})
	o.Register(func(Batch) { secondCalled = true }, RegisterOptions{})

	o.Publish(Batch{Added: []Element{{ID: "x"}}})

	if !secondCalled {
		t.Fatal("expected second subscriber to run despite first panicking")
	}
}

func TestDebouncedSubscriberCoalescesBatches(t *testing.T) {
	o := NewObserver(zap.NewNop())
	var received []Batch
	done := make(chan struct{})
	o.Register(func(b Batch) {
		received = append(received, b)
		close(done)
	}, RegisterOptions{Debounce: true, DebounceDelay: 30 * time.Millisecond})

	o.Publish(Batch{Added: []Element{{ID: "1"}}})
	o.Publish(Batch{Added: []Element{{ID: "2"}}})
	o.Publish(Batch{Added: []Element{{ID: "3"}}})

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for debounced callback")
	}

	if len(received) != 1 {
		t.Fatalf("expected exactly one coalesced invocation, got %d", len(received))
	}
	if len(received[0].Added) != 3 {
		t.Fatalf("expected 3 coalesced elements, got %d", len(received[0].Added))
	}
}
