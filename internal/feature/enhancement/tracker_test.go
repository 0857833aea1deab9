package enhancement

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/featurereg"
	"github.com/toolasha/agent/internal/formula"
	"github.com/toolasha/agent/internal/interceptor"
	"github.com/toolasha/agent/internal/storage"
)

type fakeHub struct {
	handlers map[string][]interceptor.HandlerFunc
}

func newFakeHub() *fakeHub { return &fakeHub{handlers: make(map[string][]interceptor.HandlerFunc)} }

func (f *fakeHub) Subscribe(msgType string, fn interceptor.HandlerFunc) {
	f.handlers[msgType] = append(f.handlers[msgType], fn)
}

func newTestTracker(t *testing.T) (*Tracker, *character.Manager) {
	t.Helper()
	hub := newFakeHub()
	charMgr := character.New(hub, zap.NewNop())
	kv := storage.NewMemKV()
	f, err := formula.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(f.Close)

	tr := New(charMgr, kv, f, zap.NewNop())
	if err := tr.Initialize(context.Background(), featurereg.NewResources()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return tr, charMgr
}

func TestStartSessionCreatesNewSession(t *testing.T) {
	tr, _ := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 5, 10, 0)
	if s.State != StateTracking {
		t.Fatalf("expected tracking state, got %v", s.State)
	}
	if s.CurrentLevel != 5 {
		t.Fatalf("expected current level 5, got %d", s.CurrentLevel)
	}
}

func TestSuccessfulAttemptAdvancesLevel(t *testing.T) {
	tr, charMgr := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 5, 10, 0)
	tr.RecordPendingAttempt(s.ID)

	charMgr.Emit(character.EventItemsUpdated, map[string]any{
		"itemsUpdated": []any{
			map[string]any{"itemHrid": "/items/cheese_sword", "itemLocationHrid": "/item_locations/inventory", "enhancementLevel": float64(6), "count": float64(1)},
		},
	})

	sessions := tr.Sessions()
	got := sessions[s.ID]
	if got.CurrentLevel != 6 {
		t.Fatalf("expected level 6 after success, got %d", got.CurrentLevel)
	}
	if got.TotalSuccesses != 1 {
		t.Fatalf("expected 1 success, got %d", got.TotalSuccesses)
	}
	if got.TotalXP <= 0 {
		t.Fatal("expected positive XP awarded")
	}
}

func TestFailedAttemptKeepsLevel(t *testing.T) {
	tr, charMgr := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 5, 10, 0)
	tr.RecordPendingAttempt(s.ID)

	charMgr.Emit(character.EventItemsUpdated, map[string]any{
		"itemsUpdated": []any{
			map[string]any{"itemHrid": "/items/cheese_sword", "itemLocationHrid": "/item_locations/inventory", "enhancementLevel": float64(5), "count": float64(1)},
		},
	})

	sessions := tr.Sessions()
	got := sessions[s.ID]
	if got.CurrentLevel != 5 {
		t.Fatalf("expected level to stay 5 after failure, got %d", got.CurrentLevel)
	}
	if got.TotalFailures != 1 {
		t.Fatalf("expected 1 failure, got %d", got.TotalFailures)
	}
}

func TestSessionCompletesAtTargetLevel(t *testing.T) {
	tr, charMgr := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 9, 10, 0)
	tr.RecordPendingAttempt(s.ID)

	charMgr.Emit(character.EventItemsUpdated, map[string]any{
		"itemsUpdated": []any{
			map[string]any{"itemHrid": "/items/cheese_sword", "itemLocationHrid": "/item_locations/inventory", "enhancementLevel": float64(10), "count": float64(1)},
		},
	})

	sessions := tr.Sessions()
	got := sessions[s.ID]
	if got.State != StateCompleted {
		t.Fatalf("expected completed state at target level, got %v", got.State)
	}
	if got.EndTime == nil {
		t.Fatal("expected EndTime to be set on completion")
	}
}

func TestResumeMatchesExistingSession(t *testing.T) {
	tr, charMgr := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 9, 10, 0)
	tr.RecordPendingAttempt(s.ID)
	charMgr.Emit(character.EventItemsUpdated, map[string]any{
		"itemsUpdated": []any{
			map[string]any{"itemHrid": "/items/cheese_sword", "itemLocationHrid": "/item_locations/inventory", "enhancementLevel": float64(10), "count": float64(1)},
		},
	})

	resumed := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 10, 10, 0)
	if resumed.ID != s.ID {
		t.Fatal("expected resume to reuse the existing session id")
	}
	if resumed.TotalSuccesses != 1 {
		t.Fatalf("expected attempt history preserved across resume, got %d successes", resumed.TotalSuccesses)
	}
}

func TestExtendSessionReopensCompletedSession(t *testing.T) {
	tr, charMgr := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 9, 10, 0)
	tr.RecordPendingAttempt(s.ID)

	// Complete the session through the items_updated path, then extend it.
	charMgr.Emit(character.EventItemsUpdated, map[string]any{
		"itemsUpdated": []any{
			map[string]any{"itemHrid": "/items/cheese_sword", "itemLocationHrid": "/item_locations/inventory", "enhancementLevel": float64(10), "count": float64(1)},
		},
	})

	extended, ok := tr.ExtendSession(s.ID, 12)
	if !ok {
		t.Fatal("expected ExtendSession to reopen the completed session")
	}
	if extended.State != StateTracking {
		t.Fatalf("expected tracking state after extend, got %v", extended.State)
	}
}

func TestPredictPopulatesSessionPredictions(t *testing.T) {
	tr, _ := newTestTracker(t)

	s := tr.StartSession("/items/cheese_sword", "Cheese Sword", "/item_locations/inventory", "/actions/enhancing/cheese_sword", 0, 5, 0)

	predictions, ok := tr.Predict(s.ID)
	if !ok {
		t.Fatal("expected Predict to find the session")
	}
	if predictions.ExpectedAttempts <= 0 {
		t.Fatalf("expected positive ExpectedAttempts, got %v", predictions.ExpectedAttempts)
	}
	if predictions.SuccessMultiplier <= 0 {
		t.Fatalf("expected a positive default SuccessMultiplier, got %v", predictions.SuccessMultiplier)
	}

	sessions := tr.Sessions()
	if sessions[s.ID].Predictions == nil {
		t.Fatal("expected Predict to persist predictions onto the session")
	}
}

func TestPredictUnknownSessionReturnsFalse(t *testing.T) {
	tr, _ := newTestTracker(t)
	if _, ok := tr.Predict("missing"); ok {
		t.Fatal("expected Predict on an unknown session id to return false")
	}
}
