package profit

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/featurereg"
	"github.com/toolasha/agent/internal/formula"
	"github.com/toolasha/agent/internal/interceptor"
)

type fakeHub struct {
	handlers map[string][]interceptor.HandlerFunc
}

func newFakeHub() *fakeHub { return &fakeHub{handlers: make(map[string][]interceptor.HandlerFunc)} }

func (f *fakeHub) Subscribe(msgType string, fn interceptor.HandlerFunc) {
	f.handlers[msgType] = append(f.handlers[msgType], fn)
}

// newTestManager wires a character.Manager against a fakeHub and drives its
// init_character_data / init_client_data handlers directly (the same two
// frames the real interceptor delivers on boot) so CurrentActions() and
// ActionDetails() reflect real Manager state rather than a bypassed event.
func newTestManager(t *testing.T) (*character.Manager, *fakeHub) {
	t.Helper()
	hub := newFakeHub()
	mgr := character.New(hub, zap.NewNop())

	dispatch(hub, "init_character_data", map[string]any{"characterId": "C1"})
	dispatch(hub, "init_client_data", map[string]any{
		"actionDetailMap": map[string]any{
			"/actions/crafting/cheese_sword": map[string]any{
				"baseTimeCost": float64(10_000_000_000), // 10s, in nanoseconds
				"inputItems": []any{
					map[string]any{"itemHrid": "/items/cheese", "count": float64(2)},
				},
				"outputItems": []any{
					map[string]any{"itemHrid": "/items/cheese_sword", "count": float64(1)},
				},
			},
		},
		"itemDetailMap": map[string]any{},
	})
	return mgr, hub
}

func dispatch(hub *fakeHub, msgType string, frame map[string]any) {
	for _, fn := range hub.handlers[msgType] {
		fn(msgType, frame)
	}
}

func queueAction(hub *fakeHub, actionHrid string) {
	dispatch(hub, "actions_updated", map[string]any{
		"actions": []any{
			map[string]any{"actionHrid": actionHrid},
		},
	})
}

func TestRecomputeProfitableAction(t *testing.T) {
	mgr, hub := newTestManager(t)
	queueAction(hub, "/actions/crafting/cheese_sword")

	prices := &fakePrices{prices: map[string]float64{
		"/items/cheese":       10,
		"/items/cheese_sword": 50,
	}}
	f, err := formula.NewEngine(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(f.Close)
	calc := NewCalculator(prices, NewItemDictionaryContainers(mgr), f, zap.NewNop())

	tr := New(mgr, prices, calc, zap.NewNop())
	if err := tr.Initialize(context.Background(), featurereg.NewResources()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	results := tr.Results()
	got, ok := results["/actions/crafting/cheese_sword"]
	if !ok {
		t.Fatal("expected a result for the queued action")
	}
	if got.HasMissingPrices {
		t.Fatal("expected no missing prices")
	}
	// revenue 50/action, cost 20/action, 10s/action -> 360 actions/hr
	if got.ProfitPerHour <= 0 {
		t.Fatalf("expected positive profit per hour, got %v", got.ProfitPerHour)
	}
}

func TestRecomputeMissingPriceFlagsAction(t *testing.T) {
	mgr, hub := newTestManager(t)
	queueAction(hub, "/actions/crafting/cheese_sword")

	prices := &fakePrices{prices: map[string]float64{}}
	tr := New(mgr, prices, nil, zap.NewNop())
	if err := tr.Initialize(context.Background(), featurereg.NewResources()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	got := tr.Results()["/actions/crafting/cheese_sword"]
	if !got.HasMissingPrices {
		t.Fatal("expected missing prices when the market has no data")
	}
}

func TestRecomputeSkipsUnknownAction(t *testing.T) {
	mgr, hub := newTestManager(t)
	queueAction(hub, "/actions/crafting/unknown_item")

	tr := New(mgr, &fakePrices{}, nil, zap.NewNop())
	if err := tr.Initialize(context.Background(), featurereg.NewResources()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if len(tr.Results()) != 0 {
		t.Fatalf("expected no results for an action missing from the dictionary, got %v", tr.Results())
	}
}

func TestRecomputeReactsToActionsUpdated(t *testing.T) {
	mgr, hub := newTestManager(t)
	tr := New(mgr, &fakePrices{prices: map[string]float64{"/items/cheese": 10, "/items/cheese_sword": 50}}, nil, zap.NewNop())
	if err := tr.Initialize(context.Background(), featurereg.NewResources()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(tr.Results()) != 0 {
		t.Fatal("expected no results before any action is queued")
	}

	queueAction(hub, "/actions/crafting/cheese_sword")

	if len(tr.Results()) != 1 {
		t.Fatal("expected recompute to pick up the newly queued action")
	}
}
