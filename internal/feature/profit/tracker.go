package profit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/character"
	"github.com/toolasha/agent/internal/featurereg"
	"github.com/toolasha/agent/internal/market"
)

// ActionCost is one priced ingredient or drop row in a task's breakdown
// (spec §4: "breakdown rows with missing prices show -- ⚠").
type ActionCost struct {
	ItemHrid  string  `json:"itemHrid"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	HasPrice  bool    `json:"hasPrice"`
}

// TaskProfit is the resolved profit-per-hour estimate for one action,
// rendered by the Task Profit Display as "💰 <profit>/hr | ⏱ <time> ▸".
type TaskProfit struct {
	ActionHrid       string       `json:"actionHrid"`
	RevenuePerHour   float64      `json:"revenuePerHour"`
	CostPerHour      float64      `json:"costPerHour"`
	ProfitPerHour    float64      `json:"profitPerHour"`
	EstimatedSeconds float64      `json:"estimatedSeconds"`
	HasMissingPrices bool         `json:"hasMissingPrices"`
	Inputs           []ActionCost `json:"inputs"`
	Outputs          []ActionCost `json:"outputs"`
}

// actionRow is one {itemHrid, count} entry of an action's input or output
// item list. The tracker reads character.ActionDetail.Raw in the game's
// actionDetailMap wire shape: a base time cost in nanoseconds, an input
// item list, and an output item list (for a container output, the dropTable
// lives under the output item's own ItemDetail.Raw).
type actionRow struct {
	ItemHrid string
	Count    float64
}

// charDictionary narrows character.Manager to what the tracker needs from
// the static game dictionary, for testability.
type charDictionary interface {
	ActionDetails(actionHrid string) (character.ActionDetail, bool)
	ItemDetails(itemHrid string) (character.ItemDetail, bool)
	CurrentActions() []character.Action
}

// Tracker implements the Task Profit Display feature: on every
// actions_updated frame it recomputes profit-per-hour for each currently
// queued action, reading ingredient/output quantities from the static
// action dictionary and prices from the market cache.
type Tracker struct {
	chars  charDictionary
	prices PriceSource
	calc   *Calculator
	log    *zap.Logger

	mu      sync.RWMutex
	results map[string]TaskProfit
	handle  character.Handle
}

// New constructs a Tracker. mgr doubles as both the charDictionary and the
// character.Manager whose events the tracker subscribes to.
func New(mgr *character.Manager, prices PriceSource, calc *Calculator, log *zap.Logger) *Tracker {
	return &Tracker{chars: mgr, prices: prices, calc: calc, log: log, results: make(map[string]TaskProfit)}
}

func (t *Tracker) Key() string      { return "taskProfit" }
func (t *Tracker) Name() string     { return "Task Profit Display" }
func (t *Tracker) Category() string { return "overlay" }

// Initialize subscribes to the character manager's actions_updated domain
// event and recomputes on every frame (spec §4: "Read from D/E/F/C;
// subscribe to settings; render overlays").
func (t *Tracker) Initialize(_ context.Context, res *featurereg.Resources) error {
	mgr, ok := t.chars.(*character.Manager)
	if !ok {
		return nil
	}
	t.handle = mgr.On(character.EventActionsUpdated, func(any) {
		t.Recompute(market.PriceOptions{Context: market.ContextProfit})
	})
	res.OnCleanup(func() {
		mgr.Off(character.EventActionsUpdated, t.handle)
	})
	t.Recompute(market.PriceOptions{Context: market.ContextProfit})
	return nil
}

func (t *Tracker) Disable() {}

// Recompute prices every currently queued action and stores the results
// for Results to read. Missing dictionary data or missing prices degrade
// to HasMissingPrices rather than erroring (spec §7).
func (t *Tracker) Recompute(opts market.PriceOptions) {
	actions := t.chars.CurrentActions()
	out := make(map[string]TaskProfit, len(actions))

	for _, action := range actions {
		tp, ok := t.priceAction(action, opts)
		if ok {
			out[action.ActionHrid] = tp
		}
	}

	t.mu.Lock()
	t.results = out
	t.mu.Unlock()
}

// priceAction resolves one action's profit-per-hour from its raw
// dictionary entry. The expected shape (matching the game's
// actionDetailMap) is:
//
//	{ "baseTimeCost": <nanoseconds>, "inputItems": [{"itemHrid":..,"count":..}],
//	  "outputItems": [{"itemHrid":..,"count":..}] }
func (t *Tracker) priceAction(action character.Action, opts market.PriceOptions) (TaskProfit, bool) {
	detail, ok := t.chars.ActionDetails(action.ActionHrid)
	if !ok {
		return TaskProfit{}, false
	}

	baseTimeCost := asFloat(detail.Raw["baseTimeCost"])
	if baseTimeCost <= 0 {
		return TaskProfit{}, false
	}
	seconds := baseTimeCost / 1e9
	perHour := 3600 / seconds

	inputs := t.priceRows(asRows(detail.Raw["inputItems"]), opts)
	outputs := t.priceRows(asRows(detail.Raw["outputItems"]), opts)
	t.fillMissingContainerOutputs(outputs, opts)

	var cost, revenue float64
	hasMissing := false
	for _, row := range inputs {
		if !row.HasPrice {
			hasMissing = true
			continue
		}
		cost += row.UnitPrice * row.Quantity
	}
	for _, row := range outputs {
		if !row.HasPrice {
			hasMissing = true
			continue
		}
		revenue += row.UnitPrice * row.Quantity
	}

	return TaskProfit{
		ActionHrid:       action.ActionHrid,
		RevenuePerHour:   revenue * perHour,
		CostPerHour:      cost * perHour,
		ProfitPerHour:    (revenue - cost) * perHour,
		EstimatedSeconds: seconds,
		HasMissingPrices: hasMissing,
		Inputs:           inputs,
		Outputs:          outputs,
	}, true
}

func (t *Tracker) priceRows(rows []actionRow, opts market.PriceOptions) []ActionCost {
	out := make([]ActionCost, 0, len(rows))
	for _, r := range rows {
		cost := ActionCost{ItemHrid: r.ItemHrid, Quantity: r.Count}
		if t.prices != nil {
			if price, ok := t.prices.GetItemPrice(r.ItemHrid, opts); ok {
				cost.UnitPrice = price
				cost.HasPrice = true
			}
		}
		out = append(out, cost)
	}
	return out
}

// fillMissingContainerOutputs resolves an output row's price via the
// container expected-value calculator when the market has no direct price
// for it — an output that failed to price directly is often a reward
// container (e.g. a chest) rather than a plain market item.
func (t *Tracker) fillMissingContainerOutputs(outputs []ActionCost, opts market.PriceOptions) {
	if t.calc == nil {
		return
	}
	var pending []string
	for _, row := range outputs {
		if !row.HasPrice {
			pending = append(pending, row.ItemHrid)
		}
	}
	if len(pending) == 0 {
		return
	}
	values := t.calc.ContainerValues(pending, opts)
	for i := range outputs {
		if outputs[i].HasPrice {
			continue
		}
		if v, ok := values[outputs[i].ItemHrid]; ok && !v.HasMissingPrices {
			outputs[i].UnitPrice = v.Value
			outputs[i].HasPrice = true
		}
	}
}

// Results returns a snapshot of the last recomputed profit estimates,
// keyed by actionHrid.
func (t *Tracker) Results() map[string]TaskProfit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]TaskProfit, len(t.results))
	for k, v := range t.results {
		out[k] = v
	}
	return out
}

func asRows(v any) []actionRow {
	list, _ := v.([]any)
	out := make([]actionRow, 0, len(list))
	for _, raw := range list {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		hrid, _ := row["itemHrid"].(string)
		if hrid == "" {
			continue
		}
		out = append(out, actionRow{ItemHrid: hrid, Count: asFloat(row["count"])})
	}
	return out
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
