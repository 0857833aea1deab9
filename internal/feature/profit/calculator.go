// Package profit implements the Task Profit Display and its two
// supporting calculators: a per-action cost/revenue estimate and an
// expected-value calculator for openable containers whose drop tables are
// not guaranteed acyclic (spec §9 "Cyclic graphs and self-referential
// pricing").
//
// The container calculator's ledger shape — a config of named entities
// each resolving to a weighted table of item/currency rewards — is
// grounded on heroiclabs-nakama's hiro economy config (EconomyConfigReward
// / EconomyConfigRewardContents: a reward resolves to a guaranteed content
// set plus a weighted list of alternate content sets). Toolasha has no
// currency or guaranteed-slot concept, only a flat drop table, so the
// shape is flattened to container -> []ContainerDrop.
package profit

import (
	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/formula"
	"github.com/toolasha/agent/internal/market"
)

// ContainerDrop is one row of an openable container's drop table.
type ContainerDrop struct {
	ItemHrid string
	DropRate float64 // probability per open, 0..1
	MinCount float64
	MaxCount float64
}

func (d ContainerDrop) averageCount() float64 {
	return d.DropRate * (d.MinCount + d.MaxCount) / 2
}

// ContainerBook supplies a container's drop table from the static game
// dictionary. Feature modules that own the dictionary (character.Manager's
// ClientData) implement this; the calculator has no game-data dependency
// of its own, the same separation market.RecipeBook draws between pricing
// and recipe data.
type ContainerBook interface {
	// Drops returns the drop table for containerHrid, or ok=false if the
	// item does not open into anything.
	Drops(containerHrid string) (drops []ContainerDrop, ok bool)
}

// PriceSource is the subset of internal/market.Cache the calculator needs,
// narrowed for testability.
type PriceSource interface {
	GetItemPrice(hrid string, opts market.PriceOptions) (float64, bool)
}

// ValueResult is one container's resolved expected value, plus whether any
// ingredient in its drop table had no known price (spec §7 "Missing
// market price" -> hasMissingPrices).
type ValueResult struct {
	Value            float64
	HasMissingPrices bool
}

// Calculator resolves container expected values via a bounded fixed-point
// iteration (spec §9). Per-action profit is computed by Tracker
// (tracker.go) from those resolved values plus direct market prices.
type Calculator struct {
	prices     PriceSource
	containers ContainerBook
	formula    *formula.Engine
	log        *zap.Logger
}

// NewCalculator constructs a Calculator. containers may be nil if no
// container drop data is available; container values then resolve to
// HasMissingPrices for every container.
func NewCalculator(prices PriceSource, containers ContainerBook, f *formula.Engine, log *zap.Logger) *Calculator {
	return &Calculator{prices: prices, containers: containers, formula: f, log: log}
}

// ContainerValues resolves the expected value of every container in hrids
// by running a fixed number of batched evaluation passes (spec §9: "run
// four iterations of a batched price evaluation, each iteration reading
// the previous iteration's container prices from a mapping; terminate
// after a fixed iteration count"). Containers whose drop tables reference
// other containers in hrids converge toward a stable value over the
// iterations; containers outside hrids are priced directly from the
// market on every pass.
func (c *Calculator) ContainerValues(hrids []string, opts market.PriceOptions) map[string]ValueResult {
	iterations := 4
	if c.formula != nil {
		iterations = c.formula.ContainerPriceIterations()
	}

	prev := make(map[string]float64, len(hrids))
	missing := make(map[string]bool, len(hrids))

	for pass := 0; pass < iterations; pass++ {
		next := make(map[string]float64, len(hrids))
		nextMissing := make(map[string]bool, len(hrids))

		for _, hrid := range hrids {
			val, hasMissing := c.evaluateOnce(hrid, opts, prev)
			next[hrid] = val
			nextMissing[hrid] = hasMissing
		}

		prev = next
		missing = nextMissing
	}

	out := make(map[string]ValueResult, len(hrids))
	for _, hrid := range hrids {
		out[hrid] = ValueResult{Value: prev[hrid], HasMissingPrices: missing[hrid]}
	}
	return out
}

// evaluateOnce prices containerHrid's drop table for a single pass,
// resolving any drop that is itself a tracked container from prior, and
// everything else directly from the market.
func (c *Calculator) evaluateOnce(containerHrid string, opts market.PriceOptions, prior map[string]float64) (float64, bool) {
	if c.containers == nil {
		return 0, true
	}
	drops, ok := c.containers.Drops(containerHrid)
	if !ok {
		return 0, true
	}

	var total float64
	var hasMissing bool
	for _, d := range drops {
		avg := d.averageCount()
		if avg <= 0 {
			continue
		}
		if v, ok := prior[d.ItemHrid]; ok {
			total += avg * v
			continue
		}
		if c.prices == nil {
			hasMissing = true
			continue
		}
		price, ok := c.prices.GetItemPrice(d.ItemHrid, opts)
		if !ok {
			hasMissing = true
			continue
		}
		total += avg * price
	}
	return total, hasMissing
}
