// Package formula wraps a single gopher-lua VM used to evaluate the
// reference-data formulas spec §9 calls out explicitly: "the specific
// numeric formulas for every calculator ... depend on game constants that
// are reference data, not design" and "preserve as-is; treat as reference
// data" for the enhancement XP formula. Every formula has a built-in Go
// default; a matching Lua global in the scripts directory overrides it
// without a rebuild, the same load-then-call shape the teacher's
// scripting.Engine uses for its NPC AI and combat scripts.
//
// Single-goroutine access only: callers that need concurrent access (the
// container-EV and enhancement-cost worker pools) must each own their own
// Engine instance, loaded from the same scripts directory.
package formula

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine evaluates formula overrides, falling back to built-in constants
// derived from spec §9 and §4.5 when no override script defines the
// corresponding global.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a formula engine and loads every .lua file directly
// under scriptsDir (a flat directory — unlike the teacher's per-subsystem
// subdirectories, Toolasha has a single small set of overridable formulas).
// A missing directory is not an error: the engine runs on built-in
// defaults only.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	e := &Engine{vm: vm, log: log}

	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load formula scripts: %w", err)
	}
	return e, nil
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded formula override script", zap.String("file", path))
	}
	return nil
}

// EnhancementXP returns the XP awarded for one enhancement attempt. Default
// formula per spec §9: on success, 1.4 * (1+wisdom) * (previousLevel+1) *
// (10+itemLevel); on failure, 10% of that amount. Spec explicitly flags
// this formula's provenance as an open question ("game-authoritative or an
// empirical fit?") and instructs to preserve it as-is; a Lua global
// enhancement_xp(wisdom, previous_level, item_level, success) overrides it.
func (e *Engine) EnhancementXP(wisdom, previousLevel, itemLevel int, success bool) float64 {
	fn := e.vm.GetGlobal("enhancement_xp")
	if fn == lua.LNil {
		return defaultEnhancementXP(wisdom, previousLevel, itemLevel, success)
	}

	succ := lua.LFalse
	if success {
		succ = lua.LTrue
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(wisdom), lua.LNumber(previousLevel), lua.LNumber(itemLevel), succ); err != nil {
		e.log.Warn("formula: enhancement_xp override failed, using built-in", zap.Error(err))
		return defaultEnhancementXP(wisdom, previousLevel, itemLevel, success)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return float64(lua.LVAsNumber(result))
}

func defaultEnhancementXP(wisdom, previousLevel, itemLevel int, success bool) float64 {
	base := 1.4 * float64(1+wisdom) * float64(previousLevel+1) * float64(10+itemLevel)
	if success {
		return base
	}
	return base * 0.1
}

// CraftingArtisanReduction is the multiplier applied to recursively-priced
// crafting inputs in the market cache's fallback chain (spec §4.5:
// "crafting production cost (recursively priced inputs + 0.9x artisan
// reduction + upgrade cost)"). Overridable via a Lua
// crafting_artisan_reduction() global.
func (e *Engine) CraftingArtisanReduction() float64 {
	fn := e.vm.GetGlobal("crafting_artisan_reduction")
	if fn == lua.LNil {
		return 0.9
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		e.log.Warn("formula: crafting_artisan_reduction override failed, using built-in", zap.Error(err))
		return 0.9
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return float64(lua.LVAsNumber(result))
}

// ContainerPriceIterations is the fixed iteration count for the
// expected-value calculator's fixed-point pass over the container graph
// (spec §9: "run four iterations ... four is empirically sufficient").
// Overridable via a Lua container_price_iterations() global.
func (e *Engine) ContainerPriceIterations() int {
	fn := e.vm.GetGlobal("container_price_iterations")
	if fn == lua.LNil {
		return 4
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		e.log.Warn("formula: container_price_iterations override failed, using built-in", zap.Error(err))
		return 4
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	n := int(lua.LVAsNumber(result))
	if n < 1 {
		return 4
	}
	return n
}

// MilestoneLevels is the set of enhancement levels the Enhancement Tracker
// flags as milestones (spec §3 "milestonesReached — set of levels in
// {5,10,15,20}"). Overridable via a Lua milestone_levels() global returning
// an array of numbers.
func (e *Engine) MilestoneLevels() []int {
	fn := e.vm.GetGlobal("milestone_levels")
	if fn == lua.LNil {
		return []int{5, 10, 15, 20}
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		e.log.Warn("formula: milestone_levels override failed, using built-in", zap.Error(err))
		return []int{5, 10, 15, 20}
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)

	tbl, ok := result.(*lua.LTable)
	if !ok {
		return []int{5, 10, 15, 20}
	}
	var levels []int
	tbl.ForEach(func(_, v lua.LValue) {
		levels = append(levels, int(lua.LVAsNumber(v)))
	})
	if len(levels) == 0 {
		return []int{5, 10, 15, 20}
	}
	return levels
}

// EnhancementSuccessRate is the per-attempt success probability at the
// given current enhancement level, consumed by the enhancement
// Markov-chain cost calculator (spec §5, worker item 2). The actual
// game's per-level success rates are reference data this module has no
// access to; the built-in default is a representative decreasing curve
// (starting near-certain, halving by level 10) that the calculator's
// shape does not depend on — a Lua enhancement_success_rate(level) global
// supplies the real rates at runtime.
func (e *Engine) EnhancementSuccessRate(level int) float64 {
	fn := e.vm.GetGlobal("enhancement_success_rate")
	if fn == lua.LNil {
		return defaultEnhancementSuccessRate(level)
	}
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LNumber(level)); err != nil {
		e.log.Warn("formula: enhancement_success_rate override failed, using built-in", zap.Error(err))
		return defaultEnhancementSuccessRate(level)
	}
	result := e.vm.Get(-1)
	e.vm.Pop(1)
	rate := float64(lua.LVAsNumber(result))
	if rate <= 0 || rate > 1 {
		return defaultEnhancementSuccessRate(level)
	}
	return rate
}

func defaultEnhancementSuccessRate(level int) float64 {
	rate := 1.0 / (1.0 + float64(level)/10.0)
	if rate < 0.05 {
		rate = 0.05
	}
	return rate
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
