package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/feature/enhancement"
	"github.com/toolasha/agent/internal/formula"
)

// EnhancementCostTask is one Markov-chain solve request — the second of
// spec §5's two named opt-in worker subsystems ("Enhancement cost
// calculator (Markov chain / matrix inversion per enhancement strategy)").
type EnhancementCostTask struct {
	CurrentLevel             int
	TargetLevel              int
	ProtectFrom              int
	MaterialCostPerAttempt   float64
	ProtectionCostPerAttempt float64
}

// EnhancementCostRunner dispatches cost-calculator solves to a bounded
// worker pool, falling back to the calling goroutine on pool-start failure.
//
// formula.Engine documents single-goroutine access only, but the pool runs
// up to MaxWorkers tasks concurrently. EnhancementCostRunner reconciles the
// two by serializing every formula-engine lookup behind formulaMu — each
// Compute call snapshots its success-rate curve under that lock, then hands
// the snapshot (plain data, no shared state) to the pool for the actual
// numeric solve, which is safe to run on any worker goroutine.
type EnhancementCostRunner struct {
	formula   *formula.Engine
	formulaMu sync.Mutex
	pool      *Pool[EnhancementCostTask, enhancement.CostEstimate]
}

// NewEnhancementCostRunner constructs a runner wrapping f in a shared
// worker pool.
func NewEnhancementCostRunner(f *formula.Engine, log *zap.Logger) *EnhancementCostRunner {
	return &EnhancementCostRunner{formula: f, pool: NewPool[EnhancementCostTask, enhancement.CostEstimate](log)}
}

// Compute solves one enhancement strategy as a single pool task.
func (r *EnhancementCostRunner) Compute(ctx context.Context, task EnhancementCostTask) enhancement.CostEstimate {
	r.formulaMu.Lock()
	rates := enhancement.SuccessRates(r.formula, task.TargetLevel)
	r.formulaMu.Unlock()

	t := Task[EnhancementCostTask, enhancement.CostEstimate]{
		Data: task,
		Fn: func(d EnhancementCostTask) (enhancement.CostEstimate, error) {
			return enhancement.EstimateCostFromRates(rates, d.CurrentLevel, d.TargetLevel, d.ProtectFrom, d.MaterialCostPerAttempt, d.ProtectionCostPerAttempt), nil
		},
	}
	return r.pool.SubmitBatch(ctx, []Task[EnhancementCostTask, enhancement.CostEstimate]{t})[0].Value
}
