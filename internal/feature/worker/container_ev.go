package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/toolasha/agent/internal/feature/profit"
	"github.com/toolasha/agent/internal/market"
)

// ContainerEVTask is one batch of containers to price — the {taskId,
// data} envelope for the container expected-value worker pool (spec §5,
// item 1), with the pool's Go generics standing in for the raw taskId
// correlation the wire-level description uses.
type ContainerEVTask struct {
	ContainerHrids []string
	Opts           market.PriceOptions
}

// ContainerEVRunner dispatches container EV computations to a bounded
// worker pool, falling back to the calling goroutine on pool-start
// failure, per spec §5's worker discipline.
type ContainerEVRunner struct {
	calc *profit.Calculator
	pool *Pool[ContainerEVTask, map[string]profit.ValueResult]
}

// NewContainerEVRunner constructs a runner wrapping calc's batched
// evaluation in a shared worker pool.
func NewContainerEVRunner(calc *profit.Calculator, log *zap.Logger) *ContainerEVRunner {
	return &ContainerEVRunner{calc: calc, pool: NewPool[ContainerEVTask, map[string]profit.ValueResult](log)}
}

// Compute resolves the expected value of every hrid in containerHrids as
// one pool task. Spec §9's four-iteration fixed point runs inside the
// task — the iterations must see every container's prior-pass value in
// the same batch, so the fixed point stays a single unit of work rather
// than one task per container.
func (r *ContainerEVRunner) Compute(ctx context.Context, containerHrids []string, opts market.PriceOptions) map[string]profit.ValueResult {
	task := Task[ContainerEVTask, map[string]profit.ValueResult]{
		Data: ContainerEVTask{ContainerHrids: containerHrids, Opts: opts},
		Fn: func(d ContainerEVTask) (map[string]profit.ValueResult, error) {
			return r.calc.ContainerValues(d.ContainerHrids, d.Opts), nil
		},
	}
	return r.pool.SubmitBatch(ctx, []Task[ContainerEVTask, map[string]profit.ValueResult]{task})[0].Value
}
