package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPoolSubmitReturnsResult(t *testing.T) {
	p := NewPool[int, int](zap.NewNop())
	got := p.Submit(context.Background(), Task[int, int]{
		Data: 21,
		Fn:   func(d int) (int, error) { return d * 2, nil },
	})
	if got.Err != nil {
		t.Fatalf("unexpected error: %v", got.Err)
	}
	if got.Value != 42 {
		t.Fatalf("Value = %d, want 42", got.Value)
	}
}

func TestPoolSubmitRespectsContextCancellation(t *testing.T) {
	p := NewPool[int, int](zap.NewNop())

	// Fill every slot with a task that blocks until released.
	release := make(chan struct{})
	started := make(chan struct{}, p.Size())
	for i := 0; i < p.Size(); i++ {
		go p.Submit(context.Background(), Task[int, int]{
			Data: i,
			Fn: func(d int) (int, error) {
				started <- struct{}{}
				<-release
				return d, nil
			},
		})
	}
	for i := 0; i < p.Size(); i++ {
		<-started
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := p.Submit(ctx, Task[int, int]{Data: 1, Fn: func(d int) (int, error) { return d, nil }})
	if got.Err == nil {
		t.Fatal("expected context cancellation error when pool is full and ctx is already done")
	}
	close(release)
}

func TestPoolSubmitBatchPreservesOrder(t *testing.T) {
	p := NewPool[int, int](zap.NewNop())
	tasks := make([]Task[int, int], 20)
	for i := range tasks {
		i := i
		tasks[i] = Task[int, int]{Data: i, Fn: func(d int) (int, error) { return d * d, nil }}
	}

	results := p.SubmitBatch(context.Background(), tasks)
	if len(results) != len(tasks) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(tasks))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("result[%d] error: %v", i, r.Err)
		}
		if r.Value != i*i {
			t.Fatalf("result[%d] = %d, want %d", i, r.Value, i*i)
		}
	}
}

func TestPoolSubmitBatchBoundsConcurrency(t *testing.T) {
	p := NewPool[int, int](zap.NewNop())

	var current, max int64
	tasks := make([]Task[int, int], p.Size()*4)
	for i := range tasks {
		tasks[i] = Task[int, int]{Data: i, Fn: func(d int) (int, error) {
			n := atomic.AddInt64(&current, 1)
			for {
				m := atomic.LoadInt64(&max)
				if n <= m || atomic.CompareAndSwapInt64(&max, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&current, -1)
			return d, nil
		}}
	}

	p.SubmitBatch(context.Background(), tasks)
	if int(max) > p.Size() {
		t.Fatalf("observed concurrency %d exceeds pool size %d", max, p.Size())
	}
}

func TestPoolSubmitBatchFallsBackWhenContextAlreadyCancelled(t *testing.T) {
	p := NewPool[int, int](zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task[int, int]{
		{Data: 1, Fn: func(d int) (int, error) { return d + 1, nil }},
		{Data: 2, Fn: func(d int) (int, error) { return d + 1, nil }},
	}
	results := p.SubmitBatch(ctx, tasks)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("fallback path should still run tasks synchronously, result[%d] error: %v", i, r.Err)
		}
		if r.Value != tasks[i].Data+1 {
			t.Fatalf("result[%d] = %d, want %d", i, r.Value, tasks[i].Data+1)
		}
	}
}
