package runner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// Summary aggregates the results of one pool execution.
type Summary struct {
	Runs       int      // scenario instances executed
	Passed     int      // runs whose final status was passed
	Failed     int      // runs that did not pass
	FailedRuns []string // sagaKey of each non-passing run, in completion order
	Failures   []string // per-step failure notes across all runs
	Warnings   []string // evidence persistence warnings across all runs
}

// runFunc prepares and executes one scenario instance.
type runFunc func(ctx context.Context, def saga.Definition) (RunOutcome, error)

// runPool fans N scenario instances out across min(K, N) workers. Each
// worker claims the next unclaimed index from a shared atomic cursor until
// the cursor passes N, so every definition executes exactly once. Aggregate
// counters are mutated under one mutex.
func runPool(ctx context.Context, defs []saga.Definition, concurrency int, exec runFunc) Summary {
	n := len(defs)
	if n == 0 {
		return Summary{}
	}
	if concurrency < 1 {
		concurrency = 1
	}
	workers := concurrency
	if workers > n {
		workers = n
	}

	var cursor atomic.Int64
	var mu sync.Mutex
	summary := Summary{}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= n {
					return nil
				}
				def := defs[idx]
				outcome, err := exec(gctx, def)

				mu.Lock()
				summary.Runs++
				if err != nil {
					summary.Failed++
					summary.FailedRuns = append(summary.FailedRuns, def.SagaKey)
					summary.Failures = append(summary.Failures,
						fmt.Sprintf("%s: %v", def.SagaKey, err))
				} else if outcome.OK {
					summary.Passed++
				} else {
					summary.Failed++
					summary.FailedRuns = append(summary.FailedRuns, def.SagaKey)
					for _, f := range outcome.Failures {
						summary.Failures = append(summary.Failures, def.SagaKey+": "+f)
					}
				}
				summary.Warnings = append(summary.Warnings, outcome.Warnings...)
				mu.Unlock()

				// Per-run failures never abort the pool; only context
				// cancellation stops the workers.
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
			}
		})
	}
	_ = g.Wait()
	return summary
}
