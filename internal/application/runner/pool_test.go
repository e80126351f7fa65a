package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

func poolDefs(n int) []saga.Definition {
	defs := make([]saga.Definition, n)
	for i := range defs {
		defs[i] = saga.Definition{SagaKey: "saga-" + strconv.Itoa(i)}
	}
	return defs
}

func TestRunPoolExecutesEachDefinitionExactlyOnce(t *testing.T) {
	defs := poolDefs(20)

	var mu sync.Mutex
	counts := map[string]int{}
	exec := func(ctx context.Context, def saga.Definition) (RunOutcome, error) {
		mu.Lock()
		counts[def.SagaKey]++
		mu.Unlock()
		return RunOutcome{OK: true}, nil
	}

	summary := runPool(context.Background(), defs, 4, exec)

	assert.Equal(t, 20, summary.Runs)
	assert.Equal(t, 20, summary.Passed)
	assert.Zero(t, summary.Failed)
	require.Len(t, counts, 20)
	for key, n := range counts {
		assert.Equal(t, 1, n, "definition %s claimed %d times", key, n)
	}
}

func TestRunPoolBoundsConcurrency(t *testing.T) {
	defs := poolDefs(16)

	var current, peak atomic.Int64
	exec := func(ctx context.Context, def saga.Definition) (RunOutcome, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return RunOutcome{OK: true}, nil
	}

	summary := runPool(context.Background(), defs, 4, exec)

	assert.Equal(t, 16, summary.Runs)
	assert.LessOrEqual(t, peak.Load(), int64(4))
}

func TestRunPoolAggregatesFailures(t *testing.T) {
	defs := poolDefs(6)

	exec := func(ctx context.Context, def saga.Definition) (RunOutcome, error) {
		switch def.SagaKey {
		case "saga-1":
			return RunOutcome{}, errors.New("bootstrap exploded")
		case "saga-3":
			return RunOutcome{
				OK:       false,
				Failures: []string{"booking-create: slot refused"},
				Warnings: []string{"snapshot attach failed"},
			}, nil
		default:
			return RunOutcome{OK: true}, nil
		}
	}

	summary := runPool(context.Background(), defs, 2, exec)

	assert.Equal(t, 6, summary.Runs)
	assert.Equal(t, 4, summary.Passed)
	assert.Equal(t, 2, summary.Failed)
	assert.ElementsMatch(t, []string{"saga-1", "saga-3"}, summary.FailedRuns)
	assert.Contains(t, summary.Failures, "saga-1: bootstrap exploded")
	assert.Contains(t, summary.Failures, "saga-3: booking-create: slot refused")
	assert.Equal(t, []string{"snapshot attach failed"}, summary.Warnings)
}

// A failing run never aborts the pool: every later definition still executes.
func TestRunPoolContinuesPastFailures(t *testing.T) {
	defs := poolDefs(10)

	var executed atomic.Int64
	exec := func(ctx context.Context, def saga.Definition) (RunOutcome, error) {
		executed.Add(1)
		return RunOutcome{}, fmt.Errorf("%s always fails", def.SagaKey)
	}

	summary := runPool(context.Background(), defs, 3, exec)

	assert.Equal(t, int64(10), executed.Load())
	assert.Equal(t, 10, summary.Failed)
	assert.Zero(t, summary.Passed)
}

func TestRunPoolStopsOnContextCancellation(t *testing.T) {
	defs := poolDefs(50)
	ctx, cancel := context.WithCancel(context.Background())

	var executed atomic.Int64
	exec := func(ctx context.Context, def saga.Definition) (RunOutcome, error) {
		if executed.Add(1) == 2 {
			cancel()
		}
		return RunOutcome{OK: true}, nil
	}

	summary := runPool(ctx, defs, 2, exec)

	assert.Less(t, summary.Runs, 50)
	assert.GreaterOrEqual(t, summary.Runs, 2)
}

func TestRunPoolEmptyAndClampedInputs(t *testing.T) {
	exec := func(ctx context.Context, def saga.Definition) (RunOutcome, error) {
		return RunOutcome{OK: true}, nil
	}

	assert.Equal(t, Summary{}, runPool(context.Background(), nil, 4, exec))

	// Zero concurrency clamps to one worker rather than deadlocking.
	summary := runPool(context.Background(), poolDefs(3), 0, exec)
	assert.Equal(t, 3, summary.Runs)
}
