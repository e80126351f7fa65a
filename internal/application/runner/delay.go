package runner

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// Defaults for until_condition gating when the step leaves them unset.
const (
	defaultConditionPoll    = 2 * time.Second
	defaultConditionTimeout = 60 * time.Second
)

// supportedConditionForms is enumerated in evidence when a condition key is
// not understood: unknown syntax is a capability gap, not a runtime failure.
var supportedConditionForms = []string{
	"always",
	"message_for:<actorKey>",
	"step_done:<stepKey>",
}

// ExecuteStepDelay suspends the calling step before its logic runs, according
// to the step's delay mode. Fixed delays with a missing or non-positive
// duration are blocked; condition timeouts are failed, since a timeout is a
// real execution failure, not a missing capability.
func ExecuteStepDelay(ctx context.Context, sc *StepContext) error {
	step := sc.Step
	switch step.DelayMode {
	case "", saga.DelayModeNone:
		return nil

	case saga.DelayModeFixed:
		if step.DelayMs <= 0 {
			return saga.Blocked(
				fmt.Sprintf("step %s declares a fixed delay without a positive delayMs", step.StepKey),
				map[string]any{"delayMs": step.DelayMs},
			)
		}
		d := time.Duration(step.DelayMs)*time.Millisecond + jitter(step.DelayJitterMs)
		sc.Log.Debug("fixed step delay", zap.Duration("duration", d))
		return sleep(ctx, d)

	case saga.DelayModeUntilCondition:
		return waitForCondition(ctx, sc)

	default:
		return saga.Blocked(
			fmt.Sprintf("unknown delay mode %q", step.DelayMode),
			map[string]any{"delayMode": string(step.DelayMode)},
		)
	}
}

// waitForCondition polls the step's condition until it holds or the timeout
// elapses. Unknown condition keys block immediately without waiting.
func waitForCondition(ctx context.Context, sc *StepContext) error {
	step := sc.Step

	// Probe once up-front so `always` resolves immediately and unknown keys
	// never wait out a poll interval.
	ok, err := evaluateDelayCondition(ctx, sc, step.DelayConditionKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	poll := defaultConditionPoll
	if step.DelayPollMs > 0 {
		poll = time.Duration(step.DelayPollMs) * time.Millisecond
	}
	timeout := defaultConditionTimeout
	if step.DelayTimeoutMs > 0 {
		timeout = time.Duration(step.DelayTimeoutMs) * time.Millisecond
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return saga.Failed(
				fmt.Sprintf("condition %q did not hold within %s", step.DelayConditionKey, timeout),
				map[string]any{"conditionKey": step.DelayConditionKey, "timeoutMs": timeout.Milliseconds()},
			)
		}
		wait := poll + jitter(step.DelayJitterMs)
		if wait > remaining {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		ok, err := evaluateDelayCondition(ctx, sc, step.DelayConditionKey)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// evaluateDelayCondition evaluates one named condition. Supported forms:
// always, message_for:<actorKey>, step_done:<stepKey>. Conditions referencing
// each other through step_done can livelock; that livelock is bounded by the
// per-condition timeout, not detected.
func evaluateDelayCondition(ctx context.Context, sc *StepContext, key string) (bool, error) {
	switch {
	case key == "always":
		return true, nil

	case strings.HasPrefix(key, "message_for:"):
		actorKey := strings.TrimPrefix(key, "message_for:")
		sess, err := sc.Run.Actor(actorKey)
		if err != nil {
			return false, saga.Blocked(
				fmt.Sprintf("condition %q references unknown actor %q", key, actorKey),
				map[string]any{"conditionKey": key},
			)
		}
		msgs, err := sess.Messages(ctx, sc.Run.Run.ID)
		if err != nil {
			return false, nil // transient fetch failure, retry on next poll
		}
		return len(msgs) > 0, nil

	case strings.HasPrefix(key, "step_done:"):
		stepKey := strings.TrimPrefix(key, "step_done:")
		_, steps, err := sc.Run.RunSvc.FetchRun(ctx, sc.Run.Run.ID)
		if err != nil {
			return false, nil
		}
		for _, st := range steps {
			if st.StepKey == stepKey {
				return st.Status.IsTerminal(), nil
			}
		}
		return false, saga.Blocked(
			fmt.Sprintf("condition %q references unknown step %q", key, stepKey),
			map[string]any{"conditionKey": key},
		)

	default:
		return false, saga.Blocked(
			fmt.Sprintf("unknown delay condition %q", key),
			map[string]any{
				"conditionKey":   key,
				"supportedForms": supportedConditionForms,
			},
		)
	}
}

// jitter returns a uniform random duration in [0, jitterMs).
func jitter(jitterMs int64) time.Duration {
	if jitterMs <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(jitterMs)) * time.Millisecond
}

// sleep suspends until d elapses or the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return saga.Failed("step delay interrupted: "+ctx.Err().Error(), nil)
	}
}
