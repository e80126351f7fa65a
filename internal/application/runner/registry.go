package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// StepHandler drives the HTTP calls that fulfill one step's business intent.
// It returns a result payload on success or a classified *saga.StepError.
type StepHandler func(ctx context.Context, sc *StepContext) (map[string]any, error)

// exploratoryPrefixes route prose-derived validation steps to the fallback
// chain instead of a fixed handler.
var exploratoryPrefixes = []string{
	"uc-need-validate-",
	"persona-scenario-validate-",
}

// Registry maps step keys to handlers. It is populated once at startup; an
// unregistered key is a runner gap and always resolves blocked, never failed:
// absence of an implementation is a tooling deficiency, not a product defect.
type Registry struct {
	handlers map[string]StepHandler
	chain    *ExploratoryChain
}

// NewRegistry builds the registry with all built-in scenario handlers.
func NewRegistry(chain *ExploratoryChain) *Registry {
	r := &Registry{
		handlers: map[string]StepHandler{},
		chain:    chain,
	}
	r.registerSetupSteps()
	r.registerBookingSteps()
	r.registerPaymentSteps()
	r.registerAdversarialSteps()
	r.registerOpsSteps()
	r.registerSyntheticSteps()
	return r
}

// Register adds a handler for a step key. Last registration wins.
func (r *Registry) Register(stepKey string, h StepHandler) {
	r.handlers[stepKey] = h
}

// Keys returns the registered step keys, for diagnostics.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	return keys
}

// IsExploratory reports whether a step key routes to the exploratory chain.
func IsExploratory(stepKey string) bool {
	for _, p := range exploratoryPrefixes {
		if strings.HasPrefix(stepKey, p) {
			return true
		}
	}
	return false
}

// Execute dispatches one step by key.
func (r *Registry) Execute(ctx context.Context, sc *StepContext) (map[string]any, error) {
	if IsExploratory(sc.Step.StepKey) {
		return r.chain.Run(ctx, sc)
	}
	h, ok := r.handlers[sc.Step.StepKey]
	if !ok {
		return nil, saga.Blocked(
			fmt.Sprintf("no handler registered for step %q", sc.Step.StepKey),
			map[string]any{"stepKey": sc.Step.StepKey, "reason": "runner gap"},
		)
	}
	return h(ctx, sc)
}
