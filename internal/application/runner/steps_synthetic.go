package runner

import (
	"context"
	"time"
)

// registerSyntheticSteps registers intentionally-failing test steps. Their
// handlers request success-only status codes against endpoints known to
// return errors, so the engine's own classification is exercised end to end.
func (r *Registry) registerSyntheticSteps() {
	r.Register("test-http-500-error", stepTestHTTP500)
	r.Register("test-http-timeout", stepTestHTTPTimeout)
	r.Register("test-contract-miss", stepTestContractMiss)
}

func stepTestHTTP500(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	resp, err := owner.Get(ctx, "/test/http-500", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("synthetic endpoint", resp.Status, 200, resp.Body)
	}
	return map[string]any{"status": resp.Status}, nil
}

func stepTestHTTPTimeout(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := owner.Get(callCtx, "/test/slow", nil)
	if err != nil {
		// The transport error propagates as an unclassified error and is
		// classified failed at the orchestrator boundary.
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("slow endpoint", resp.Status, 200, resp.Body)
	}
	return map[string]any{"status": resp.Status}, nil
}

// stepTestContractMiss succeeds on its own terms; its declared contract
// requires an endpoint this handler never touches, so the contract gate
// downgrades it to failed.
func stepTestContractMiss(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	resp, err := owner.Get(ctx, "/bizes", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, failStatus("biz list", resp.Status, 200, resp.Body)
	}
	return map[string]any{"status": resp.Status}, nil
}
