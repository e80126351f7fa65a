package runner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// ReasonMissingExecutor is reported when neither a deterministic check nor
// the remote evaluator could judge an exploratory step under strict policy.
const ReasonMissingExecutor = "MISSING_DETERMINISTIC_EXECUTOR_CONTRACT"

// deterministicCheck is a hand-written check for a prose-derived step,
// selected by substring match against the step's instruction text.
type deterministicCheck struct {
	match string
	fn    StepHandler
}

// ExploratoryChain resolves prose-derived validation steps through three
// tiers: a deterministic hand-written check, the remote semantic evaluator,
// and finally a policy-controlled block/skip. Scenarios degrade from
// "exactly checked" to "AI-assessed" to "explicitly flagged as unverified",
// never silently counted as passing.
type ExploratoryChain struct {
	Strict bool
	checks []deterministicCheck
}

// NewExploratoryChain builds the chain with its built-in deterministic
// checks.
func NewExploratoryChain(strict bool) *ExploratoryChain {
	c := &ExploratoryChain{Strict: strict}
	c.checks = []deterministicCheck{
		{match: "owner can list bookings", fn: checkOwnerSeesBookings},
		{match: "offer is visible to customers", fn: checkOfferVisibleToCustomer},
		{match: "adversary cannot read", fn: checkAdversaryDenied},
	}
	return c
}

// Run executes the fallback chain for one exploratory step.
func (c *ExploratoryChain) Run(ctx context.Context, sc *StepContext) (map[string]any, error) {
	instruction := strings.ToLower(sc.Step.Instruction)
	for _, check := range c.checks {
		if strings.Contains(instruction, check.match) {
			sc.Log.Debug("deterministic exploratory check matched", zap.String("check", check.match))
			return check.fn(ctx, sc)
		}
	}

	eval, err := sc.Run.RunSvc.ExploratoryEvaluate(ctx, sc.Run.Run.ID, sc.Step.StepKey, stepFamily(sc.Step.StepKey))
	if err != nil {
		sc.Log.Warn("remote exploratory evaluator unavailable", zap.Error(err))
		if c.Strict {
			return nil, saga.Blocked(
				fmt.Sprintf("exploratory step %s has no deterministic check and the evaluator is unavailable", sc.Step.StepKey),
				map[string]any{"reasonCode": ReasonMissingExecutor, "evaluatorError": err.Error()},
			)
		}
		return nil, saga.Skipped(
			fmt.Sprintf("exploratory step %s left unverified: evaluator unavailable and strict mode off", sc.Step.StepKey),
			map[string]any{"evaluatorError": err.Error()},
		)
	}

	evidence := map[string]any{
		"verdict":                eval.Verdict,
		"confidence":             eval.Confidence,
		"summary":                eval.Summary,
		"reasonCode":             eval.ReasonCode,
		"evidencePointers":       eval.EvidencePointers,
		"gaps":                   eval.Gaps,
		"deterministicFollowUps": eval.DeterministicFollowUps,
	}

	switch eval.Status {
	case saga.StepStatusPassed:
		return map[string]any{"evaluation": evidence, "source": "remote-evaluator"}, nil
	case saga.StepStatusFailed:
		return nil, saga.Failed(
			fmt.Sprintf("remote evaluator judged %s failed: %s", sc.Step.StepKey, eval.Summary),
			evidence,
		)
	default:
		return nil, saga.Blocked(
			fmt.Sprintf("remote evaluator could not judge %s: %s", sc.Step.StepKey, eval.Summary),
			evidence,
		)
	}
}

// stepFamily extracts the family prefix sent to the evaluator.
func stepFamily(stepKey string) string {
	for _, p := range exploratoryPrefixes {
		if strings.HasPrefix(stepKey, p) {
			return strings.TrimSuffix(p, "-")
		}
	}
	return "unknown"
}

// checkOwnerSeesBookings verifies the owner's booking list contains every
// booking this run created.
func checkOwnerSeesBookings(ctx context.Context, sc *StepContext) (map[string]any, error) {
	owner, err := sc.As(ActorOwner)
	if err != nil {
		return nil, err
	}
	var out struct {
		Bookings []struct {
			ID string `json:"id"`
		} `json:"bookings"`
	}
	resp, err := owner.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/bookings", &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, saga.Failed(fmt.Sprintf("owner booking list returned %d", resp.Status), nil)
	}
	listed := map[string]bool{}
	for _, b := range out.Bookings {
		listed[b.ID] = true
	}
	var missing []string
	for _, id := range sc.Run.BookingIDs() {
		if !listed[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, saga.Blocked(
			"bookings created in this run are not visible in the owner's list",
			map[string]any{"missing": missing, "listed": len(out.Bookings)},
		)
	}
	return map[string]any{"bookings": len(out.Bookings), "source": "deterministic"}, nil
}

// checkOfferVisibleToCustomer verifies the published offer shows up in a
// customer's catalog view.
func checkOfferVisibleToCustomer(ctx context.Context, sc *StepContext) (map[string]any, error) {
	customer, err := sc.As(ActorCustomer1)
	if err != nil {
		return nil, err
	}
	var out struct {
		Offers []struct {
			ID string `json:"id"`
		} `json:"offers"`
	}
	resp, err := customer.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/offers", &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, saga.Failed(fmt.Sprintf("customer offer list returned %d", resp.Status), nil)
	}
	for _, o := range out.Offers {
		if o.ID == sc.Run.Entities.OfferID {
			return map[string]any{"offerId": o.ID, "source": "deterministic"}, nil
		}
	}
	return nil, saga.Blocked(
		"published offer is not visible to the customer",
		map[string]any{"offerId": sc.Run.Entities.OfferID, "visible": len(out.Offers)},
	)
}

// checkAdversaryDenied verifies the adversary actor is denied on the biz's
// credential surface.
func checkAdversaryDenied(ctx context.Context, sc *StepContext) (map[string]any, error) {
	adversary, err := sc.As(ActorAdversary)
	if err != nil {
		return nil, err
	}
	resp, err := adversary.Get(ctx, "/bizes/"+sc.Run.Entities.BizID+"/credentials", nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != 403 {
		return nil, saga.Failed(
			fmt.Sprintf("adversary credential read returned %d, want 403", resp.Status),
			map[string]any{"status": resp.Status},
		)
	}
	return map[string]any{"denied": true, "status": resp.Status, "source": "deterministic"}, nil
}
