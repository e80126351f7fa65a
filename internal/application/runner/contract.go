package runner

import (
	"regexp"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// ContractRule is one endpoint-usage requirement: an anyOf set of path
// patterns. The rule passes iff at least one observed call path matches at
// least one pattern.
type ContractRule struct {
	Description string
	AnyOf       []*regexp.Regexp
}

// stepContracts declares endpoint-usage contracts per step key. Steps absent
// from this table are contract-free and not held to usage rules. Contract
// verification is a second, independent gate: a step whose handler reported
// success is still failed when a declared rule goes unmatched.
var stepContracts = map[string][]ContractRule{
	"setup-create-biz": {
		{Description: "creates the biz through the public surface", AnyOf: compile(`/bizes$`)},
	},
	"setup-create-offer": {
		{Description: "creates an offer under the biz", AnyOf: compile(`/bizes/[^/]+/offers$`)},
		{Description: "publishes an offer version", AnyOf: compile(`/offers/[^/]+/versions$`)},
	},
	"setup-create-resources": {
		{Description: "registers resources under the location", AnyOf: compile(`/locations/[^/]+/resources$`)},
	},
	"booking-create": {
		{Description: "books through the booking endpoint", AnyOf: compile(`/bookings$`)},
	},
	"booking-cancel": {
		{Description: "cancels through the booking endpoint", AnyOf: compile(`/bookings/[^/]+/cancel$`, `/bookings/[^/]+$`)},
	},
	"payment-intent-create": {
		{Description: "opens a payment intent", AnyOf: compile(`/payment-intents$`)},
	},
	"payment-confirm": {
		{Description: "confirms the payment intent", AnyOf: compile(`/payment-intents/[^/]+/confirm$`)},
	},
	"pricing-demand-policy": {
		{Description: "writes a demand-pricing policy", AnyOf: compile(`/demand-pricing/policies$`)},
	},
	"channel-connect": {
		{Description: "connects a channel integration", AnyOf: compile(`/channels$`, `/channels/[^/]+/connect$`)},
	},
	// Synthetic: no handler call can satisfy this, exercising the
	// contract-failure downgrade path end to end.
	"test-contract-miss": {
		{Description: "requires an endpoint the handler never touches", AnyOf: compile(`/nonexistent/contract-target$`)},
	},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// EvaluateStepContract checks a step's recorded trace against its declared
// contract. It returns nil when the step has no contract. FailedRules > 0
// means the step is contract-failed regardless of its own success signal.
func EvaluateStepContract(stepKey string, entries []saga.TraceEntry) *saga.ContractCheckSummary {
	rules, ok := stepContracts[stepKey]
	if !ok {
		return nil
	}

	observed := make([]string, len(entries))
	for i, e := range entries {
		observed[i] = e.Path
	}

	summary := &saga.ContractCheckSummary{
		Description:   "endpoint usage contract for " + stepKey,
		ObservedPaths: observed,
	}

	matchedSet := map[string]bool{}
	for _, rule := range rules {
		result := saga.ContractRuleResult{Description: rule.Description}
		for _, re := range rule.AnyOf {
			result.AnyOf = append(result.AnyOf, re.String())
		}
		for _, path := range observed {
			for _, re := range rule.AnyOf {
				if re.MatchString(path) {
					result.Matched = append(result.Matched, path)
					matchedSet[path] = true
					break
				}
			}
		}
		result.Passed = len(result.Matched) > 0
		if result.Passed {
			summary.PassedRules++
		} else {
			summary.FailedRules++
		}
		summary.Rules = append(summary.Rules, result)
	}

	for _, path := range observed {
		if matchedSet[path] {
			summary.MatchedPaths = append(summary.MatchedPaths, path)
		}
	}
	return summary
}
