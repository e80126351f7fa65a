package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

func entriesFor(paths ...string) []saga.TraceEntry {
	out := make([]saga.TraceEntry, len(paths))
	for i, p := range paths {
		out[i] = saga.TraceEntry{Method: "POST", Path: p, Status: 201}
	}
	return out
}

func TestEvaluateStepContractUndeclaredStepIsContractFree(t *testing.T) {
	summary := EvaluateStepContract("booking-list-visibility", entriesFor("/bizes/b1/bookings"))
	assert.Nil(t, summary)
}

func TestEvaluateStepContractPasses(t *testing.T) {
	summary := EvaluateStepContract("pricing-demand-policy",
		entriesFor("/bizes/b1/demand-pricing/policies"))
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.PassedRules)
	assert.Zero(t, summary.FailedRules)
	assert.Equal(t, []string{"/bizes/b1/demand-pricing/policies"}, summary.MatchedPaths)
}

func TestEvaluateStepContractFailsWhenEndpointNeverTouched(t *testing.T) {
	// The handler called something, just not the contracted endpoint.
	summary := EvaluateStepContract("booking-create", entriesFor("/bizes", "/bizes/b1"))
	require.NotNil(t, summary)
	assert.Zero(t, summary.PassedRules)
	assert.Equal(t, 1, summary.FailedRules)
	assert.Empty(t, summary.MatchedPaths)
	assert.Equal(t, []string{"/bizes", "/bizes/b1"}, summary.ObservedPaths)
}

func TestEvaluateStepContractMultiRule(t *testing.T) {
	t.Run("both rules matched", func(t *testing.T) {
		summary := EvaluateStepContract("setup-create-offer",
			entriesFor("/bizes/b1/offers", "/offers/o1/versions"))
		require.NotNil(t, summary)
		assert.Equal(t, 2, summary.PassedRules)
		assert.Zero(t, summary.FailedRules)
	})

	t.Run("one rule unmatched", func(t *testing.T) {
		summary := EvaluateStepContract("setup-create-offer",
			entriesFor("/bizes/b1/offers"))
		require.NotNil(t, summary)
		assert.Equal(t, 1, summary.PassedRules)
		assert.Equal(t, 1, summary.FailedRules)

		var unmatched []string
		for _, r := range summary.Rules {
			if !r.Passed {
				unmatched = append(unmatched, r.Description)
			}
		}
		assert.Equal(t, []string{"publishes an offer version"}, unmatched)
	})
}

func TestEvaluateStepContractEmptyTrace(t *testing.T) {
	summary := EvaluateStepContract("setup-create-biz", nil)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.FailedRules)
	assert.Empty(t, summary.ObservedPaths)
}

func TestSyntheticContractMissNeverPasses(t *testing.T) {
	summary := EvaluateStepContract("test-contract-miss",
		entriesFor("/bizes", "/bookings", "/payment-intents"))
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.FailedRules)
}
