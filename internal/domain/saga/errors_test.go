package saga

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPreservesClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want StepStatus
	}{
		{"failed stays failed", Failed("assertion violated", nil), StepStatusFailed},
		{"blocked stays blocked", Blocked("capability gap", nil), StepStatusBlocked},
		{"skipped stays skipped", Skipped("policy off", nil), StepStatusSkipped},
		{"plain error becomes failed", errors.New("connection refused"), StepStatusFailed},
		{"wrapped step error unwraps", fmt.Errorf("step: %w", Blocked("gap", nil)), StepStatusBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := Classify(tt.err)
			assert.Equal(t, tt.want, se.Status)
		})
	}
}

func TestNewStepErrorCoercesNonTerminal(t *testing.T) {
	// passed and in_progress are not meaningful error classifications
	se := NewStepError(StepStatusPassed, "nonsense", nil)
	assert.Equal(t, StepStatusFailed, se.Status)

	se = NewStepError(StepStatusInProgress, "nonsense", nil)
	assert.Equal(t, StepStatusFailed, se.Status)
}

func TestFromErrorCarriesEvidence(t *testing.T) {
	err := Blocked("no handler", map[string]any{"stepKey": "x"})
	out := FromError(err)
	require.Equal(t, StepStatusBlocked, out.Status)
	assert.Equal(t, "no handler", out.Message)
	assert.Equal(t, "x", out.Evidence["stepKey"])
}

func TestPassedOutcome(t *testing.T) {
	out := Passed(map[string]any{"id": "abc"})
	assert.Equal(t, StepStatusPassed, out.Status)
	assert.Equal(t, "abc", out.Payload["id"])
	assert.Empty(t, out.Message)
}
