package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/apitest"
	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
	"github.com/ameernuri/bizing-sub005/internal/infrastructure/config"
)

func newTestEngine(t *testing.T, srv *apitest.Server, mutate func(*config.Config)) *Engine {
	t.Helper()
	cfg := &config.Config{
		Target: config.TargetConfig{
			BaseURL:       srv.URL(),
			TrustedOrigin: "http://localhost:3000",
			Timeout:       10 * time.Second,
		},
		Runner: config.RunnerConfig{Concurrency: 2},
	}
	if mutate != nil {
		mutate(cfg)
	}
	engine, err := NewEngine(cfg, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func steps(keys ...string) []saga.RunStep {
	out := make([]saga.RunStep, len(keys))
	for i, k := range keys {
		out[i] = saga.RunStep{StepKey: k, Title: k}
	}
	return out
}

func TestEngineHappyPathRun(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	def := saga.Definition{SagaKey: "booking-happy-path", Title: "Happy path", Status: "active"}
	srv.AddSaga(def, steps(
		"setup-create-biz",
		"setup-create-location",
		"setup-create-resources",
		"setup-create-offer",
		"booking-create",
		"booking-list-visibility",
		"payment-intent-create",
		"payment-confirm",
		"booking-cancel",
	))
	engine := newTestEngine(t, srv, nil)

	summary := engine.Execute(context.Background(), []saga.Definition{def})

	require.Equal(t, 1, summary.Runs)
	assert.Equal(t, 1, summary.Passed)
	assert.Zero(t, summary.Failed)
	assert.Empty(t, summary.Failures)
	assert.Empty(t, summary.Warnings)

	runIDs := srv.RunIDs()
	require.Len(t, runIDs, 1)
	runID := runIDs[0]

	assert.Equal(t, saga.RunStatusPassed, srv.RunStatus(runID))

	// Every step passes through in_progress exactly once before its terminal
	// status.
	for _, key := range []string{"setup-create-biz", "booking-create", "payment-confirm"} {
		assert.Equal(t,
			[]saga.StepStatus{saga.StepStatusInProgress, saga.StepStatusPassed},
			srv.StepHistory(runID, key), "history of %s", key)
	}

	// The booking step's trace holds only its own calls.
	entries := srv.TraceEntries(runID, "booking-create")
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, "/bookings", e.Path)
	}

	snap := srv.Snapshot(runID, "setup-create-biz")
	require.NotNil(t, snap)
	assert.Equal(t, "account", snap["kind"])

	reports := srv.Reports(runID)
	require.Len(t, reports, 1)
	assert.Equal(t, true, reports[0]["ok"])

	// Steps accumulated their metadata patch into the final report.
	meta, ok := reports[0]["meta"].(map[string]any)
	require.True(t, ok, "final report carries no meta: %v", reports[0])
	assert.NotEmpty(t, meta["bizId"])
	assert.NotEmpty(t, meta["lastBookingId"])
}

func TestEngineRunContinuesPastBlockedStep(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	def := saga.Definition{SagaKey: "gap-saga", Title: "Gap", Status: "active"}
	srv.AddSaga(def, steps(
		"setup-create-biz",
		"mystery-step",
		"booking-calendar-view",
	))
	engine := newTestEngine(t, srv, nil)

	summary := engine.Execute(context.Background(), []saga.Definition{def})

	assert.Equal(t, 1, summary.Failed)
	require.NotEmpty(t, summary.Failures)
	assert.Contains(t, summary.Failures[0], "mystery-step")

	runID := srv.RunIDs()[0]
	assert.Equal(t, saga.RunStatusFailed, srv.RunStatus(runID))
	assert.Equal(t,
		[]saga.StepStatus{saga.StepStatusInProgress, saga.StepStatusBlocked},
		srv.StepHistory(runID, "mystery-step"))

	// The step after the gap still executed and passed.
	assert.Equal(t,
		[]saga.StepStatus{saga.StepStatusInProgress, saga.StepStatusPassed},
		srv.StepHistory(runID, "booking-calendar-view"))

	reports := srv.Reports(runID)
	require.Len(t, reports, 1)
	assert.Equal(t, false, reports[0]["ok"])
}

func TestEngineContractFailureDowngradesStep(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	def := saga.Definition{SagaKey: "contract-saga", Title: "Contract", Status: "active"}
	srv.AddSaga(def, steps("setup-create-biz", "test-contract-miss"))
	engine := newTestEngine(t, srv, nil)

	summary := engine.Execute(context.Background(), []saga.Definition{def})

	assert.Equal(t, 1, summary.Failed)
	require.NotEmpty(t, summary.Failures)
	assert.Contains(t, summary.Failures[0], "endpoint usage contract failed")

	runID := srv.RunIDs()[0]
	// The handler itself succeeded; the contract gate failed it.
	assert.Equal(t,
		[]saga.StepStatus{saga.StepStatusInProgress, saga.StepStatusFailed},
		srv.StepHistory(runID, "test-contract-miss"))
}

func TestEngineEvidenceFailureIsWarningNotFailure(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.FailSnapshots(true)
	srv.FailTraces(true)
	def := saga.Definition{SagaKey: "warn-saga", Title: "Warn", Status: "active"}
	srv.AddSaga(def, steps("setup-create-biz"))
	engine := newTestEngine(t, srv, nil)

	summary := engine.Execute(context.Background(), []saga.Definition{def})

	// The step's terminal status is already recorded; lost evidence is a
	// warning, never a run failure.
	assert.Equal(t, 1, summary.Passed)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.Warnings)

	runID := srv.RunIDs()[0]
	assert.Equal(t, saga.RunStatusPassed, srv.RunStatus(runID))
	assert.Nil(t, srv.Snapshot(runID, "setup-create-biz"))
}

func TestEngineMessageGatedStep(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	def := saga.Definition{SagaKey: "message-saga", Title: "Message", Status: "active"}
	gated := saga.RunStep{
		StepKey:           "booking-calendar-view",
		Title:             "calendar after notice",
		DelayMode:         saga.DelayModeUntilCondition,
		DelayConditionKey: "message_for:customer1",
		DelayPollMs:       25,
		DelayTimeoutMs:    3000,
	}
	srv.AddSaga(def, append(steps("setup-create-biz", "ops-send-customer-message"), gated))
	engine := newTestEngine(t, srv, nil)

	summary := engine.Execute(context.Background(), []saga.Definition{def})

	assert.Equal(t, 1, summary.Passed, "failures: %v", summary.Failures)

	runID := srv.RunIDs()[0]
	assert.Equal(t,
		[]saga.StepStatus{saga.StepStatusInProgress, saga.StepStatusPassed},
		srv.StepHistory(runID, "booking-calendar-view"))
}

func TestEngineAdversarialSaga(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	def := saga.Definition{SagaKey: "adversary-saga", Title: "Adversary", Status: "active"}
	srv.AddSaga(def, steps(
		"setup-create-biz",
		"setup-create-location",
		"setup-create-resources",
		"setup-create-offer",
		"booking-create",
		"booking-double-book-probe",
		"adversary-patch-biz",
		"adversary-read-booking",
		"adversary-read-credentials",
	))
	engine := newTestEngine(t, srv, nil)

	summary := engine.Execute(context.Background(), []saga.Definition{def})

	assert.Equal(t, 1, summary.Passed, "failures: %v", summary.Failures)
	assert.Equal(t, saga.RunStatusPassed, srv.RunStatus(srv.RunIDs()[0]))
}

func TestEngineLoadDefinitionsAppliesFilterAndLimit(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddSaga(saga.Definition{SagaKey: "alpha-one", Status: "active"}, steps("setup-create-biz"))
	srv.AddSaga(saga.Definition{SagaKey: "alpha-two", Status: "active"}, steps("setup-create-biz"))
	srv.AddSaga(saga.Definition{SagaKey: "beta-one", Status: "active"}, steps("setup-create-biz"))

	engine := newTestEngine(t, srv, func(cfg *config.Config) {
		cfg.Runner.KeyFilter = "alpha"
		cfg.Runner.ResultLimit = 1
	})

	defs, err := engine.LoadDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Contains(t, defs[0].SagaKey, "alpha")
}

func TestEngineRunsIndependentSagasConcurrently(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	defs := make([]saga.Definition, 5)
	for i := range defs {
		defs[i] = saga.Definition{SagaKey: "iso-" + string(rune('a'+i)), Status: "active"}
		srv.AddSaga(defs[i], steps("setup-create-biz", "setup-create-location"))
	}
	engine := newTestEngine(t, srv, func(cfg *config.Config) {
		cfg.Runner.Concurrency = 3
	})

	summary := engine.Execute(context.Background(), defs)

	assert.Equal(t, 5, summary.Runs)
	assert.Equal(t, 5, summary.Passed, "failures: %v", summary.Failures)
	assert.Equal(t, 5, srv.RunCount())

	// Each run's trace for the biz-create step holds only biz-surface calls.
	for _, runID := range srv.RunIDs() {
		for _, e := range srv.TraceEntries(runID, "setup-create-biz") {
			assert.Equal(t, "/bizes", e.Path)
		}
	}
}
