package runner

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/apitest"
	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
	"github.com/ameernuri/bizing-sub005/internal/infrastructure/apiclient"
)

func delayStepContext(rc *RunContext, step saga.RunStep) *StepContext {
	if rc == nil {
		rc = &RunContext{}
	}
	return &StepContext{Run: rc, Step: step, Trace: saga.NewTrace(), Log: zap.NewNop()}
}

func TestExecuteStepDelayNone(t *testing.T) {
	for _, mode := range []saga.DelayMode{"", saga.DelayModeNone} {
		start := time.Now()
		err := ExecuteStepDelay(context.Background(), delayStepContext(nil, saga.RunStep{
			StepKey:   "s",
			DelayMode: mode,
		}))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	}
}

func TestFixedDelayWaitsForDuration(t *testing.T) {
	start := time.Now()
	err := ExecuteStepDelay(context.Background(), delayStepContext(nil, saga.RunStep{
		StepKey:   "s",
		DelayMode: saga.DelayModeFixed,
		DelayMs:   100,
	}))
	require.NoError(t, err)

	// With zero jitter the wait is the declared duration and nothing more: no
	// stray poll interval, no extra jitter draw.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 150*time.Millisecond)
}

func TestFixedDelayWithoutDurationIsBlocked(t *testing.T) {
	err := ExecuteStepDelay(context.Background(), delayStepContext(nil, saga.RunStep{
		StepKey:   "s",
		DelayMode: saga.DelayModeFixed,
	}))
	require.Error(t, err)
	assert.Equal(t, saga.StepStatusBlocked, saga.Classify(err).Status)
}

func TestUnknownDelayModeIsBlocked(t *testing.T) {
	err := ExecuteStepDelay(context.Background(), delayStepContext(nil, saga.RunStep{
		StepKey:   "s",
		DelayMode: "eventually",
	}))
	require.Error(t, err)
	assert.Equal(t, saga.StepStatusBlocked, saga.Classify(err).Status)
}

func TestFixedDelayInterruptedByCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ExecuteStepDelay(ctx, delayStepContext(nil, saga.RunStep{
		StepKey:   "s",
		DelayMode: saga.DelayModeFixed,
		DelayMs:   5000,
	}))
	require.Error(t, err)
	se := saga.Classify(err)
	assert.Equal(t, saga.StepStatusFailed, se.Status)
	assert.Contains(t, se.Message, "interrupted")
}

func TestAlwaysConditionResolvesImmediately(t *testing.T) {
	start := time.Now()
	err := ExecuteStepDelay(context.Background(), delayStepContext(nil, saga.RunStep{
		StepKey:           "s",
		DelayMode:         saga.DelayModeUntilCondition,
		DelayConditionKey: "always",
	}))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestUnknownConditionKeyBlocksWithoutWaiting(t *testing.T) {
	start := time.Now()
	err := ExecuteStepDelay(context.Background(), delayStepContext(nil, saga.RunStep{
		StepKey:           "s",
		DelayMode:         saga.DelayModeUntilCondition,
		DelayConditionKey: "phase_of_moon:full",
	}))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	se := saga.Classify(err)
	assert.Equal(t, saga.StepStatusBlocked, se.Status)
	assert.Equal(t, supportedConditionForms, se.Evidence["supportedForms"])
}

func TestMessageForUnknownActorIsBlocked(t *testing.T) {
	err := ExecuteStepDelay(context.Background(), delayStepContext(&RunContext{
		Run: &saga.Run{ID: "r-1"},
	}, saga.RunStep{
		StepKey:           "s",
		DelayMode:         saga.DelayModeUntilCondition,
		DelayConditionKey: "message_for:ghost",
	}))
	require.Error(t, err)
	assert.Equal(t, saga.StepStatusBlocked, saga.Classify(err).Status)
}

// signUpSession registers a fresh actor against the fake API.
func signUpSession(t *testing.T, client *apiclient.Client, actorKey, email string) *apiclient.Session {
	t.Helper()
	sess := client.NewSession(actorKey)
	require.NoError(t, sess.SignUp(context.Background(), email, "pw-test", actorKey))
	return sess
}

func TestMessageForConditionTimesOutAsFailed(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	client, err := apiclient.New(srv.URL(), "http://localhost:3000", 5*time.Second, nil)
	require.NoError(t, err)

	customer := signUpSession(t, client, ActorCustomer1, "c1@delay.test")
	rc := &RunContext{
		Run:    &saga.Run{ID: "r-timeout"},
		Actors: map[string]*apiclient.Session{ActorCustomer1: customer},
	}

	err = ExecuteStepDelay(context.Background(), delayStepContext(rc, saga.RunStep{
		StepKey:           "s",
		DelayMode:         saga.DelayModeUntilCondition,
		DelayConditionKey: "message_for:customer1",
		DelayPollMs:       20,
		DelayTimeoutMs:    100,
	}))
	require.Error(t, err)
	se := saga.Classify(err)
	assert.Equal(t, saga.StepStatusFailed, se.Status)
	assert.Contains(t, se.Message, "did not hold")
}

func TestMessageForConditionResolvesOnceDelivered(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	client, err := apiclient.New(srv.URL(), "http://localhost:3000", 5*time.Second, nil)
	require.NoError(t, err)
	ctx := context.Background()

	owner := signUpSession(t, client, ActorOwner, "owner@delay.test")
	customer := signUpSession(t, client, ActorCustomer1, "c1@delay.test")

	var biz struct {
		ID string `json:"id"`
	}
	resp, err := owner.DoJSON(ctx, nil, http.MethodPost, "/bizes", map[string]any{"name": "delay-biz"}, &biz)
	require.NoError(t, err)
	require.Equal(t, 201, resp.Status)

	resp, err = owner.Do(ctx, nil, http.MethodPost, "/bizes/"+biz.ID+"/messages", map[string]any{
		"to":    ActorCustomer1,
		"runId": "r-delivered",
		"body":  "ready",
	})
	require.NoError(t, err)
	require.True(t, resp.OK())

	rc := &RunContext{
		Run:    &saga.Run{ID: "r-delivered"},
		Actors: map[string]*apiclient.Session{ActorCustomer1: customer},
	}
	start := time.Now()
	err = ExecuteStepDelay(ctx, delayStepContext(rc, saga.RunStep{
		StepKey:           "s",
		DelayMode:         saga.DelayModeUntilCondition,
		DelayConditionKey: "message_for:customer1",
		DelayPollMs:       20,
		DelayTimeoutMs:    2000,
	}))
	require.NoError(t, err)
	// The up-front probe sees the message without waiting a poll interval.
	assert.Less(t, time.Since(start), time.Second)
}

func TestStepDoneCondition(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddSaga(saga.Definition{SagaKey: "delay-saga", Title: "delay", Status: "active"}, []saga.RunStep{
		{StepKey: "first"},
		{StepKey: "second"},
	})
	client, err := apiclient.New(srv.URL(), "http://localhost:3000", 5*time.Second, nil)
	require.NoError(t, err)
	ctx := context.Background()

	owner := signUpSession(t, client, ActorOwner, "owner@stepdone.test")
	svc := apiclient.NewRunService(owner)
	run, err := svc.CreateRun(ctx, "delay-saga")
	require.NoError(t, err)

	started := time.Now().UTC()
	require.NoError(t, svc.ReportStep(ctx, run.ID, "first", apiclient.StepResultReport{
		Status: saga.StepStatusInProgress, StartedAt: started,
	}))
	require.NoError(t, svc.ReportStep(ctx, run.ID, "first", apiclient.StepResultReport{
		Status: saga.StepStatusPassed, StartedAt: started,
	}))

	rc := &RunContext{Run: run, RunSvc: svc}

	t.Run("terminal step resolves", func(t *testing.T) {
		err := ExecuteStepDelay(ctx, delayStepContext(rc, saga.RunStep{
			StepKey:           "gated",
			DelayMode:         saga.DelayModeUntilCondition,
			DelayConditionKey: "step_done:first",
		}))
		assert.NoError(t, err)
	})

	t.Run("pending step times out as failed", func(t *testing.T) {
		err := ExecuteStepDelay(ctx, delayStepContext(rc, saga.RunStep{
			StepKey:           "gated",
			DelayMode:         saga.DelayModeUntilCondition,
			DelayConditionKey: "step_done:second",
			DelayPollMs:       20,
			DelayTimeoutMs:    100,
		}))
		require.Error(t, err)
		assert.Equal(t, saga.StepStatusFailed, saga.Classify(err).Status)
	})

	t.Run("unknown step blocks", func(t *testing.T) {
		err := ExecuteStepDelay(ctx, delayStepContext(rc, saga.RunStep{
			StepKey:           "gated",
			DelayMode:         saga.DelayModeUntilCondition,
			DelayConditionKey: "step_done:ghost",
		}))
		require.Error(t, err)
		assert.Equal(t, saga.StepStatusBlocked, saga.Classify(err).Status)
	})
}
