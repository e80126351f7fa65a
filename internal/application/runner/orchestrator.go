package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// RunOutcome is the aggregate result of one run's execution.
type RunOutcome struct {
	OK       bool
	Failures []string // "stepKey: message" per failed or blocked step
	Warnings []string // evidence persistence failures, non-fatal
}

// Orchestrator executes one run's steps sequentially: delay gating, isolated
// trace scope, handler dispatch, contract verification, and evidence
// reporting around every step. Steps after a failure still execute; the
// engine maximizes observed coverage per run rather than failing fast.
type Orchestrator struct {
	registry *Registry
	reporter *Reporter
	log      *zap.Logger
}

// NewOrchestrator creates a run orchestrator.
func NewOrchestrator(registry *Registry, reporter *Reporter, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{registry: registry, reporter: reporter, log: log}
}

// ExecuteRun executes every step of the run in definition order, submits the
// final report, and re-fetches the run. The run is OK iff its final fetched
// status is passed. Returned errors are infrastructure-level only (the run
// record itself unreachable); step failures are data, not errors.
func (o *Orchestrator) ExecuteRun(ctx context.Context, rc *RunContext) (RunOutcome, error) {
	outcome := RunOutcome{}
	runID := rc.Run.ID
	log := o.log.With(zap.String("saga", rc.Def.SagaKey), zap.String("run", runID))

	for _, step := range rc.Steps {
		stepOutcome := o.executeStep(ctx, rc, step, log, &outcome.Warnings)
		switch stepOutcome.Status {
		case saga.StepStatusPassed, saga.StepStatusSkipped:
			// skipped does not count against pass/fail but stays visible
			// for manual review
		default:
			outcome.Failures = append(outcome.Failures,
				fmt.Sprintf("%s: %s", step.StepKey, stepOutcome.Message))
		}
	}

	// The verdict comes from the run service's own computed status, so it must
	// be fetched before the final report is submitted.
	run, _, err := rc.RunSvc.FetchRun(ctx, runID)
	if err != nil {
		return outcome, fmt.Errorf("fetching final run state for %s: %w", runID, err)
	}
	outcome.OK = run.Status == saga.RunStatusPassed

	if err := o.reporter.SubmitReport(ctx, runID, outcome, rc.MetaPatch); err != nil {
		warnf(&outcome.Warnings, log, "final report for run %s: %v", runID, err)
	}

	log.Info("run finished",
		zap.String("status", run.Status.String()),
		zap.Int("failures", len(outcome.Failures)),
		zap.Int("warnings", len(outcome.Warnings)),
	)
	return outcome, nil
}

// executeStep resolves one step to a terminal outcome and persists its
// evidence. It never returns an error: every failure mode is classified into
// the outcome, and persistence failures are downgraded to warnings.
func (o *Orchestrator) executeStep(ctx context.Context, rc *RunContext, step saga.RunStep, log *zap.Logger, warnings *[]string) saga.Outcome {
	startedAt := time.Now().UTC()
	stepLog := log.With(zap.String("step", step.StepKey))
	stepLog.Info("step started")

	if err := o.reporter.ReportInProgress(ctx, rc.Run.ID, step.StepKey, startedAt); err != nil {
		warnf(warnings, stepLog, "in_progress report for %s: %v", step.StepKey, err)
	}

	// Fresh trace per execution: isolation is structural, never a shared
	// buffer, so concurrent runs cannot intermix calls.
	sc := &StepContext{
		Run:   rc,
		Step:  step,
		Trace: saga.NewTrace(),
		Log:   stepLog,
	}

	outcome, summary := o.resolveStep(ctx, sc)

	if err := o.reporter.ReportTerminal(ctx, rc.Run.ID, step.StepKey, outcome, startedAt, summary); err != nil {
		warnf(warnings, stepLog, "terminal report for %s: %v", step.StepKey, err)
	}
	if err := o.reporter.AttachTrace(ctx, rc.Run.ID, step.StepKey, sc.Trace); err != nil {
		warnf(warnings, stepLog, "trace attach for %s: %v", step.StepKey, err)
	}
	if err := o.reporter.AttachSnapshot(ctx, rc.Run.ID, step.StepKey, outcome); err != nil {
		warnf(warnings, stepLog, "snapshot attach for %s: %v", step.StepKey, err)
	}

	stepLog.Info("step finished",
		zap.String("status", outcome.Status.String()),
		zap.Int("calls", sc.Trace.Len()),
	)
	return outcome
}

// resolveStep runs delay gating and the step handler, then layers contract
// verification on top of a successful result. A contract failure downgrades
// an otherwise-successful step to failed.
func (o *Orchestrator) resolveStep(ctx context.Context, sc *StepContext) (saga.Outcome, *saga.ContractCheckSummary) {
	if err := ExecuteStepDelay(ctx, sc); err != nil {
		return saga.FromError(err), nil
	}

	payload, err := o.registry.Execute(ctx, sc)
	if err != nil {
		return saga.FromError(err), EvaluateStepContract(sc.Step.StepKey, sc.Trace.Entries())
	}

	summary := EvaluateStepContract(sc.Step.StepKey, sc.Trace.Entries())
	if summary != nil && summary.FailedRules > 0 {
		return saga.Outcome{
			Status:  saga.StepStatusFailed,
			Payload: payload,
			Message: fmt.Sprintf("endpoint usage contract failed: %d of %d rules unmatched",
				summary.FailedRules, summary.FailedRules+summary.PassedRules),
		}, summary
	}
	return saga.Passed(payload), summary
}
