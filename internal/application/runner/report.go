package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
	"github.com/ameernuri/bizing-sub005/internal/infrastructure/apiclient"
)

// Reporter persists step evidence back to the run's durable record. Each
// persistence call is independently fault-tolerant: a failed snapshot or
// trace write becomes a run-level warning and never aborts the run or loses
// an already-recorded terminal status.
type Reporter struct {
	svc *apiclient.RunService
	log *zap.Logger
}

// NewReporter creates an evidence reporter.
func NewReporter(svc *apiclient.RunService, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{svc: svc, log: log}
}

// ReportInProgress marks the step in_progress before any logic runs, so a
// crash mid-execution is observably "in progress", never falsely "pending".
func (r *Reporter) ReportInProgress(ctx context.Context, runID, stepKey string, startedAt time.Time) error {
	return r.svc.ReportStep(ctx, runID, stepKey, apiclient.StepResultReport{
		Status:    saga.StepStatusInProgress,
		StartedAt: startedAt,
	})
}

// ReportTerminal records the step's terminal status with its payload and
// contract summary.
func (r *Reporter) ReportTerminal(ctx context.Context, runID, stepKey string, outcome saga.Outcome, startedAt time.Time, summary *saga.ContractCheckSummary) error {
	endedAt := time.Now().UTC()
	payload := outcome.Payload
	if payload == nil && outcome.Evidence != nil {
		payload = map[string]any{"evidence": outcome.Evidence}
	}
	return r.svc.ReportStep(ctx, runID, stepKey, apiclient.StepResultReport{
		Status:           outcome.Status,
		StartedAt:        startedAt,
		EndedAt:          &endedAt,
		FailureMessage:   outcome.Message,
		ResultPayload:    payload,
		AssertionSummary: summary,
	})
}

// AttachTrace persists the step's recorded API calls.
func (r *Reporter) AttachTrace(ctx context.Context, runID, stepKey string, trace *saga.Trace) error {
	entries := trace.Entries()
	if len(entries) == 0 {
		return nil
	}
	return r.svc.AttachTrace(ctx, runID, stepKey, entries)
}

// AttachSnapshot builds and persists the step's UI-renderable snapshot.
func (r *Reporter) AttachSnapshot(ctx context.Context, runID, stepKey string, outcome saga.Outcome) error {
	snapshot := BuildSnapshot(stepKey, outcome)
	return r.svc.AttachSnapshot(ctx, runID, stepKey, snapshot)
}

// SubmitReport submits the run's final report, including the metadata patch
// the run's steps accumulated.
func (r *Reporter) SubmitReport(ctx context.Context, runID string, outcome RunOutcome, meta map[string]any) error {
	body := map[string]any{
		"ok":       outcome.OK,
		"failures": outcome.Failures,
		"warnings": outcome.Warnings,
	}
	if len(meta) > 0 {
		body["meta"] = meta
	}
	return r.svc.SubmitReport(ctx, runID, body)
}

// warnf records a persistence failure as a run-level warning.
func warnf(warnings *[]string, log *zap.Logger, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	*warnings = append(*warnings, msg)
	log.Warn("evidence persistence failure", zap.String("detail", msg))
}
