package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

// RunService is the client for the saga run-lifecycle API: run creation,
// step result reporting, evidence attachment, and the remote exploratory
// evaluator. It rides on the operator's session.
type RunService struct {
	s *Session
}

// NewRunService creates a run-lifecycle client bound to the given session.
func NewRunService(s *Session) *RunService {
	return &RunService{s: s}
}

// StepResultReport is the wire body for reporting one step's result.
type StepResultReport struct {
	Status           saga.StepStatus            `json:"status"`
	StartedAt        time.Time                  `json:"startedAt"`
	EndedAt          *time.Time                 `json:"endedAt,omitempty"`
	FailureMessage   string                     `json:"failureMessage,omitempty"`
	ResultPayload    map[string]any             `json:"resultPayload,omitempty"`
	AssertionSummary *saga.ContractCheckSummary `json:"assertionSummary,omitempty"`
}

// ExploratoryEvaluation is the remote semantic evaluator's verdict for a
// prose-derived step.
type ExploratoryEvaluation struct {
	Status                 saga.StepStatus `json:"status"`
	Verdict                string          `json:"verdict"`
	Confidence             float64         `json:"confidence"`
	Summary                string          `json:"summary"`
	ReasonCode             string          `json:"reasonCode"`
	EvidencePointers       []string        `json:"evidencePointers"`
	Gaps                   []string        `json:"gaps"`
	DeterministicFollowUps []string        `json:"deterministicFollowUps"`
}

// ListDefinitions fetches the saga catalog, optionally filtered by a key
// substring and capped at limit entries (0 means no cap).
func (r *RunService) ListDefinitions(ctx context.Context, keyFilter string, limit int) ([]saga.Definition, error) {
	q := url.Values{}
	if keyFilter != "" {
		q.Set("key", keyFilter)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/sagas"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Sagas []saga.Definition `json:"sagas"`
	}
	resp, err := r.s.DoJSON(ctx, nil, http.MethodGet, path, nil, &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("saga catalog fetch returned %d", resp.Status)
	}
	return out.Sagas, nil
}

// CreateRun creates one run of the given saga.
func (r *RunService) CreateRun(ctx context.Context, sagaKey string) (*saga.Run, error) {
	var out saga.Run
	resp, err := r.s.DoJSON(ctx, nil, http.MethodPost, "/sagas/runs", map[string]any{
		"sagaKey": sagaKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("run create for %s returned %d: %s", sagaKey, resp.Status, resp.Body)
	}
	return &out, nil
}

// FetchRun fetches one run and its step list.
func (r *RunService) FetchRun(ctx context.Context, runID string) (*saga.Run, []saga.RunStep, error) {
	var out struct {
		saga.Run
		Steps []saga.RunStep `json:"steps"`
	}
	resp, err := r.s.DoJSON(ctx, nil, http.MethodGet, "/sagas/runs/"+runID, nil, &out)
	if err != nil {
		return nil, nil, err
	}
	if !resp.OK() {
		return nil, nil, fmt.Errorf("run fetch %s returned %d", runID, resp.Status)
	}
	return &out.Run, out.Steps, nil
}

// ReportStep persists one step status transition with its result payload.
func (r *RunService) ReportStep(ctx context.Context, runID, stepKey string, report StepResultReport) error {
	resp, err := r.s.Do(ctx, nil, http.MethodPost, "/sagas/runs/"+runID+"/steps/"+stepKey+"/result", report)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("step result for %s returned %d: %s", stepKey, resp.Status, resp.Body)
	}
	return nil
}

// AttachSnapshot persists one UI-renderable snapshot for a step.
func (r *RunService) AttachSnapshot(ctx context.Context, runID, stepKey string, snapshot map[string]any) error {
	resp, err := r.s.Do(ctx, nil, http.MethodPost, "/sagas/runs/"+runID+"/steps/"+stepKey+"/snapshots", snapshot)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("snapshot attach for %s returned %d: %s", stepKey, resp.Status, resp.Body)
	}
	return nil
}

// AttachTrace persists the step's recorded API calls.
func (r *RunService) AttachTrace(ctx context.Context, runID, stepKey string, entries []saga.TraceEntry) error {
	resp, err := r.s.Do(ctx, nil, http.MethodPost, "/sagas/runs/"+runID+"/steps/"+stepKey+"/traces", map[string]any{
		"entries": entries,
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("trace attach for %s returned %d: %s", stepKey, resp.Status, resp.Body)
	}
	return nil
}

// SubmitReport submits the run's final report.
func (r *RunService) SubmitReport(ctx context.Context, runID string, report map[string]any) error {
	resp, err := r.s.Do(ctx, nil, http.MethodPost, "/sagas/runs/"+runID+"/report", report)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("run report for %s returned %d: %s", runID, resp.Status, resp.Body)
	}
	return nil
}

// ExploratoryEvaluate asks the remote semantic evaluator to judge a
// prose-derived step.
func (r *RunService) ExploratoryEvaluate(ctx context.Context, runID, stepKey, stepFamily string) (*ExploratoryEvaluation, error) {
	var out ExploratoryEvaluation
	resp, err := r.s.DoJSON(ctx, nil, http.MethodPost,
		"/sagas/runs/"+runID+"/steps/"+stepKey+"/exploratory-evaluate",
		map[string]any{"stepFamily": stepFamily}, &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("exploratory evaluate for %s returned %d", stepKey, resp.Status)
	}
	if out.Status == "" {
		return nil, fmt.Errorf("exploratory evaluate for %s returned no status", stepKey)
	}
	return &out, nil
}

// Messages returns the actor's inbox messages for a run. Backs the
// message_for delay condition.
func (s *Session) Messages(ctx context.Context, runID string) ([]map[string]any, error) {
	var out struct {
		Messages []map[string]any `json:"messages"`
	}
	resp, err := s.DoJSON(ctx, nil, http.MethodGet, "/me/inbox?runId="+url.QueryEscape(runID), nil, &out)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("inbox fetch returned %d", resp.Status)
	}
	return out.Messages, nil
}
