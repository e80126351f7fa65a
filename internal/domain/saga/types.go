// Package saga defines the data model for scripted scenario execution:
// saga definitions, runs, steps, classified step outcomes, and the
// per-execution API call trace.
package saga

// RunStatus represents the status of a saga run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPassed    RunStatus = "passed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsValid checks if the status is a valid RunStatus
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusPassed, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of RunStatus
func (s RunStatus) String() string {
	return string(s)
}

// StepStatus represents the status of a single run step
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusPassed     StepStatus = "passed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
	StepStatusBlocked    StepStatus = "blocked"
)

// IsValid checks if the status is a valid StepStatus
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusPending, StepStatusInProgress, StepStatusPassed,
		StepStatusFailed, StepStatusSkipped, StepStatusBlocked:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a terminal step state.
// A step passes through in_progress exactly once before any of these.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusPassed, StepStatusFailed, StepStatusSkipped, StepStatusBlocked:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status.
// Step status is monotonic: it never regresses, and every terminal state is
// reached through in_progress.
func (s StepStatus) CanTransitionTo(target StepStatus) bool {
	switch s {
	case StepStatusPending:
		return target == StepStatusInProgress
	case StepStatusInProgress:
		return target.IsTerminal()
	}
	return false
}

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	return string(s)
}

// DelayMode describes how a step is gated before its logic runs
type DelayMode string

const (
	DelayModeNone           DelayMode = "none"
	DelayModeFixed          DelayMode = "fixed"
	DelayModeUntilCondition DelayMode = "until_condition"
)

// Definition is an immutable scenario template owned by the catalog service.
type Definition struct {
	SagaKey string `json:"sagaKey"`
	Title   string `json:"title"`
	Status  string `json:"status"`
}

// Run is one execution instance of a Definition. It is created by the
// orchestrator and mutated by the run service as steps report results.
type Run struct {
	ID          string    `json:"id"`
	SagaKey     string    `json:"sagaKey"`
	Status      RunStatus `json:"status"`
	PassedSteps int       `json:"passedSteps"`
	TotalSteps  int       `json:"totalSteps"`
}

// RunStep is one unit of work within a run.
type RunStep struct {
	StepKey        string     `json:"stepKey"`
	Title          string     `json:"title"`
	Status         StepStatus `json:"status"`
	Instruction    string     `json:"instruction,omitempty"`
	ExpectedResult string     `json:"expectedResult,omitempty"`

	DelayMode         DelayMode `json:"delayMode,omitempty"`
	DelayMs           int64     `json:"delayMs,omitempty"`
	DelayConditionKey string    `json:"delayConditionKey,omitempty"`
	DelayTimeoutMs    int64     `json:"delayTimeoutMs,omitempty"`
	DelayPollMs       int64     `json:"delayPollMs,omitempty"`
	DelayJitterMs     int64     `json:"delayJitterMs,omitempty"`
}

// ContractRuleResult is the outcome of one endpoint-usage rule.
type ContractRuleResult struct {
	Description string   `json:"description"`
	AnyOf       []string `json:"anyOf"`
	Matched     []string `json:"matched"`
	Passed      bool     `json:"passed"`
}

// ContractCheckSummary is derived fresh per step from the step's trace; it is
// never persisted independently.
type ContractCheckSummary struct {
	Description   string               `json:"description"`
	ObservedPaths []string             `json:"observedPaths"`
	MatchedPaths  []string             `json:"matchedPaths"`
	Rules         []ContractRuleResult `json:"rules"`
	PassedRules   int                  `json:"passedRules"`
	FailedRules   int                  `json:"failedRules"`
}
