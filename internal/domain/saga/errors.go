package saga

import "errors"

// StepError is a classified terminal outcome raised by step logic to
// short-circuit execution with a specific classification. A missing
// capability is blocked, a violated assertion is failed, a policy-off
// evaluation is skipped.
type StepError struct {
	Status   StepStatus     `json:"status"`
	Message  string         `json:"message"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// Error implements the error interface
func (e *StepError) Error() string {
	return e.Message
}

// NewStepError creates a classified step error. Only terminal non-passed
// statuses are meaningful; anything else is coerced to failed.
func NewStepError(status StepStatus, message string, evidence map[string]any) *StepError {
	if status != StepStatusFailed && status != StepStatusBlocked && status != StepStatusSkipped {
		status = StepStatusFailed
	}
	return &StepError{Status: status, Message: message, Evidence: evidence}
}

// Failed creates a failed step error: a real defect, a violated business
// assertion or HTTP contract.
func Failed(message string, evidence map[string]any) *StepError {
	return NewStepError(StepStatusFailed, message, evidence)
}

// Blocked creates a blocked step error: a capability gap, not necessarily a
// defect.
func Blocked(message string, evidence map[string]any) *StepError {
	return NewStepError(StepStatusBlocked, message, evidence)
}

// Skipped creates a skipped step error: intentionally not evaluated under the
// current policy.
func Skipped(message string, evidence map[string]any) *StepError {
	return NewStepError(StepStatusSkipped, message, evidence)
}

// Classify maps any error to a classified StepError. Errors that are not
// already classified are treated as failed: an unclassified error is a real
// execution failure, never silently downgraded.
func Classify(err error) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Status: StepStatusFailed, Message: err.Error()}
}

// Outcome is the resolved result of one step execution.
type Outcome struct {
	Status   StepStatus     `json:"status"`
	Payload  map[string]any `json:"payload,omitempty"`
	Message  string         `json:"message,omitempty"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// Passed creates a passed outcome carrying the handler's result payload.
func Passed(payload map[string]any) Outcome {
	return Outcome{Status: StepStatusPassed, Payload: payload}
}

// FromError converts a step execution error into a terminal outcome.
func FromError(err error) Outcome {
	se := Classify(err)
	return Outcome{Status: se.Status, Message: se.Message, Evidence: se.Evidence}
}
