package saga

import (
	"fmt"
	"sync"
	"time"
)

// maxTraceBodyBytes bounds how much of a request/response body is kept in a
// trace entry. Larger bodies are stored as a preview plus a size marker.
const maxTraceBodyBytes = 2048

// TraceEntry records one HTTP call made during a step execution.
type TraceEntry struct {
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Status       int       `json:"status"`
	RequestBody  string    `json:"requestBody,omitempty"`
	ResponseBody string    `json:"responseBody,omitempty"`
	At           time.Time `json:"at"`
}

// Sink receives trace entries. The call client records into whatever sink it
// is handed; a nil sink means the call is not recorded.
type Sink interface {
	Record(entry TraceEntry)
}

// Trace is an isolated, mutable call list scoped to one step execution.
// A fresh Trace is allocated per step; it is never shared across steps or
// runs, so concurrent executions cannot intermix entries.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
}

// NewTrace creates an empty trace for one step execution.
func NewTrace() *Trace {
	return &Trace{}
}

// Record appends one call to the trace.
func (t *Trace) Record(entry TraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

// Entries returns a copy of the recorded calls in record order.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded calls.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Paths returns the observed request paths in record order.
func (t *Trace) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := make([]string, len(t.entries))
	for i, e := range t.entries {
		paths[i] = e.Path
	}
	return paths
}

// TruncateBody bounds a body for trace storage. Bodies over the limit keep a
// preview and a size marker so the dashboard stays renderable.
func TruncateBody(body []byte) string {
	if len(body) <= maxTraceBodyBytes {
		return string(body)
	}
	return fmt.Sprintf("%s... [truncated, %d bytes total]", body[:maxTraceBodyBytes], len(body))
}
