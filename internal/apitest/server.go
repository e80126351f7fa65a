// Package apitest provides an in-memory Bizing API for package tests: the
// run-lifecycle surface, the domain endpoints the scenario bodies touch,
// cookie-session auth, and the synthetic failure endpoints. State lives in
// maps under one mutex; nothing survives the test.
package apitest

import (
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
)

const sessionCookie = "bz_session"

// EvaluatorFunc produces the exploratory evaluator's HTTP response for a
// step. The default (nil) evaluator answers 404, i.e. unavailable.
type EvaluatorFunc func(stepKey, stepFamily string) (int, any)

type user struct {
	id          string
	email       string
	displayName string
}

type biz struct {
	id      string
	name    string
	ownerID string
	members map[string]bool
}

type booking struct {
	id         string
	bookerID   string
	bizID      string
	offerID    string
	resourceID string
	startAt    string
	status     string
}

type paymentIntent struct {
	id       string
	bookerID string
	bizID    string
	status   string
	amount   string
}

type stepState struct {
	step    saga.RunStep
	history []saga.StepStatus
	started time.Time
}

type runState struct {
	run   saga.Run
	steps []*stepState
}

type inboxMessage struct {
	RunID string `json:"runId"`
	From  string `json:"from"`
	Body  string `json:"body"`
}

// Server is the fake API.
type Server struct {
	ts *httptest.Server

	mu            sync.Mutex
	users         map[string]*user // session token -> user
	usersByName   map[string]*user // displayName -> user (for message delivery)
	bizes         map[string]*biz
	locations     map[string]string // locationID -> bizID
	resources     map[string][]string
	offers        map[string]string // offerID -> bizID
	offerVersions map[string][]string
	bookings      map[string]*booking
	intents       map[string]*paymentIntent
	invites       map[string]string // token -> bizID
	inbox         map[string][]inboxMessage
	subs          map[string][]string // userID -> subscription ids
	defs          []saga.Definition
	templates     map[string][]saga.RunStep
	runs          map[string]*runState

	evaluator     EvaluatorFunc
	failSnapshots bool
	failTraces    bool
	failResults   bool
	traces        map[string][]saga.TraceEntry // runID/stepKey
	snapshots     map[string]map[string]any
	reports       map[string][]map[string]any
}

// NewServer starts the fake API.
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		users:         map[string]*user{},
		usersByName:   map[string]*user{},
		bizes:         map[string]*biz{},
		locations:     map[string]string{},
		resources:     map[string][]string{},
		offers:        map[string]string{},
		offerVersions: map[string][]string{},
		bookings:      map[string]*booking{},
		intents:       map[string]*paymentIntent{},
		invites:       map[string]string{},
		inbox:         map[string][]inboxMessage{},
		subs:          map[string][]string{},
		templates:     map[string][]saga.RunStep{},
		runs:          map[string]*runState{},
		traces:        map[string][]saga.TraceEntry{},
		snapshots:     map[string]map[string]any{},
		reports:       map[string][]map[string]any{},
	}
	s.ts = httptest.NewServer(s.router())
	return s
}

// URL returns the API base URL.
func (s *Server) URL() string { return s.ts.URL }

// Close shuts the server down.
func (s *Server) Close() { s.ts.Close() }

// AddSaga registers a definition and its step templates in the catalog.
func (s *Server) AddSaga(def saga.Definition, steps []saga.RunStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, def)
	s.templates[def.SagaKey] = steps
}

// SetEvaluator installs the exploratory evaluator behavior.
func (s *Server) SetEvaluator(fn EvaluatorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluator = fn
}

// FailSnapshots makes snapshot attachment return 500.
func (s *Server) FailSnapshots(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSnapshots = fail
}

// FailTraces makes trace attachment return 500.
func (s *Server) FailTraces(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTraces = fail
}

// FailResults makes step result reporting return 500.
func (s *Server) FailResults(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failResults = fail
}

// RunIDs returns the ids of every run created, in no particular order.
func (s *Server) RunIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.runs))
	for id := range s.runs {
		out = append(out, id)
	}
	return out
}

// StepHistory returns the status transitions recorded for a step.
func (s *Server) StepHistory(runID, stepKey string) []saga.StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.runs[runID]
	if !ok {
		return nil
	}
	for _, st := range rs.steps {
		if st.step.StepKey == stepKey {
			out := make([]saga.StepStatus, len(st.history))
			copy(out, st.history)
			return out
		}
	}
	return nil
}

// TraceEntries returns the persisted trace for a step.
func (s *Server) TraceEntries(runID, stepKey string) []saga.TraceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traces[runID+"/"+stepKey]
}

// Snapshot returns the persisted snapshot for a step.
func (s *Server) Snapshot(runID, stepKey string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[runID+"/"+stepKey]
}

// RunStatus returns the run's computed status.
func (s *Server) RunStatus(runID string) saga.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.runs[runID]
	if !ok {
		return ""
	}
	return rs.run.Status
}

// RunCount returns the number of runs created.
func (s *Server) RunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Reports returns the final reports submitted for a run.
func (s *Server) Reports(runID string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[runID]
}
