// Package runner implements the saga run execution engine: the worker pool,
// the per-run orchestrator, delay/condition gating, the step handler
// registry, contract verification, and evidence reporting.
package runner

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
	"github.com/ameernuri/bizing-sub005/internal/infrastructure/apiclient"
)

// Actor keys used by scenario bodies. Every run owns a fresh session per
// actor; sessions are never shared across runs.
const (
	ActorOwner     = "owner"
	ActorMember    = "member"
	ActorCustomer1 = "customer1"
	ActorCustomer2 = "customer2"
	ActorAdversary = "adversary"
)

// Entities collects ids created during a run. Append-only within the run.
type Entities struct {
	BizID           string
	LocationID      string
	OfferID         string
	OfferVersionID  string
	QueueID         string
	ResourceIDs     []string
	SubscriptionIDs []string
	ChannelID       string
	PaymentIntentID string
	PolicyID        string
}

// RunContext is the mutable single-run state: actor sessions, created entity
// ids, accumulated booking ids, and the metadata patch accumulator. It is
// owned exclusively by one orchestrator for one run's lifetime.
type RunContext struct {
	Def    saga.Definition
	Run    *saga.Run
	Steps  []saga.RunStep
	RunSvc *apiclient.RunService

	Actors   map[string]*apiclient.Session
	Entities Entities

	bookingIDs []string
	MetaPatch  map[string]any

	StrictExploratory bool
	Log               *zap.Logger
}

// Actor returns the session for the given actor key.
func (rc *RunContext) Actor(key string) (*apiclient.Session, error) {
	sess, ok := rc.Actors[key]
	if !ok {
		return nil, fmt.Errorf("no session for actor %q", key)
	}
	return sess, nil
}

// AddBooking appends a booking id to the run's accumulator.
func (rc *RunContext) AddBooking(id string) {
	rc.bookingIDs = append(rc.bookingIDs, id)
}

// BookingIDs returns the accumulated booking ids in creation order.
func (rc *RunContext) BookingIDs() []string {
	out := make([]string, len(rc.bookingIDs))
	copy(out, rc.bookingIDs)
	return out
}

// Patch merges fields into the run's metadata patch accumulator.
func (rc *RunContext) Patch(fields map[string]any) {
	if rc.MetaPatch == nil {
		rc.MetaPatch = map[string]any{}
	}
	for k, v := range fields {
		rc.MetaPatch[k] = v
	}
}

// StepContext scopes one step execution: the step under execution, its fresh
// trace, and a step-scoped logger. All HTTP issued through it is recorded
// into the step's trace and nowhere else.
type StepContext struct {
	Run   *RunContext
	Step  saga.RunStep
	Trace *saga.Trace
	Log   *zap.Logger
}

// As binds an actor session to the step's trace sink. Handlers call the API
// exclusively through the returned caller.
func (sc *StepContext) As(actorKey string) (*Caller, error) {
	sess, err := sc.Run.Actor(actorKey)
	if err != nil {
		return nil, saga.Blocked(err.Error(), map[string]any{"actor": actorKey})
	}
	return &Caller{sess: sess, sink: sc.Trace}, nil
}

// Caller is an actor session bound to a step's trace sink.
type Caller struct {
	sess *apiclient.Session
	sink saga.Sink
}

// Get performs a traced GET.
func (c *Caller) Get(ctx context.Context, path string, out any) (*apiclient.Response, error) {
	return c.sess.DoJSON(ctx, c.sink, http.MethodGet, path, nil, out)
}

// Post performs a traced POST with a JSON body.
func (c *Caller) Post(ctx context.Context, path string, body, out any) (*apiclient.Response, error) {
	return c.sess.DoJSON(ctx, c.sink, http.MethodPost, path, body, out)
}

// Patch performs a traced PATCH with a JSON body.
func (c *Caller) Patch(ctx context.Context, path string, body, out any) (*apiclient.Response, error) {
	return c.sess.DoJSON(ctx, c.sink, http.MethodPatch, path, body, out)
}

// Delete performs a traced DELETE.
func (c *Caller) Delete(ctx context.Context, path string) (*apiclient.Response, error) {
	return c.sess.DoJSON(ctx, c.sink, http.MethodDelete, path, nil, nil)
}
