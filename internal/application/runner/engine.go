package runner

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ameernuri/bizing-sub005/internal/domain/saga"
	"github.com/ameernuri/bizing-sub005/internal/infrastructure/apiclient"
	"github.com/ameernuri/bizing-sub005/internal/infrastructure/config"
)

// Engine wires the saga runner together: catalog fetch, per-run context
// preparation (actor identities, run creation), orchestration, and the
// bounded worker pool.
type Engine struct {
	cfg      *config.Config
	client   *apiclient.Client
	registry *Registry
	log      *zap.Logger
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := apiclient.New(cfg.Target.BaseURL, cfg.Target.TrustedOrigin, cfg.Target.Timeout, log)
	if err != nil {
		return nil, fmt.Errorf("building api client: %w", err)
	}
	chain := NewExploratoryChain(cfg.Runner.StrictExploratory)
	return &Engine{
		cfg:      cfg,
		client:   client,
		registry: NewRegistry(chain),
		log:      log,
	}, nil
}

// LoadDefinitions fetches the saga catalog through a throwaway identity,
// applying the configured key filter and result limit. The catalog is behind
// the same cookie-session gate as everything else, so the session signs up
// first.
func (e *Engine) LoadDefinitions(ctx context.Context) ([]saga.Definition, error) {
	sess := e.client.NewSession("catalog")
	password := e.cfg.Runner.SessionPassword
	if password == "" {
		password = "pw-" + uuid.NewString()
	}
	email := fmt.Sprintf("catalog-%s@saga.bizing.test", uuid.NewString()[:8])
	if err := sess.SignUp(ctx, email, password, "catalog"); err != nil {
		return nil, fmt.Errorf("bootstrapping catalog session: %w", err)
	}

	svc := apiclient.NewRunService(sess)
	defs, err := svc.ListDefinitions(ctx, e.cfg.Runner.KeyFilter, e.cfg.Runner.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("loading saga catalog: %w", err)
	}
	return defs, nil
}

// Execute runs every definition through the worker pool with the configured
// concurrency bound.
func (e *Engine) Execute(ctx context.Context, defs []saga.Definition) Summary {
	e.log.Info("saga execution starting",
		zap.Int("sagas", len(defs)),
		zap.Int("concurrency", e.cfg.Runner.Concurrency),
	)
	return runPool(ctx, defs, e.cfg.Runner.Concurrency, e.executeOne)
}

// executeOne prepares and executes a single run.
func (e *Engine) executeOne(ctx context.Context, def saga.Definition) (RunOutcome, error) {
	rc, err := e.PrepareRun(ctx, def)
	if err != nil {
		return RunOutcome{}, err
	}
	orch := NewOrchestrator(e.registry, NewReporter(rc.RunSvc, e.log), e.log)
	return orch.ExecuteRun(ctx, rc)
}

// PrepareRun bootstraps one run: fresh actor identities (owner, member,
// customers, adversary), membership wiring, run creation, and the step list
// fetch. All of this traffic happens before any step scope opens, so none of
// it is traced.
func (e *Engine) PrepareRun(ctx context.Context, def saga.Definition) (*RunContext, error) {
	password := e.cfg.Runner.SessionPassword
	if password == "" {
		password = "pw-" + uuid.NewString()
	}

	actorKeys := []string{ActorOwner, ActorMember, ActorCustomer1, ActorCustomer2, ActorAdversary}
	actors := make(map[string]*apiclient.Session, len(actorKeys))
	runTag := uuid.NewString()[:8]
	for _, key := range actorKeys {
		sess := e.client.NewSession(key)
		email := fmt.Sprintf("%s-%s-%s@saga.bizing.test", def.SagaKey, key, runTag)
		if err := sess.SignUp(ctx, email, password, key); err != nil {
			return nil, fmt.Errorf("bootstrapping actor %s for %s: %w", key, def.SagaKey, err)
		}
		actors[key] = sess
	}

	svc := apiclient.NewRunService(actors[ActorOwner])
	run, err := svc.CreateRun(ctx, def.SagaKey)
	if err != nil {
		return nil, fmt.Errorf("creating run for %s: %w", def.SagaKey, err)
	}
	_, steps, err := svc.FetchRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching steps for run %s: %w", run.ID, err)
	}

	return &RunContext{
		Def:               def,
		Run:               run,
		Steps:             steps,
		RunSvc:            svc,
		Actors:            actors,
		StrictExploratory: e.cfg.Runner.StrictExploratory,
		Log:               e.log,
	}, nil
}
