package proxmox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/openconverge/converge/pkg/blueprint"
	"github.com/openconverge/converge/pkg/engine"
	"github.com/openconverge/converge/pkg/resilience"
	"github.com/openconverge/converge/pkg/state"
	"github.com/openconverge/converge/pkg/telemetry"
)

const breakerName = "proxmox"

// Engine drives a Proxmox VE target. Construct one Engine per provider
// target and keep it for the process lifetime: the circuit breaker lives
// on the engine value, and rebuilding the engine per request would reset
// its failure accounting.
type Engine struct {
	client  *client
	node    string
	log     zerolog.Logger
	metrics *telemetry.Metrics

	breaker *resilience.CircuitBreaker
	guard   resilience.Guard

	pollInterval time.Duration
	taskTimeout  time.Duration
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine for the configured provider target.
func New(cfg Config) *Engine {
	cfg.applyDefaults()

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             breakerName,
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
		// Client-side API errors (4xx) mean a bad request, not a failing
		// provider, so they do not count toward the threshold.
		IsFailure: func(err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status >= 500 || apiErr.Status == 401
			}
			return true
		},
		Logger: cfg.Logger,
	})

	retrier := resilience.NewRetrier(resilience.RetrierConfig{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
		// Retry transport failures and provider 5xx; a 4xx will not get
		// better on its own. Open-circuit rejections are handled by the
		// default rule inside the guard composition.
		Retryable: func(err error) bool {
			if !resilience.DefaultRetryable(err) {
				return false
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status >= 500
			}
			return true
		},
		Logger: cfg.Logger,
	})

	return &Engine{
		client:       newClient(cfg),
		node:         cfg.Node,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		breaker:      breaker,
		guard:        resilience.NewGuard(retrier, breaker),
		pollInterval: cfg.TaskPollInterval,
		taskTimeout:  cfg.TaskTimeout,
	}
}

// Breaker exposes the engine's circuit breaker, mainly for health surfaces.
func (e *Engine) Breaker() *resilience.CircuitBreaker {
	return e.breaker
}

// SupportedResourceTypes advertises the resource types this driver accepts.
func (e *Engine) SupportedResourceTypes() []string {
	return []string{"compute"}
}

// HealthCheck reports whether the provider is reachable and the credential
// pair is accepted. Authentication failure yields false, never an error.
func (e *Engine) HealthCheck(ctx context.Context) bool {
	err := e.mutate(ctx, "health-check", func(ctx context.Context) error {
		return e.client.authenticate(ctx)
	})
	return err == nil
}

// GetState queries the provider for both guest sub-kinds, filters the
// results down to names declared in the blueprint, and normalizes each
// guest's configuration into canonical units.
//
// A provider or authentication failure during listing degrades to an empty
// result set rather than an error; callers distinguish that from "nothing
// exists yet" via HealthCheck.
func (e *Engine) GetState(ctx context.Context, bp *blueprint.SystemBlueprint) ([]state.ResourceState, error) {
	names := bp.ResourceNames()

	states := make([]state.ResourceState, 0, len(names))
	for _, kind := range []guestKind{kindQemu, kindLXC} {
		entries, err := e.listGuests(ctx, kind)
		if err != nil {
			e.log.Warn().Err(err).
				Str("kind", string(kind)).
				Msg("listing failed; degrading to empty state")
			return []state.ResourceState{}, nil
		}

		for _, entry := range entries {
			if entry.Template == 1 {
				continue
			}
			if _, wanted := names[entry.Name]; !wanted {
				continue
			}

			g := entry.toGuest(kind)
			var raw map[string]any
			err := e.guarded(ctx, "get-config", func(ctx context.Context) error {
				return e.client.get(ctx, e.guestPath(g, "config"), &raw)
			})
			if err != nil {
				e.log.Warn().Err(err).
					Str("resource", g.Name).
					Msg("failed to read guest config; skipping")
				continue
			}

			states = append(states, state.ResourceState{
				ID:     g.Name,
				Type:   "compute",
				Config: normalizeConfig(raw),
			})
		}
	}

	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states, nil
}

// Apply processes the plan's creates and updates. Authentication failure
// aborts before any partial work; individual action failures are recorded
// in the report and the remaining plan items still run.
func (e *Engine) Apply(ctx context.Context, plan *state.Plan) (*engine.Report, error) {
	report := &engine.Report{}
	if len(plan.ToCreate) == 0 && len(plan.ToUpdate) == 0 {
		return report, nil
	}

	if err := e.ensureSession(ctx); err != nil {
		return report, e.authError("apply", err)
	}

	for _, def := range plan.ToCreate {
		e.log.Info().Str("resource", def.Name).Msg("creating resource")
		if err := e.create(ctx, def); err != nil {
			e.log.Error().Err(err).Str("resource", def.Name).Msg("create failed")
			report.Record(def.Name, engine.ActionCreate, engine.OutcomeFailed, err.Error())
			e.recordAction(engine.ActionCreate, engine.OutcomeFailed)
			continue
		}
		report.Record(def.Name, engine.ActionCreate, engine.OutcomeSucceeded, "")
		e.recordAction(engine.ActionCreate, engine.OutcomeSucceeded)
	}

	for _, pair := range plan.ToUpdate {
		e.log.Info().Str("resource", pair.Desired.Name).Msg("updating resource")
		if err := e.update(ctx, pair); err != nil {
			e.log.Error().Err(err).Str("resource", pair.Desired.Name).Msg("update failed")
			report.Record(pair.Desired.Name, engine.ActionUpdate, engine.OutcomeFailed, err.Error())
			e.recordAction(engine.ActionUpdate, engine.OutcomeFailed)
			continue
		}
		report.Record(pair.Desired.Name, engine.ActionUpdate, engine.OutcomeSucceeded, "")
		e.recordAction(engine.ActionUpdate, engine.OutcomeSucceeded)
	}

	return report, nil
}

// Destroy processes the plan's deletes. A target already absent on the
// provider is recorded as success.
func (e *Engine) Destroy(ctx context.Context, plan *state.Plan) (*engine.Report, error) {
	report := &engine.Report{}
	if len(plan.ToDelete) == 0 {
		return report, nil
	}

	if err := e.ensureSession(ctx); err != nil {
		return report, e.authError("destroy", err)
	}

	for _, rs := range plan.ToDelete {
		e.log.Info().Str("resource", rs.ID).Msg("destroying resource")
		if err := e.delete(ctx, rs.ID); err != nil {
			e.log.Error().Err(err).Str("resource", rs.ID).Msg("destroy failed")
			report.Record(rs.ID, engine.ActionDelete, engine.OutcomeFailed, err.Error())
			e.recordAction(engine.ActionDelete, engine.OutcomeFailed)
			continue
		}
		report.Record(rs.ID, engine.ActionDelete, engine.OutcomeSucceeded, "")
		e.recordAction(engine.ActionDelete, engine.OutcomeSucceeded)
	}

	return report, nil
}

// ReconcileResult bundles the computed plan with the apply report.
type ReconcileResult struct {
	// Plan is the diff that was (or would be) applied.
	Plan *state.Plan

	// Report holds per-resource outcomes; empty when the plan was empty.
	Report *engine.Report
}

// Reconcile is the convenience composition get_state → diff → apply.
// An empty plan short-circuits without a single provider mutation.
// Deletes in the plan are not processed here; destruction stays an
// explicit, separate call.
func (e *Engine) Reconcile(ctx context.Context, bp *blueprint.SystemBlueprint) (*ReconcileResult, error) {
	current, err := e.GetState(ctx, bp)
	if err != nil {
		return nil, err
	}

	plan := state.Diff(bp, current)
	if plan.IsEmpty() {
		e.log.Info().Str("blueprint", bp.Name).Msg("state matches blueprint; nothing to reconcile")
		return &ReconcileResult{Plan: plan, Report: &engine.Report{}}, nil
	}

	report, err := e.Apply(ctx, plan)
	return &ReconcileResult{Plan: plan, Report: report}, err
}

// create provisions one desired resource. Specs carrying a template name
// take the full-clone path (qemu); the rest take the lightweight
// direct-create path (lxc). Both paths await the provider task token.
func (e *Engine) create(ctx context.Context, def blueprint.ResourceDefinition) error {
	vmid, err := e.nextVMID(ctx)
	if err != nil {
		return err
	}

	if template, ok := specString(def.Specs, specTemplate); ok {
		return e.cloneFromTemplate(ctx, def, template, vmid)
	}
	return e.createContainer(ctx, def, vmid)
}

func (e *Engine) cloneFromTemplate(ctx context.Context, def blueprint.ResourceDefinition, template string, vmid int) error {
	tpl, err := e.findGuest(ctx, template)
	if err != nil {
		return err
	}
	if tpl == nil {
		return engine.NewPermanentError(engine.ErrCodeNotFound,
			fmt.Sprintf("template %q not found", template), nil).
			WithResource(def.Name)
	}

	e.log.Debug().
		Str("resource", def.Name).
		Int("template_vmid", tpl.VMID).
		Int("vmid", vmid).
		Msg("cloning template")

	cloneForm := url.Values{
		"newid": {strconv.Itoa(vmid)},
		"name":  {def.Name},
		"full":  {"1"},
	}
	var upid string
	err = e.mutate(ctx, "clone", func(ctx context.Context) error {
		return e.client.post(ctx, fmt.Sprintf("nodes/%s/qemu/%d/clone", e.node, tpl.VMID), cloneForm, &upid)
	})
	if err != nil {
		return err
	}
	if err := e.waitForTask(ctx, upid); err != nil {
		return err
	}

	// Patch the clone with the canonical specs and the managed marker.
	cfgForm := url.Values{"description": {buildMarker(template)}}
	if cpu, ok := specInt(def.Specs, specCPU); ok {
		cfgForm.Set("cores", strconv.Itoa(cpu))
	}
	if mem, ok := specInt(def.Specs, specMemory); ok {
		cfgForm.Set("memory", strconv.Itoa(mem))
	}
	err = e.mutate(ctx, "set-config", func(ctx context.Context) error {
		return e.client.post(ctx, fmt.Sprintf("nodes/%s/qemu/%d/config", e.node, vmid), cfgForm, nil)
	})
	if err != nil {
		return err
	}

	return e.start(ctx, guest{Kind: kindQemu, VMID: vmid, Name: def.Name})
}

func (e *Engine) createContainer(ctx context.Context, def blueprint.ResourceDefinition, vmid int) error {
	form := url.Values{
		"vmid":        {strconv.Itoa(vmid)},
		"hostname":    {def.Name},
		"description": {buildMarker("")},
	}
	if cpu, ok := specInt(def.Specs, specCPU); ok {
		form.Set("cores", strconv.Itoa(cpu))
	}
	if mem, ok := specInt(def.Specs, specMemory); ok {
		form.Set("memory", strconv.Itoa(mem))
	}

	var upid string
	err := e.mutate(ctx, "create", func(ctx context.Context) error {
		return e.client.post(ctx, fmt.Sprintf("nodes/%s/lxc", e.node), form, &upid)
	})
	if err != nil {
		return err
	}
	if err := e.waitForTask(ctx, upid); err != nil {
		return err
	}

	return e.start(ctx, guest{Kind: kindLXC, VMID: vmid, Name: def.Name})
}

// update patches only the fields present in the desired specs that differ
// from the reported config, never a full replace. The guest sub-kind is
// unknown a priori, so both kinds are probed.
func (e *Engine) update(ctx context.Context, pair state.UpdatePair) error {
	g, err := e.findGuest(ctx, pair.Desired.Name)
	if err != nil {
		return err
	}
	if g == nil {
		return engine.NewPermanentError(engine.ErrCodeNotFound,
			"resource not found on provider", nil).
			WithResource(pair.Desired.Name)
	}

	form := url.Values{}
	if cpu, ok := specInt(pair.Desired.Specs, specCPU); ok {
		if current, reported := specInt(pair.Current.Config, specCPU); !reported || current != cpu {
			form.Set("cores", strconv.Itoa(cpu))
		}
	}
	if mem, ok := specInt(pair.Desired.Specs, specMemory); ok {
		if current, reported := specInt(pair.Current.Config, specMemory); !reported || current != mem {
			form.Set("memory", strconv.Itoa(mem))
		}
	}
	if len(form) == 0 {
		return nil
	}

	return e.mutate(ctx, "set-config", func(ctx context.Context) error {
		return e.client.post(ctx, e.guestPath(*g, "config"), form, nil)
	})
}

// delete stops the guest (stop failures are logged and tolerated), then
// deletes it. A guest already gone is success.
func (e *Engine) delete(ctx context.Context, name string) error {
	g, err := e.findGuest(ctx, name)
	if err != nil {
		return err
	}
	if g == nil {
		e.log.Debug().Str("resource", name).Msg("resource already absent")
		return nil
	}

	var stopUPID string
	err = e.mutate(ctx, "stop", func(ctx context.Context) error {
		return e.client.post(ctx, e.guestPath(*g, "status/stop"), url.Values{}, &stopUPID)
	})
	if err != nil {
		e.log.Warn().Err(err).Str("resource", name).Msg("stop failed; continuing with delete")
	} else if stopUPID != "" {
		if err := e.waitForTask(ctx, stopUPID); err != nil {
			e.log.Warn().Err(err).Str("resource", name).Msg("stop task did not finish cleanly; continuing")
		}
	}

	var delUPID string
	err = e.mutate(ctx, "delete", func(ctx context.Context) error {
		return e.client.del(ctx, fmt.Sprintf("nodes/%s/%s", e.node, g.path()), &delUPID)
	})
	if err != nil {
		if guestNotFound(err) {
			return nil
		}
		return err
	}
	if delUPID == "" {
		return nil
	}
	return e.waitForTask(ctx, delUPID)
}

func (e *Engine) start(ctx context.Context, g guest) error {
	var upid string
	err := e.mutate(ctx, "start", func(ctx context.Context) error {
		return e.client.post(ctx, e.guestPath(g, "status/start"), url.Values{}, &upid)
	})
	if err != nil {
		return err
	}
	if upid == "" {
		return nil
	}
	return e.waitForTask(ctx, upid)
}

// findGuest looks a name up across both guest sub-kinds.
func (e *Engine) findGuest(ctx context.Context, name string) (*guest, error) {
	for _, kind := range []guestKind{kindQemu, kindLXC} {
		entries, err := e.listGuests(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.Name == name {
				g := entry.toGuest(kind)
				return &g, nil
			}
		}
	}
	return nil, nil
}

func (e *Engine) listGuests(ctx context.Context, kind guestKind) ([]listEntry, error) {
	var entries []listEntry
	err := e.guarded(ctx, "list-"+string(kind), func(ctx context.Context) error {
		return e.client.get(ctx, fmt.Sprintf("nodes/%s/%s", e.node, kind), &entries)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// nextVMID allocates the next free numeric identity from the provider.
func (e *Engine) nextVMID(ctx context.Context) (int, error) {
	var raw any
	err := e.guarded(ctx, "next-vmid", func(ctx context.Context) error {
		return e.client.get(ctx, "cluster/nextid", &raw)
	})
	if err != nil {
		return 0, err
	}
	vmid, ok := intValue(raw)
	if !ok {
		return 0, engine.NewPermanentError(engine.ErrCodeProviderAPI,
			fmt.Sprintf("unexpected nextid response %v", raw), nil)
	}
	return vmid, nil
}

// ensureSession authenticates eagerly so apply/destroy can abort before any
// partial work when the credentials are rejected.
func (e *Engine) ensureSession(ctx context.Context) error {
	if e.client.authenticated() {
		return nil
	}
	return e.guarded(ctx, "authenticate", func(ctx context.Context) error {
		return e.client.authenticate(ctx)
	})
}

func (e *Engine) authError(op string, err error) error {
	if resilience.IsOpen(err) {
		return engine.NewTransientError(engine.ErrCodeProviderUnavailable,
			"provider unavailable", err).WithOperation(op)
	}
	return engine.NewPermanentError(engine.ErrCodeAuthFailed,
		"failed to authenticate with provider", err).WithOperation(op)
}

// guarded runs a read-only provider call behind the retrier and breaker.
func (e *Engine) guarded(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := e.guard.Run(ctx, fn)
	e.observe(op, start, err)
	return e.wrapProviderErr(op, err)
}

// mutate runs a non-idempotent provider call behind the breaker only.
func (e *Engine) mutate(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := e.breaker.Execute(ctx, fn)
	e.observe(op, start, err)
	return e.wrapProviderErr(op, err)
}

func (e *Engine) observe(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveProviderCall(op, time.Since(start), err == nil)
	e.metrics.SetBreakerState(breakerName, int(e.breaker.State()))
}

func (e *Engine) recordAction(action engine.Action, status engine.OutcomeStatus) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordAction(string(action), string(status))
}

// wrapProviderErr classifies transport and API failures into engine errors.
func (e *Engine) wrapProviderErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var engErr *engine.Error
	if errors.As(err, &engErr) {
		return err
	}
	if resilience.IsOpen(err) {
		return engine.NewTransientError(engine.ErrCodeProviderUnavailable,
			"provider unavailable", err).WithOperation(op)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 500 {
			return engine.NewTransientError(engine.ErrCodeProviderAPI,
				"provider API error", err).WithOperation(op)
		}
		return engine.NewPermanentError(engine.ErrCodeProviderAPI,
			"provider API error", err).WithOperation(op)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return engine.NewTransientError(engine.ErrCodeProviderUnavailable,
		"provider unreachable", err).WithOperation(op)
}

func (e *Engine) guestPath(g guest, suffix string) string {
	return fmt.Sprintf("nodes/%s/%s/%s", e.node, g.path(), suffix)
}
