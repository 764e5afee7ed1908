// Package engine defines the contract between the reconciliation core and
// provider drivers, plus the structured outcome report returned by apply
// and destroy operations.
package engine

import (
	"context"

	"github.com/openconverge/converge/pkg/blueprint"
	"github.com/openconverge/converge/pkg/state"
)

// Engine is the capability interface a provider driver must implement.
//
// Drivers are required to be idempotent: applying an already-applied plan
// must not change provider state, and destroying an already-absent resource
// is success. Drivers must also be order-insensitive with respect to the
// advisory dependency ordering declared in blueprints.
type Engine interface {
	// GetState queries the provider for resources whose name appears in the
	// blueprint and returns their normalized state. An empty slice (not an
	// error) means none of the blueprint's resources exist yet. A provider
	// communication failure during listing degrades to an empty result; use
	// HealthCheck to distinguish that from "truly nothing to reconcile".
	GetState(ctx context.Context, bp *blueprint.SystemBlueprint) ([]state.ResourceState, error)

	// Apply processes the plan's ToCreate and ToUpdate actions and returns
	// a per-resource outcome report. Failures of individual actions are
	// recorded in the report and do not abort the remaining plan items.
	Apply(ctx context.Context, plan *state.Plan) (*Report, error)

	// Destroy processes the plan's ToDelete actions. A target already
	// absent on the provider is reported as success.
	Destroy(ctx context.Context, plan *state.Plan) (*Report, error)

	// HealthCheck reports whether the engine can reach and authenticate
	// against its provider. Implementations must return false rather than
	// an error on authentication failure.
	HealthCheck(ctx context.Context) bool

	// SupportedResourceTypes advertises the resource type values this
	// engine accepts, so a caller can route mixed-provider blueprints to
	// the right driver instance.
	SupportedResourceTypes() []string
}

// Action identifies the reconciliation action taken for a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// OutcomeStatus is the terminal status of a single reconciliation action.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome records the result of one action against one resource.
type Outcome struct {
	// Name is the resource name the action targeted.
	Name string `json:"name"`

	// Action is the action that was attempted.
	Action Action `json:"action"`

	// Status is the terminal status of the action.
	Status OutcomeStatus `json:"status"`

	// Reason holds the failure or skip reason, empty on success.
	Reason string `json:"reason,omitempty"`
}

// Report is the structured outcome list returned by Apply and Destroy so
// callers learn per-resource results without re-querying provider state.
type Report struct {
	// Outcomes holds one entry per attempted action, in plan order.
	Outcomes []Outcome `json:"outcomes"`
}

// Record appends an outcome to the report.
func (r *Report) Record(name string, action Action, status OutcomeStatus, reason string) {
	r.Outcomes = append(r.Outcomes, Outcome{Name: name, Action: action, Status: status, Reason: reason})
}

// Succeeded returns the names of resources whose action succeeded.
func (r *Report) Succeeded() []string {
	return r.namesWithStatus(OutcomeSucceeded)
}

// Failed returns the names of resources whose action failed.
func (r *Report) Failed() []string {
	return r.namesWithStatus(OutcomeFailed)
}

// OK reports whether no action in the report failed.
func (r *Report) OK() bool {
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			return false
		}
	}
	return true
}

func (r *Report) namesWithStatus(status OutcomeStatus) []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Status == status {
			names = append(names, o.Name)
		}
	}
	return names
}
