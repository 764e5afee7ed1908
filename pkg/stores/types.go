// Package stores persists reconciliation run history in SQLite so
// operators can review what converged, when, and how it went.
package stores

import "time"

// RunStatus is the lifecycle status of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunMode distinguishes what kind of run was recorded.
type RunMode string

const (
	RunModeApply   RunMode = "apply"
	RunModeDestroy RunMode = "destroy"
)

// Run is one recorded reconciliation run.
type Run struct {
	// ID is the run identifier (UUID).
	ID string `json:"id"`

	// Blueprint is the name of the blueprint that was reconciled.
	Blueprint string `json:"blueprint"`

	// Mode records whether the run applied or destroyed.
	Mode RunMode `json:"mode"`

	// Status is the run's lifecycle status.
	Status RunStatus `json:"status"`

	// Summary is the terse plan summary captured at run start.
	Summary string `json:"summary"`

	// Error holds the run-level failure message, empty on success.
	Error string `json:"error,omitempty"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished, nil while running.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ActionRecord is one per-resource outcome within a run.
type ActionRecord struct {
	// ID is the record's row id.
	ID int64 `json:"id"`

	// RunID references the owning run.
	RunID string `json:"run_id"`

	// Resource is the resource name the action targeted.
	Resource string `json:"resource"`

	// Action is the action attempted (create, update, delete).
	Action string `json:"action"`

	// Status is the terminal action status.
	Status string `json:"status"`

	// Reason holds the failure reason, empty on success.
	Reason string `json:"reason,omitempty"`

	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}
