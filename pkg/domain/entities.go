// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by sweepcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntitySweepPlan identifies a sweep plan record.
	EntitySweepPlan EntityType = "sweep_plan"
	// EntityMeasurementRun identifies a measurement run record.
	EntityMeasurementRun EntityType = "measurement_run"
)

// RunStatus represents the canonical measurement run lifecycle states.
type RunStatus string

// Canonical run statuses used for scheduling and validation.
const (
	// RunStatusPending indicates a run that has been created but not started.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates a run currently stepping through its plan.
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
	RunStatusFailed    RunStatus = "failed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SweepPlan is a named, validated measurement definition: the fixed start
// value of every measurement variable plus an optional nested series chain.
type SweepPlan struct {
	Base
	Name        string      `json:"name"`
	Description *string     `json:"description,omitempty"`
	StartValues StartValues `json:"start_values"`
	Series      *SeriesNode `json:"series,omitempty"`
}

// MeasurementRun tracks one execution of a sweep plan.
type MeasurementRun struct {
	Base
	PlanID       string     `json:"plan_id"`
	Status       RunStatus  `json:"status"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	CurrentStep  int        `json:"current_step"`
	TotalSteps   int        `json:"total_steps"`
	ArtifactKeys []string   `json:"artifact_keys"`
	Message      *string    `json:"message,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Messages returns the violation messages in order of discovery.
func (r Result) Messages() []string {
	if len(r.Violations) == 0 {
		return nil
	}
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Message
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
