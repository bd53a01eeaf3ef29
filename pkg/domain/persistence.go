package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateSweepPlan(SweepPlan) (SweepPlan, error)
	UpdateSweepPlan(id string, mutator func(*SweepPlan) error) (SweepPlan, error)
	DeleteSweepPlan(id string) error
	CreateMeasurementRun(MeasurementRun) (MeasurementRun, error)
	UpdateMeasurementRun(id string, mutator func(*MeasurementRun) error) (MeasurementRun, error)
	DeleteMeasurementRun(id string) error
	FindSweepPlan(id string) (SweepPlan, bool)
	FindMeasurementRun(id string) (MeasurementRun, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSweepPlan(id string) (SweepPlan, bool)
	ListSweepPlans() []SweepPlan
	GetMeasurementRun(id string) (MeasurementRun, bool)
	ListMeasurementRuns() []MeasurementRun
}
