// Package memory provides the in-memory implementation of the persistence
// store, used directly for tests and ephemeral sessions and as the working
// state of the durable backends.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"sweepcore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.PersistentStore = (*Store)(nil)
	_ domain.Transaction     = (*transaction)(nil)
)

type memoryState struct {
	plans map[string]domain.SweepPlan
	runs  map[string]domain.MeasurementRun
}

func newMemoryState() memoryState {
	return memoryState{
		plans: make(map[string]domain.SweepPlan),
		runs:  make(map[string]domain.MeasurementRun),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.plans {
		cloned.plans[k] = clonePlan(v)
	}
	for k, v := range s.runs {
		cloned.runs[k] = cloneRun(v)
	}
	return cloned
}

func clonePlan(p domain.SweepPlan) domain.SweepPlan {
	cp := p
	if p.Description != nil {
		d := *p.Description
		cp.Description = &d
	}
	cp.StartValues = p.StartValues.Clone()
	cp.Series = p.Series.Clone()
	return cp
}

func cloneRun(r domain.MeasurementRun) domain.MeasurementRun {
	cp := r
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	if r.Message != nil {
		m := *r.Message
		cp.Message = &m
	}
	cp.ArtifactKeys = append([]string(nil), r.ArtifactKeys...)
	return cp
}

// Snapshot captures a point-in-time clone of the store state, the unit the
// durable backends serialize and reload.
type Snapshot struct {
	SweepPlans      []domain.SweepPlan      `json:"sweep_plans"`
	MeasurementRuns []domain.MeasurementRun `json:"measurement_runs"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		SweepPlans:      make([]domain.SweepPlan, 0, len(state.plans)),
		MeasurementRuns: make([]domain.MeasurementRun, 0, len(state.runs)),
	}
	for _, p := range state.plans {
		snap.SweepPlans = append(snap.SweepPlans, clonePlan(p))
	}
	for _, r := range state.runs {
		snap.MeasurementRuns = append(snap.MeasurementRuns, cloneRun(r))
	}
	return snap
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, p := range s.SweepPlans {
		state.plans[p.ID] = clonePlan(p)
	}
	for _, r := range s.MeasurementRuns {
		state.runs[r.ID] = cloneRun(r)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from older payloads: nil maps
// are initialized and runs whose plan no longer exists are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	plans := make(map[string]bool, len(snapshot.SweepPlans))
	out := Snapshot{}
	for _, p := range snapshot.SweepPlans {
		if p.ID == "" {
			continue
		}
		if p.StartValues == nil {
			p.StartValues = domain.StartValues{}
		}
		plans[p.ID] = true
		out.SweepPlans = append(out.SweepPlans, p)
	}
	for _, r := range snapshot.MeasurementRuns {
		if r.ID == "" || !plans[r.PlanID] {
			continue
		}
		if r.Status == "" {
			r.Status = domain.RunStatusPending
		}
		out.MeasurementRuns = append(out.MeasurementRuns, r)
	}
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the configured engine for integration points like plugins.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the time provider. Tests use it to freeze timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// ListSweepPlans returns all plans within the transaction snapshot.
func (v transactionView) ListSweepPlans() []domain.SweepPlan {
	out := make([]domain.SweepPlan, 0, len(v.state.plans))
	for _, p := range v.state.plans {
		out = append(out, clonePlan(p))
	}
	return out
}

// ListMeasurementRuns returns all runs within the transaction snapshot.
func (v transactionView) ListMeasurementRuns() []domain.MeasurementRun {
	out := make([]domain.MeasurementRun, 0, len(v.state.runs))
	for _, r := range v.state.runs {
		out = append(out, cloneRun(r))
	}
	return out
}

// FindSweepPlan retrieves a plan by ID from the snapshot.
func (v transactionView) FindSweepPlan(id string) (domain.SweepPlan, bool) {
	p, ok := v.state.plans[id]
	if !ok {
		return domain.SweepPlan{}, false
	}
	return clonePlan(p), true
}

// FindMeasurementRun retrieves a run by ID from the snapshot.
func (v transactionView) FindMeasurementRun(id string) (domain.MeasurementRun, bool) {
	r, ok := v.state.runs[id]
	if !ok {
		return domain.MeasurementRun{}, false
	}
	return cloneRun(r), true
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The rules engine evaluates the resulting state before commit;
// blocking violations abort with a RuleViolationError and the state is
// discarded.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

// FindSweepPlan exposes plan lookup within the transaction scope.
func (tx *transaction) FindSweepPlan(id string) (domain.SweepPlan, bool) {
	p, ok := tx.state.plans[id]
	if !ok {
		return domain.SweepPlan{}, false
	}
	return clonePlan(p), true
}

// FindMeasurementRun exposes run lookup within the transaction scope.
func (tx *transaction) FindMeasurementRun(id string) (domain.MeasurementRun, bool) {
	r, ok := tx.state.runs[id]
	if !ok {
		return domain.MeasurementRun{}, false
	}
	return cloneRun(r), true
}

// CreateSweepPlan stores a new plan within the transaction.
func (tx *transaction) CreateSweepPlan(p domain.SweepPlan) (domain.SweepPlan, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.plans[p.ID]; exists {
		return domain.SweepPlan{}, fmt.Errorf("sweep plan %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	if p.StartValues == nil {
		p.StartValues = domain.StartValues{}
	}
	tx.state.plans[p.ID] = clonePlan(p)
	tx.recordChange(domain.Change{Entity: domain.EntitySweepPlan, Action: domain.ActionCreate, After: clonePlan(p)})
	return clonePlan(p), nil
}

// UpdateSweepPlan mutates a plan using the provided mutator function.
func (tx *transaction) UpdateSweepPlan(id string, mutator func(*domain.SweepPlan) error) (domain.SweepPlan, error) {
	current, ok := tx.state.plans[id]
	if !ok {
		return domain.SweepPlan{}, fmt.Errorf("sweep plan %q not found", id)
	}
	before := clonePlan(current)
	if err := mutator(&current); err != nil {
		return domain.SweepPlan{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.plans[id] = clonePlan(current)
	tx.recordChange(domain.Change{Entity: domain.EntitySweepPlan, Action: domain.ActionUpdate, Before: before, After: clonePlan(current)})
	return clonePlan(current), nil
}

// DeleteSweepPlan removes a plan. Plans with recorded runs stay.
func (tx *transaction) DeleteSweepPlan(id string) error {
	current, ok := tx.state.plans[id]
	if !ok {
		return fmt.Errorf("sweep plan %q not found", id)
	}
	for _, run := range tx.state.runs {
		if run.PlanID == id {
			return fmt.Errorf("sweep plan %q still referenced by measurement run %q", id, run.ID)
		}
	}
	delete(tx.state.plans, id)
	tx.recordChange(domain.Change{Entity: domain.EntitySweepPlan, Action: domain.ActionDelete, Before: clonePlan(current)})
	return nil
}

// CreateMeasurementRun stores a new run within the transaction.
func (tx *transaction) CreateMeasurementRun(r domain.MeasurementRun) (domain.MeasurementRun, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.runs[r.ID]; exists {
		return domain.MeasurementRun{}, fmt.Errorf("measurement run %q already exists", r.ID)
	}
	if _, ok := tx.state.plans[r.PlanID]; !ok {
		return domain.MeasurementRun{}, fmt.Errorf("sweep plan %q not found", r.PlanID)
	}
	if r.Status == "" {
		r.Status = domain.RunStatusPending
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.runs[r.ID] = cloneRun(r)
	tx.recordChange(domain.Change{Entity: domain.EntityMeasurementRun, Action: domain.ActionCreate, After: cloneRun(r)})
	return cloneRun(r), nil
}

// UpdateMeasurementRun mutates a run using the provided mutator function.
func (tx *transaction) UpdateMeasurementRun(id string, mutator func(*domain.MeasurementRun) error) (domain.MeasurementRun, error) {
	current, ok := tx.state.runs[id]
	if !ok {
		return domain.MeasurementRun{}, fmt.Errorf("measurement run %q not found", id)
	}
	before := cloneRun(current)
	if err := mutator(&current); err != nil {
		return domain.MeasurementRun{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.runs[id] = cloneRun(current)
	tx.recordChange(domain.Change{Entity: domain.EntityMeasurementRun, Action: domain.ActionUpdate, Before: before, After: cloneRun(current)})
	return cloneRun(current), nil
}

// DeleteMeasurementRun removes a run from the transaction state.
func (tx *transaction) DeleteMeasurementRun(id string) error {
	current, ok := tx.state.runs[id]
	if !ok {
		return fmt.Errorf("measurement run %q not found", id)
	}
	delete(tx.state.runs, id)
	tx.recordChange(domain.Change{Entity: domain.EntityMeasurementRun, Action: domain.ActionDelete, Before: cloneRun(current)})
	return nil
}

// GetSweepPlan retrieves a plan outside a transaction.
func (s *Store) GetSweepPlan(id string) (domain.SweepPlan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.plans[id]
	if !ok {
		return domain.SweepPlan{}, false
	}
	return clonePlan(p), true
}

// ListSweepPlans returns all plans outside a transaction.
func (s *Store) ListSweepPlans() []domain.SweepPlan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SweepPlan, 0, len(s.state.plans))
	for _, p := range s.state.plans {
		out = append(out, clonePlan(p))
	}
	return out
}

// GetMeasurementRun retrieves a run outside a transaction.
func (s *Store) GetMeasurementRun(id string) (domain.MeasurementRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.runs[id]
	if !ok {
		return domain.MeasurementRun{}, false
	}
	return cloneRun(r), true
}

// ListMeasurementRuns returns all runs outside a transaction.
func (s *Store) ListMeasurementRuns() []domain.MeasurementRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.MeasurementRun, 0, len(s.state.runs))
	for _, r := range s.state.runs {
		out = append(out, cloneRun(r))
	}
	return out
}
