package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"sweepcore/internal/blob"
	"sweepcore/internal/infra/persistence/memory"
	"sweepcore/pkg/domain"
)

// Service exposes higher-level transactional operations over sweep plans and
// measurement runs, instrumented with the configured logger, metrics, tracer
// and audit recorder.
type Service struct {
	store    PersistentStore
	registry *Registry
	engine   *RulesEngine
	plugins  map[string]PluginMetadata
	opts     serviceOptions
}

type serviceOptions struct {
	clock     Clock
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer
	audit     AuditRecorder
	artifacts blob.Store
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
}

// Option customizes service construction.
type Option func(*serviceOptions)

// WithClock overrides the time source used for lifecycle timestamps.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger attaches a logger to the service.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder attaches a metrics recorder to the service.
func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer attaches a tracer to the service.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder attaches an audit recorder to the service.
func WithAuditRecorder(audit AuditRecorder) Option {
	return func(o *serviceOptions) {
		if audit != nil {
			o.audit = audit
		}
	}
}

// WithArtifactStore attaches a blob backend that StoreRunArtifact writes
// measurement artifacts to.
func WithArtifactStore(store blob.Store) Option {
	return func(o *serviceOptions) {
		o.artifacts = store
	}
}

// NewService constructs a service over the supplied store and variable
// catalog. The catalog pointer must be the one the engine's rules were built
// with so plugin-contributed variables reach them. The engine may be nil when
// no plugins will be installed.
func NewService(store PersistentStore, registry *Registry, engine *RulesEngine, opts ...Option) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if registry == nil {
		registry = &Registry{}
	}
	return &Service{
		store:    store,
		registry: registry,
		engine:   engine,
		plugins:  make(map[string]PluginMetadata),
		opts:     options,
	}
}

// NewInMemoryService creates a service with an in-memory store and the
// built-in policy set for the given catalog.
func NewInMemoryService(registry Registry, opts ...Option) *Service {
	shared := &registry
	engine := NewDefaultRulesEngine(shared)
	return NewService(memory.NewStore(engine), shared, engine, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Registry returns the current variable catalog.
func (s *Service) Registry() Registry {
	return *s.registry
}

// ErrNotFound is returned when reference validation fails within
// transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// observe wraps one service operation with tracing, metrics, audit and
// logging.
func (s *Service) observe(ctx context.Context, operation string, entity EntityType, fn func(ctx context.Context) (string, Result, error)) (Result, error) {
	started := s.opts.clock.Now()
	ctx, span := s.opts.tracer.Start(ctx, operation)
	entityID, res, err := fn(ctx)
	duration := s.opts.clock.Now().Sub(started)
	span.End(err)
	s.opts.metrics.Observe(ctx, operation, err == nil, duration)

	entry := AuditEntry{
		Operation: operation,
		Status:    AuditStatusSuccess,
		Entity:    entity,
		EntityID:  entityID,
		At:        started,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.opts.logger.Error("operation failed", "operation", operation, "entity_id", entityID, "error", err)
	} else {
		s.opts.logger.Debug("operation completed", "operation", operation, "entity_id", entityID, "duration_ms", float64(duration)/float64(time.Millisecond))
	}
	s.opts.audit.Record(ctx, entry)
	return res, err
}

// CreatePlan persists a new sweep plan. The plan is validated by the rules
// engine before commit; blocking violations return a RuleViolationError.
func (s *Service) CreatePlan(ctx context.Context, plan SweepPlan) (SweepPlan, Result, error) {
	var created SweepPlan
	res, err := s.observe(ctx, "create_plan", EntitySweepPlan, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateSweepPlan(plan)
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// UpdatePlan mutates a sweep plan using the provided mutator.
func (s *Service) UpdatePlan(ctx context.Context, id string, mutator func(*SweepPlan) error) (SweepPlan, Result, error) {
	var updated SweepPlan
	res, err := s.observe(ctx, "update_plan", EntitySweepPlan, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateSweepPlan(id, mutator)
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// DeletePlan removes a sweep plan without recorded runs.
func (s *Service) DeletePlan(ctx context.Context, id string) (Result, error) {
	return s.observe(ctx, "delete_plan", EntitySweepPlan, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteSweepPlan(id)
		})
		return id, res, err
	})
}

// GetPlan retrieves a plan by id.
func (s *Service) GetPlan(id string) (SweepPlan, bool) {
	return s.store.GetSweepPlan(id)
}

// ListPlans returns all stored plans.
func (s *Service) ListPlans() []SweepPlan {
	return s.store.ListSweepPlans()
}

// ValidatePlan runs the built-in policy set over a plan definition without
// persisting anything.
func (s *Service) ValidatePlan(plan SweepPlan) (bool, []string) {
	return ValidateSeries(*s.registry, plan.StartValues, plan.Series)
}

// CreateRun schedules a new measurement run of the given plan. The run
// starts pending with its total step count expanded from the plan's series.
func (s *Service) CreateRun(ctx context.Context, planID string) (MeasurementRun, Result, error) {
	var created MeasurementRun
	res, err := s.observe(ctx, "create_run", EntityMeasurementRun, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			plan, ok := tx.FindSweepPlan(planID)
			if !ok {
				return ErrNotFound{Entity: EntitySweepPlan, ID: planID}
			}
			total, err := TotalStepCount(*s.registry, plan.Series)
			if err != nil {
				return err
			}
			created, err = tx.CreateMeasurementRun(MeasurementRun{
				PlanID:     planID,
				Status:     RunStatusPending,
				TotalSteps: total,
			})
			return err
		})
		return created.ID, res, err
	})
	return created, res, err
}

// StartRun moves a pending run to running and stamps its start time.
func (s *Service) StartRun(ctx context.Context, id string) (MeasurementRun, Result, error) {
	now := s.opts.clock.Now()
	return s.transitionRun(ctx, "start_run", id, func(run *MeasurementRun) error {
		if run.Status != RunStatusPending {
			return fmt.Errorf("measurement run %q is %s, only pending runs can start", id, run.Status)
		}
		run.Status = RunStatusRunning
		run.StartedAt = &now
		return nil
	})
}

// AdvanceRun records measurement progress on a running run.
func (s *Service) AdvanceRun(ctx context.Context, id string, currentStep int) (MeasurementRun, Result, error) {
	return s.transitionRun(ctx, "advance_run", id, func(run *MeasurementRun) error {
		if run.Status != RunStatusRunning {
			return fmt.Errorf("measurement run %q is %s, only running runs can advance", id, run.Status)
		}
		if currentStep < run.CurrentStep || currentStep > run.TotalSteps {
			return fmt.Errorf("step %d is outside the progress range [%d, %d]", currentStep, run.CurrentStep, run.TotalSteps)
		}
		run.CurrentStep = currentStep
		return nil
	})
}

// CompleteRun moves a running run to completed and stamps its finish time.
func (s *Service) CompleteRun(ctx context.Context, id string) (MeasurementRun, Result, error) {
	now := s.opts.clock.Now()
	return s.transitionRun(ctx, "complete_run", id, func(run *MeasurementRun) error {
		if run.Status != RunStatusRunning {
			return fmt.Errorf("measurement run %q is %s, only running runs can complete", id, run.Status)
		}
		run.Status = RunStatusCompleted
		run.CurrentStep = run.TotalSteps
		run.FinishedAt = &now
		return nil
	})
}

// AbortRun stops a pending or running run at the user's request.
func (s *Service) AbortRun(ctx context.Context, id, message string) (MeasurementRun, Result, error) {
	return s.finishRun(ctx, "abort_run", id, RunStatusAborted, message)
}

// FailRun stops a pending or running run because of an instrument error.
func (s *Service) FailRun(ctx context.Context, id, message string) (MeasurementRun, Result, error) {
	return s.finishRun(ctx, "fail_run", id, RunStatusFailed, message)
}

func (s *Service) finishRun(ctx context.Context, operation, id string, status RunStatus, message string) (MeasurementRun, Result, error) {
	now := s.opts.clock.Now()
	return s.transitionRun(ctx, operation, id, func(run *MeasurementRun) error {
		if run.Status != RunStatusPending && run.Status != RunStatusRunning {
			return fmt.Errorf("measurement run %q is already %s", id, run.Status)
		}
		run.Status = status
		run.FinishedAt = &now
		if message != "" {
			run.Message = &message
		}
		return nil
	})
}

// AttachRunArtifact links a stored artifact key to a run. Duplicate keys are
// ignored.
func (s *Service) AttachRunArtifact(ctx context.Context, id, key string) (MeasurementRun, Result, error) {
	if key == "" {
		return MeasurementRun{}, Result{}, fmt.Errorf("artifact key cannot be empty")
	}
	return s.transitionRun(ctx, "attach_run_artifact", id, func(run *MeasurementRun) error {
		for _, existing := range run.ArtifactKeys {
			if existing == key {
				return nil
			}
		}
		run.ArtifactKeys = append(run.ArtifactKeys, key)
		return nil
	})
}

// StoreRunArtifact writes an artifact produced by a measurement run to the
// configured blob store and attaches the resulting key to the run record.
// The write happens inside the attach transaction, so a run that vanished or
// a blocked attach leaves no dangling key on the record; the stored blob is
// immutable either way.
func (s *Service) StoreRunArtifact(ctx context.Context, id, name string, r io.Reader, opts blob.PutOptions) (MeasurementRun, blob.Info, Result, error) {
	if s.opts.artifacts == nil {
		return MeasurementRun{}, blob.Info{}, Result{}, fmt.Errorf("no artifact store configured")
	}
	if name == "" {
		return MeasurementRun{}, blob.Info{}, Result{}, fmt.Errorf("artifact name cannot be empty")
	}
	var (
		updated MeasurementRun
		info    blob.Info
	)
	res, err := s.observe(ctx, "store_run_artifact", EntityMeasurementRun, func(ctx context.Context) (string, Result, error) {
		key := blob.RunArtifactKey(id, name)
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if _, ok := tx.FindMeasurementRun(id); !ok {
				return ErrNotFound{Entity: EntityMeasurementRun, ID: id}
			}
			var err error
			info, err = s.opts.artifacts.Put(ctx, key, r, opts)
			if err != nil {
				return fmt.Errorf("store artifact %s: %w", key, err)
			}
			updated, err = tx.UpdateMeasurementRun(id, func(run *MeasurementRun) error {
				for _, existing := range run.ArtifactKeys {
					if existing == key {
						return nil
					}
				}
				run.ArtifactKeys = append(run.ArtifactKeys, key)
				return nil
			})
			return err
		})
		return id, res, err
	})
	return updated, info, res, err
}

func (s *Service) transitionRun(ctx context.Context, operation, id string, mutate func(*MeasurementRun) error) (MeasurementRun, Result, error) {
	var updated MeasurementRun
	res, err := s.observe(ctx, operation, EntityMeasurementRun, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateMeasurementRun(id, mutate)
			return err
		})
		return id, res, err
	})
	return updated, res, err
}

// GetRun retrieves a run by id.
func (s *Service) GetRun(id string) (MeasurementRun, bool) {
	return s.store.GetMeasurementRun(id)
}

// ListRuns returns all stored runs.
func (s *Service) ListRuns() []MeasurementRun {
	return s.store.ListMeasurementRuns()
}

// InstallPlugin registers a plugin, wiring its rules into the active engine
// and its variables into the catalog.
func (s *Service) InstallPlugin(plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}

	variables := registry.Variables()
	if len(variables) > 0 {
		merged, err := domain.NewRegistry(append(s.registry.Variables(), variables...))
		if err != nil {
			return PluginMetadata{}, fmt.Errorf("plugin %s: %w", plugin.Name(), err)
		}
		*s.registry = merged
	}

	rules := registry.Rules()
	if len(rules) > 0 {
		if s.engine == nil {
			return PluginMetadata{}, fmt.Errorf("plugin %s contributes rules but the service has no rules engine", plugin.Name())
		}
		for _, rule := range rules {
			s.engine.Register(rule)
		}
	}

	meta := PluginMetadata{
		Name:    plugin.Name(),
		Version: plugin.Version(),
	}
	for _, v := range variables {
		meta.Variables = append(meta.Variables, v.UniqueID)
	}
	for _, r := range rules {
		meta.Rules = append(meta.Rules, r.Name())
	}
	s.plugins[plugin.Name()] = meta
	s.opts.logger.Info("plugin installed", "plugin", plugin.Name(), "version", plugin.Version())
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, meta)
	}
	return out
}
