package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"sweepcore/internal/blob"
	"sweepcore/pkg/domain"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewInMemoryService(testRegistry(t), opts...)
}

func createTestPlan(t *testing.T, svc *Service) SweepPlan {
	t.Helper()
	plan, _, err := svc.CreatePlan(context.Background(), SweepPlan{
		Name:        "tilt sweep",
		StartValues: validStartValues(),
		Series:      seriesOf(t, SeriesLevel{VariableID: "x-tilt", Start: "0", StepWidth: "5", End: "10"}),
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func TestServiceCreatePlan(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)

	if plan.ID == "" {
		t.Fatalf("expected generated plan id")
	}
	if plan.CreatedAt.IsZero() || plan.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}
	stored, ok := svc.GetPlan(plan.ID)
	if !ok {
		t.Fatalf("plan not retrievable after create")
	}
	if stored.Name != "tilt sweep" {
		t.Fatalf("stored name = %q", stored.Name)
	}
}

func TestServiceCreatePlanBlockedByRules(t *testing.T) {
	svc := newTestService(t)
	_, res, err := svc.CreatePlan(context.Background(), SweepPlan{
		Name:        "broken",
		StartValues: StartValues{"x-tilt": "0", "focus": ""},
	})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %T: %v", err, err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking violations, got: %+v", res)
	}
	if plans := svc.ListPlans(); len(plans) != 0 {
		t.Fatalf("blocked plan must not be persisted, got %d plans", len(plans))
	}
}

func TestServiceValidatePlan(t *testing.T) {
	svc := newTestService(t)
	ok, _ := svc.ValidatePlan(SweepPlan{StartValues: validStartValues()})
	if !ok {
		t.Fatalf("expected valid plan")
	}
	ok, messages := svc.ValidatePlan(SweepPlan{StartValues: StartValues{"x-tilt": "99"}})
	if ok {
		t.Fatalf("expected invalid plan")
	}
	if len(messages) == 0 {
		t.Fatalf("expected validation messages")
	}
}

func TestServiceUpdateAndDeletePlan(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)

	updated, _, err := svc.UpdatePlan(context.Background(), plan.ID, func(p *SweepPlan) error {
		p.Name = "renamed"
		return nil
	})
	if err != nil {
		t.Fatalf("update plan: %v", err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("updated name = %q", updated.Name)
	}

	if _, err := svc.DeletePlan(context.Background(), plan.ID); err != nil {
		t.Fatalf("delete plan: %v", err)
	}
	if _, ok := svc.GetPlan(plan.ID); ok {
		t.Fatalf("plan still retrievable after delete")
	}
}

func TestServiceCreateRun(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)

	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.Status != RunStatusPending {
		t.Fatalf("new run status = %s, want pending", run.Status)
	}
	if run.TotalSteps != 3 {
		t.Fatalf("total steps = %d, want 3", run.TotalSteps)
	}

	_, _, err = svc.CreateRun(context.Background(), "missing")
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound for unknown plan, got %v", err)
	}
	if notFound.Entity != EntitySweepPlan || notFound.ID != "missing" {
		t.Fatalf("unexpected not-found detail: %+v", notFound)
	}
}

func TestServiceRunLifecycle(t *testing.T) {
	frozen := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, WithClock(ClockFunc(func() time.Time { return frozen })))
	plan := createTestPlan(t, svc)
	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	started, _, err := svc.StartRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if started.Status != RunStatusRunning {
		t.Fatalf("status = %s, want running", started.Status)
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(frozen) {
		t.Fatalf("started at = %v, want %v", started.StartedAt, frozen)
	}

	advanced, _, err := svc.AdvanceRun(context.Background(), run.ID, 2)
	if err != nil {
		t.Fatalf("advance run: %v", err)
	}
	if advanced.CurrentStep != 2 {
		t.Fatalf("current step = %d, want 2", advanced.CurrentStep)
	}

	completed, _, err := svc.CompleteRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("complete run: %v", err)
	}
	if completed.Status != RunStatusCompleted {
		t.Fatalf("status = %s, want completed", completed.Status)
	}
	if completed.CurrentStep != completed.TotalSteps {
		t.Fatalf("completed run stops at step %d of %d", completed.CurrentStep, completed.TotalSteps)
	}
	if completed.FinishedAt == nil || !completed.FinishedAt.Equal(frozen) {
		t.Fatalf("finished at = %v, want %v", completed.FinishedAt, frozen)
	}
}

func TestServiceRunTransitionGuards(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)
	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if _, _, err := svc.AdvanceRun(context.Background(), run.ID, 1); err == nil {
		t.Fatalf("pending run must not advance")
	}
	if _, _, err := svc.CompleteRun(context.Background(), run.ID); err == nil {
		t.Fatalf("pending run must not complete")
	}
	if _, _, err := svc.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if _, _, err := svc.StartRun(context.Background(), run.ID); err == nil {
		t.Fatalf("running run must not start again")
	}
	if _, _, err := svc.AdvanceRun(context.Background(), run.ID, 99); err == nil {
		t.Fatalf("advance beyond total steps must fail")
	}
	if _, _, err := svc.AdvanceRun(context.Background(), run.ID, 2); err != nil {
		t.Fatalf("advance run: %v", err)
	}
	if _, _, err := svc.AdvanceRun(context.Background(), run.ID, 1); err == nil {
		t.Fatalf("advance must not move backwards")
	}
	if _, _, err := svc.CompleteRun(context.Background(), run.ID); err != nil {
		t.Fatalf("complete run: %v", err)
	}
	if _, _, err := svc.AbortRun(context.Background(), run.ID, ""); err == nil {
		t.Fatalf("completed run must not abort")
	}
}

func TestServiceAbortAndFailRun(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)

	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	aborted, _, err := svc.AbortRun(context.Background(), run.ID, "operator stop")
	if err != nil {
		t.Fatalf("abort run: %v", err)
	}
	if aborted.Status != RunStatusAborted {
		t.Fatalf("status = %s, want aborted", aborted.Status)
	}
	if aborted.Message == nil || *aborted.Message != "operator stop" {
		t.Fatalf("abort message = %v", aborted.Message)
	}
	if aborted.FinishedAt == nil {
		t.Fatalf("aborted run keeps no finish time")
	}

	run, _, err = svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, _, err := svc.StartRun(context.Background(), run.ID); err != nil {
		t.Fatalf("start run: %v", err)
	}
	failed, _, err := svc.FailRun(context.Background(), run.ID, "stage did not settle")
	if err != nil {
		t.Fatalf("fail run: %v", err)
	}
	if failed.Status != RunStatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
}

func TestServiceAttachRunArtifact(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)
	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if _, _, err := svc.AttachRunArtifact(context.Background(), run.ID, ""); err == nil {
		t.Fatalf("empty artifact key must be rejected")
	}

	key := "runs/" + run.ID + "/frame-000.tiff"
	if _, _, err := svc.AttachRunArtifact(context.Background(), run.ID, key); err != nil {
		t.Fatalf("attach artifact: %v", err)
	}
	attached, _, err := svc.AttachRunArtifact(context.Background(), run.ID, key)
	if err != nil {
		t.Fatalf("attach artifact again: %v", err)
	}
	if len(attached.ArtifactKeys) != 1 {
		t.Fatalf("duplicate keys must be deduplicated, got %v", attached.ArtifactKeys)
	}
}

func TestServiceStoreRunArtifact(t *testing.T) {
	artifacts := blob.NewMemory()
	svc := newTestService(t, WithArtifactStore(artifacts))
	plan := createTestPlan(t, svc)
	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	updated, info, _, err := svc.StoreRunArtifact(context.Background(), run.ID, "frame-000.tiff",
		strings.NewReader("frame-data"), blob.PutOptions{ContentType: "image/tiff"})
	if err != nil {
		t.Fatalf("store artifact: %v", err)
	}
	key := "runs/" + run.ID + "/frame-000.tiff"
	if info.Key != key {
		t.Fatalf("artifact key = %q, want %q", info.Key, key)
	}
	if len(updated.ArtifactKeys) != 1 || updated.ArtifactKeys[0] != key {
		t.Fatalf("run artifact keys = %v", updated.ArtifactKeys)
	}

	stored, rc, err := artifacts.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("read back artifact: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read artifact body: %v", err)
	}
	if string(data) != "frame-data" || stored.ContentType != "image/tiff" {
		t.Fatalf("stored artifact = %q (%s)", data, stored.ContentType)
	}
}

func TestServiceStoreRunArtifactGuards(t *testing.T) {
	artifacts := blob.NewMemory()
	svc := newTestService(t, WithArtifactStore(artifacts))
	plan := createTestPlan(t, svc)
	run, _, err := svc.CreateRun(context.Background(), plan.ID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if _, _, _, err := svc.StoreRunArtifact(context.Background(), run.ID, "", strings.NewReader("x"), blob.PutOptions{}); err == nil {
		t.Fatalf("empty artifact name must be rejected")
	}

	_, _, _, err = svc.StoreRunArtifact(context.Background(), "missing", "frame-000.tiff", strings.NewReader("x"), blob.PutOptions{})
	var notFound ErrNotFound
	if !errors.As(err, &notFound) || notFound.Entity != EntityMeasurementRun {
		t.Fatalf("expected run not found, got %v", err)
	}
	if infos, err := artifacts.List(context.Background(), "runs/missing/"); err != nil || len(infos) != 0 {
		t.Fatalf("artifact for an unknown run must not be stored, got %v (%v)", infos, err)
	}

	bare := newTestService(t)
	if _, _, _, err := bare.StoreRunArtifact(context.Background(), run.ID, "frame-000.tiff", strings.NewReader("x"), blob.PutOptions{}); err == nil {
		t.Fatalf("expected error without a configured artifact store")
	}
}

func TestServiceDeletePlanBlockedByRuns(t *testing.T) {
	svc := newTestService(t)
	plan := createTestPlan(t, svc)
	if _, _, err := svc.CreateRun(context.Background(), plan.ID); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if _, err := svc.DeletePlan(context.Background(), plan.ID); err == nil {
		t.Fatalf("plan with recorded runs must not be deletable")
	}
}

type captureMetricsRecorder struct {
	operations []string
	successes  []bool
}

func (c *captureMetricsRecorder) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	c.operations = append(c.operations, operation)
	c.successes = append(c.successes, success)
}

type captureTracer struct {
	spans []string
	errs  []error
}

func (c *captureTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	c.spans = append(c.spans, operation)
	return ctx, captureSpan{tracer: c}
}

type captureSpan struct{ tracer *captureTracer }

func (s captureSpan) End(err error) { s.tracer.errs = append(s.tracer.errs, err) }

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func TestServiceObservability(t *testing.T) {
	frozen := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	audit := &captureAuditRecorder{}
	svc := newTestService(t,
		WithClock(ClockFunc(func() time.Time { return frozen })),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithAuditRecorder(audit),
	)

	plan := createTestPlan(t, svc)
	if _, _, err := svc.CreatePlan(context.Background(), SweepPlan{Name: "broken", StartValues: StartValues{"focus": ""}}); err == nil {
		t.Fatalf("expected blocked plan")
	}

	if len(metrics.operations) != 2 || metrics.operations[0] != "create_plan" {
		t.Fatalf("metrics operations = %v", metrics.operations)
	}
	if !metrics.successes[0] || metrics.successes[1] {
		t.Fatalf("metrics successes = %v", metrics.successes)
	}
	if len(tracer.spans) != 2 || len(tracer.errs) != 2 {
		t.Fatalf("tracer recorded %d spans and %d ends", len(tracer.spans), len(tracer.errs))
	}
	if tracer.errs[0] != nil || tracer.errs[1] == nil {
		t.Fatalf("tracer errors = %v", tracer.errs)
	}
	if len(audit.entries) != 2 {
		t.Fatalf("audit recorded %d entries", len(audit.entries))
	}
	first := audit.entries[0]
	if first.Operation != "create_plan" || first.Status != AuditStatusSuccess || first.EntityID != plan.ID {
		t.Fatalf("unexpected audit entry: %+v", first)
	}
	if !first.At.Equal(frozen) {
		t.Fatalf("audit timestamp = %v, want %v", first.At, frozen)
	}
	second := audit.entries[1]
	if second.Status != AuditStatusError || second.Error == "" {
		t.Fatalf("unexpected audit entry: %+v", second)
	}
}

type testPlugin struct {
	name     string
	version  string
	register func(*PluginRegistry) error
}

func (p testPlugin) Name() string    { return p.name }
func (p testPlugin) Version() string { return p.version }
func (p testPlugin) Register(r *PluginRegistry) error {
	if p.register == nil {
		return nil
	}
	return p.register(r)
}

func TestServiceInstallPlugin(t *testing.T) {
	svc := newTestService(t)
	plugin := testPlugin{
		name:    "stage",
		version: "1.2.0",
		register: func(r *PluginRegistry) error {
			r.RegisterVariable(MeasurementVariable{UniqueID: "y-tilt", Name: "Y Tilt", Unit: "deg"})
			return nil
		},
	}

	meta, err := svc.InstallPlugin(plugin)
	if err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	if meta.Name != "stage" || meta.Version != "1.2.0" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if len(meta.Variables) != 1 || meta.Variables[0] != "y-tilt" {
		t.Fatalf("metadata variables = %v", meta.Variables)
	}
	if _, ok := svc.Registry().ByID("y-tilt"); !ok {
		t.Fatalf("plugin variable missing from catalog")
	}

	// Existing rules must see the merged catalog: an empty start value for
	// the plugin variable is reported under its registered display name.
	values := validStartValues()
	values["y-tilt"] = ""
	ok, messages := svc.ValidatePlan(SweepPlan{StartValues: values})
	if ok {
		t.Fatalf("expected plan to miss the plugin variable")
	}
	found := false
	for _, msg := range messages {
		if msg == "The start value for the Y Tilt is empty but it has to be given." {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing presence message for plugin variable in %v", messages)
	}

	if _, err := svc.InstallPlugin(plugin); err == nil {
		t.Fatalf("duplicate plugin install must fail")
	}
	if plugins := svc.RegisteredPlugins(); len(plugins) != 1 {
		t.Fatalf("expected one registered plugin, got %d", len(plugins))
	}
}

func TestServiceInstallPluginRejectsConflictingVariable(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.InstallPlugin(testPlugin{
		name:    "clash",
		version: "0.1.0",
		register: func(r *PluginRegistry) error {
			r.RegisterVariable(MeasurementVariable{UniqueID: "x-tilt", Name: "Duplicate"})
			return nil
		},
	})
	if err == nil {
		t.Fatalf("duplicate variable id must fail registration")
	}
}

type namedPlanRule struct{}

func (namedPlanRule) Name() string { return "no_untitled_plans" }

func (namedPlanRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		plan, ok := change.After.(SweepPlan)
		if !ok || plan.Name != "" {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     "no_untitled_plans",
			Severity: SeverityBlock,
			Message:  "Sweep plans need a name.",
			Entity:   EntitySweepPlan,
		})
	}
	return res, nil
}

func TestServiceInstallPluginRule(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.InstallPlugin(testPlugin{
		name:    "naming",
		version: "0.1.0",
		register: func(r *PluginRegistry) error {
			r.RegisterRule(namedPlanRule{})
			return nil
		},
	})
	if err != nil {
		t.Fatalf("install plugin: %v", err)
	}

	_, _, err = svc.CreatePlan(context.Background(), SweepPlan{StartValues: validStartValues()})
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected plugin rule to block, got %v", err)
	}
}
