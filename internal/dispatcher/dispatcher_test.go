package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/dash/internal/cache"
	"github.com/shaiso/dash/internal/connector"
	"github.com/shaiso/dash/internal/domain"
	"github.com/shaiso/dash/internal/engine"
	"github.com/shaiso/dash/internal/telemetry"
)

// --- Fake connector ---

// recorder записывает вызовы методов коннекторов.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fakeConnector вызывает behavior в Execute и записывает Open/Execute/Close.
type fakeConnector struct {
	index    int
	rec      *recorder
	behavior func(ctx context.Context, index int, scope *cache.Scope) error
	closeErr error
}

func (f *fakeConnector) Open(context.Context) error {
	f.rec.add("open %d", f.index)
	return nil
}

func (f *fakeConnector) Execute(ctx context.Context, scope *cache.Scope) error {
	f.rec.add("exec %d", f.index)
	return f.behavior(ctx, f.index, scope)
}

func (f *fakeConnector) Close() error {
	f.rec.add("close %d", f.index)
	return f.closeErr
}

// fakeRegistry регистрирует fakeConnector для run/process.
func fakeRegistry(rec *recorder, behavior func(ctx context.Context, index int, scope *cache.Scope) error) *connector.Registry {
	r := connector.NewRegistry()
	r.Register(connector.Binding{Kind: domain.StepKindRun, Medium: domain.MediumProcess},
		func(req *connector.Request) (connector.Connector, error) {
			return &fakeConnector{index: req.Index, rec: rec, behavior: behavior}, nil
		})
	return r
}

// runPipeline создаёт pipeline из n run-шагов.
func runPipeline(n int) *domain.Pipeline {
	p := &domain.Pipeline{}
	for i := 0; i < n; i++ {
		p.Steps = append(p.Steps, domain.Step{Kind: domain.StepKindRun, Command: "fake"})
	}
	return p
}

func produce(_ context.Context, index int, scope *cache.Scope) error {
	scope.Output([]byte(fmt.Sprintf("value-%d", index)))
	return nil
}

func newDispatcher(registry *connector.Registry, observer Observer) *Dispatcher {
	return New(Config{
		Registry: registry,
		Observer: observer,
		Logger:   telemetry.Discard(),
	})
}

// --- Ordering ---

func TestDispatcher_SequentialOrder(t *testing.T) {
	rec := &recorder{}
	var transitions []string

	d := newDispatcher(fakeRegistry(rec, produce), func(tr Transition) {
		transitions = append(transitions, tr.From.String()+"->"+tr.To.String())
	})

	c := cache.New()
	defer c.Close()

	run, err := d.Execute(context.Background(), runPipeline(4), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var want []string
	for i := 0; i < 4; i++ {
		want = append(want, fmt.Sprintf("open %d", i), fmt.Sprintf("exec %d", i), fmt.Sprintf("close %d", i))
	}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("unexpected call order:\n got  %v\n want %v", got, want)
	}

	wantTransitions := []string{
		"Idle->Running(0)",
		"Running(0)->Running(1)",
		"Running(1)->Running(2)",
		"Running(2)->Running(3)",
		"Running(3)->Done",
	}
	if !reflect.DeepEqual(transitions, wantTransitions) {
		t.Errorf("unexpected transitions:\n got  %v\n want %v", transitions, wantTransitions)
	}

	if run.Status != domain.RunStatusDone {
		t.Errorf("expected DONE, got %s", run.Status)
	}
	for i, s := range run.Steps {
		if s.Status != domain.StepStatusSucceeded {
			t.Errorf("step %d: expected SUCCEEDED, got %s", i, s.Status)
		}
		if s.Key != domain.StepKey(i) {
			t.Errorf("step %d: expected key %s, got %s", i, domain.StepKey(i), s.Key)
		}
		if s.Bytes != len("value-0") {
			t.Errorf("step %d: expected %d bytes, got %d", i, len("value-0"), s.Bytes)
		}
	}

	// Последнее значение доступно под CurrentKey, каждое — под своим ключом
	if data, _ := c.Get(domain.CurrentKey); string(data) != "value-3" {
		t.Errorf("expected value-3 under current key, got %q", data)
	}
	if data, _ := c.Get(domain.StepKey(1)); string(data) != "value-1" {
		t.Errorf("expected value-1 under step-1, got %q", data)
	}
}

func TestDispatcher_NextStepSeesPreviousWrite(t *testing.T) {
	rec := &recorder{}
	behavior := func(_ context.Context, index int, scope *cache.Scope) error {
		if index == 0 {
			scope.Output([]byte("seed"))
			return nil
		}
		data, ok := scope.Input()
		if !ok {
			return connector.ErrCacheMiss
		}
		scope.Output(append(data, '!'))
		return nil
	}

	p := runPipeline(3)
	for i := range p.Steps {
		p.Steps[i].Input = domain.CurrentKey
	}

	c := cache.New()
	defer c.Close()

	if _, err := newDispatcher(fakeRegistry(rec, behavior), nil).Execute(context.Background(), p, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data, _ := c.Get(domain.CurrentKey); string(data) != "seed!!" {
		t.Errorf("expected seed!!, got %q", data)
	}
}

// --- Failure propagation ---

func TestDispatcher_FailureAbortsRun(t *testing.T) {
	rec := &recorder{}
	behavior := func(ctx context.Context, index int, scope *cache.Scope) error {
		if index == 2 {
			return fmt.Errorf("%w: exit 1", connector.ErrProcess)
		}
		return produce(ctx, index, scope)
	}

	var last Transition
	d := newDispatcher(fakeRegistry(rec, behavior), func(tr Transition) { last = tr })

	p := runPipeline(5)
	p.Steps[2].Name = "transform"

	run, err := d.Run(context.Background(), p)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected *StepError, got %T: %v", err, err)
	}
	if stepErr.Index != 2 || stepErr.Name != "transform" {
		t.Errorf("expected step #2 transform, got #%d %q", stepErr.Index, stepErr.Name)
	}
	if stepErr.Kind != KindProcess {
		t.Errorf("expected ProcessError, got %s", stepErr.Kind)
	}
	if !errors.Is(err, connector.ErrProcess) {
		t.Error("StepError should unwrap to connector.ErrProcess")
	}
	if !strings.Contains(err.Error(), `step #2 "transform" (run/process) failed: ProcessError`) {
		t.Errorf("unexpected message: %v", err)
	}

	want := []string{
		"open 0", "exec 0", "close 0",
		"open 1", "exec 1", "close 1",
		"open 2", "exec 2", "close 2",
	}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("steps after failure must not run:\n got  %v\n want %v", got, want)
	}

	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", run.Status)
	}
	wantStatus := []domain.StepStatus{
		domain.StepStatusSucceeded,
		domain.StepStatusSucceeded,
		domain.StepStatusFailed,
		domain.StepStatusSkipped,
		domain.StepStatusSkipped,
	}
	for i, s := range run.Steps {
		if s.Status != wantStatus[i] {
			t.Errorf("step %d: expected %s, got %s", i, wantStatus[i], s.Status)
		}
	}
	if run.Steps[2].Error == "" {
		t.Error("failed step should carry error message")
	}

	if last.To.String() != "Failed(2)" || last.Err == nil {
		t.Errorf("expected final transition to Failed(2) with error, got %s (%v)", last.To, last.Err)
	}
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	rec := &recorder{}
	behavior := func(context.Context, int, *cache.Scope) error {
		panic("boom")
	}

	run, err := newDispatcher(fakeRegistry(rec, behavior), nil).Run(context.Background(), runPipeline(2))
	if !errors.Is(err, ErrStepPanic) {
		t.Fatalf("expected ErrStepPanic, got %v", err)
	}
	if Kind(err) != KindPanic {
		t.Errorf("expected PanicError, got %s", Kind(err))
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", run.Status)
	}

	// Close вызывается и после паники
	want := []string{"open 0", "exec 0", "close 0"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDispatcher_CloseErrorIsNotFatal(t *testing.T) {
	rec := &recorder{}
	r := connector.NewRegistry()
	r.Register(connector.Binding{Kind: domain.StepKindRun, Medium: domain.MediumProcess},
		func(req *connector.Request) (connector.Connector, error) {
			return &fakeConnector{index: req.Index, rec: rec, behavior: produce, closeErr: errors.New("close failed")}, nil
		})

	run, err := newDispatcher(r, nil).Run(context.Background(), runPipeline(2))
	if err != nil {
		t.Fatalf("close error should not fail the run: %v", err)
	}
	if run.Status != domain.RunStatusDone {
		t.Errorf("expected DONE, got %s", run.Status)
	}
}

// --- Timeouts and cancellation ---

func blockUntilDone(ctx context.Context, _ int, _ *cache.Scope) error {
	<-ctx.Done()
	return fmt.Errorf("%w: %w", connector.ErrProcess, ctx.Err())
}

func TestDispatcher_StepTimeout(t *testing.T) {
	rec := &recorder{}
	p := runPipeline(2)
	p.Steps[0].Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := newDispatcher(fakeRegistry(rec, blockUntilDone), nil).Run(context.Background(), p)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("step timeout not applied, took %v", elapsed)
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded in chain, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Index != 0 {
		t.Errorf("expected StepError for step 0, got %v", err)
	}
}

func TestDispatcher_DefaultStepTimeout(t *testing.T) {
	rec := &recorder{}
	d := New(Config{
		Registry:    fakeRegistry(rec, func(ctx context.Context, _ int, _ *cache.Scope) error { <-ctx.Done(); return ctx.Err() }),
		StepTimeout: 50 * time.Millisecond,
		Logger:      telemetry.Discard(),
	})

	_, err := d.Run(context.Background(), runPipeline(1))
	if Kind(err) != KindTimeout {
		t.Errorf("expected TimeoutError, got %s (%v)", Kind(err), err)
	}
}

func TestDispatcher_CanceledBeforeStart(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newDispatcher(fakeRegistry(rec, produce), nil).Run(ctx, runPipeline(3))
	if Kind(err) != KindCanceled {
		t.Errorf("expected CanceledError, got %s (%v)", Kind(err), err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", run.Status)
	}
	if got := rec.list(); len(got) != 0 {
		t.Errorf("no connector should run after cancellation, got %v", got)
	}
}

func TestDispatcher_CancelDuringStep(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	behavior := func(stepCtx context.Context, index int, scope *cache.Scope) error {
		if index == 1 {
			cancel()
			return blockUntilDone(stepCtx, index, scope)
		}
		return produce(stepCtx, index, scope)
	}

	_, err := newDispatcher(fakeRegistry(rec, behavior), nil).Run(ctx, runPipeline(3))

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Index != 1 {
		t.Fatalf("expected StepError for step 1, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
	for _, e := range rec.list() {
		if strings.HasSuffix(e, " 2") {
			t.Errorf("step 2 should not run, got %s", e)
		}
	}
}

// --- Configuration errors ---

func TestDispatcher_EmptyPipeline(t *testing.T) {
	rec := &recorder{}
	run, err := newDispatcher(fakeRegistry(rec, produce), nil).Run(context.Background(), &domain.Pipeline{})

	if !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if Kind(err) != KindConfig {
		t.Errorf("expected ConfigError, got %s", Kind(err))
	}
	if run != nil {
		t.Error("config error should not create a run")
	}
}

func TestDispatcher_UnsupportedBinding(t *testing.T) {
	rec := &recorder{}
	p := runPipeline(2)
	p.Steps = append(p.Steps, domain.Step{
		Kind:       domain.StepKindRead,
		Connection: domain.Connection{File: &domain.FileConfig{Location: "in.txt"}},
	})

	_, err := newDispatcher(fakeRegistry(rec, produce), nil).Run(context.Background(), p)
	if !errors.Is(err, connector.ErrUnsupported) || !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("expected unsupported config error, got %v", err)
	}
	if got := rec.list(); len(got) != 0 {
		t.Errorf("no step should run on config error, got %v", got)
	}
}

func TestDispatcher_InvalidStep(t *testing.T) {
	rec := &recorder{}
	p := runPipeline(2)
	p.Steps[1].Command = ""

	_, err := newDispatcher(fakeRegistry(rec, produce), nil).Run(context.Background(), p)
	if Kind(err) != KindConfig {
		t.Errorf("expected ConfigError, got %v", err)
	}
	if got := rec.list(); len(got) != 0 {
		t.Errorf("no step should run on config error, got %v", got)
	}
}

// --- Real connectors ---

func TestDispatcher_WriteWithoutReadIsCacheMiss(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "b.txt")
	p := &domain.Pipeline{Steps: []domain.Step{
		{Kind: domain.StepKindWrite, Connection: domain.Connection{File: &domain.FileConfig{Location: dst}}},
	}}

	_, err := newDispatcher(nil, nil).Run(context.Background(), p)
	if Kind(err) != KindCacheMiss {
		t.Fatalf("expected CacheMissError, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("no file should be created, stat: %v", err)
	}
}

func TestDispatcher_FileCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "b.txt")
	content := []byte("line 1\nline 2\x00binary\n")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	p := &domain.Pipeline{Steps: []domain.Step{
		{Kind: domain.StepKindRead, Connection: domain.Connection{File: &domain.FileConfig{Location: src}}},
		{Kind: domain.StepKindWrite, Connection: domain.Connection{File: &domain.FileConfig{Location: dst}}},
	}}

	if _, err := newDispatcher(nil, nil).Run(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Errorf("copy is not byte-identical: %q vs %q", got, content)
	}
}

func TestDispatcher_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.json")
	transform := filepath.Join(dir, "transform.sh")

	if err := os.WriteFile(in, []byte(`{"name":"dash"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\nprintf '%s:' \"$PREFIX\"\ntr '[:lower:]' '[:upper:]'\n"
	if err := os.WriteFile(transform, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	p := &domain.Pipeline{
		Env: map[string]string{"PREFIX": "out"},
		Steps: []domain.Step{
			{Name: "source", Kind: domain.StepKindRead, Connection: domain.Connection{File: &domain.FileConfig{Location: in}}},
			{Name: "upper", Kind: domain.StepKindRun, Command: transform, Input: "source"},
			{Kind: domain.StepKindWrite, Connection: domain.Connection{File: &domain.FileConfig{Location: out}}},
		},
	}

	metrics := telemetry.NewMetrics(false)
	d := New(Config{Metrics: metrics, Logger: telemetry.Discard()})

	run, err := d.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `out:{"NAME":"DASH"}` {
		t.Errorf("unexpected output: %q", got)
	}

	if run.Steps[0].Key != "source" || run.Steps[1].Key != "upper" || run.Steps[2].Key != "" {
		t.Errorf("unexpected keys: %q %q %q", run.Steps[0].Key, run.Steps[1].Key, run.Steps[2].Key)
	}
	if run.Steps[1].Bytes != len(got) {
		t.Errorf("expected %d bytes from run step, got %d", len(got), run.Steps[1].Bytes)
	}

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var steps float64
	for _, f := range families {
		if f.GetName() == "dash_steps_total" {
			for _, m := range f.GetMetric() {
				steps += m.GetCounter().GetValue()
			}
		}
	}
	if steps != 3 {
		t.Errorf("expected 3 steps in metrics, got %v", steps)
	}
}

func TestDispatcher_NamedInputs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	out := filepath.Join(dir, "out.txt")
	os.WriteFile(a, []byte("A"), 0o644)
	os.WriteFile(b, []byte("B"), 0o644)

	p := &domain.Pipeline{Steps: []domain.Step{
		{Name: "first", Kind: domain.StepKindRead, Connection: domain.Connection{File: &domain.FileConfig{Location: a}}},
		{Name: "second", Kind: domain.StepKindRead, Connection: domain.Connection{File: &domain.FileConfig{Location: b}}},
		{Kind: domain.StepKindWrite, Input: "first", Connection: domain.Connection{File: &domain.FileConfig{Location: out}}},
	}}

	if _, err := newDispatcher(nil, nil).Run(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := os.ReadFile(out); string(got) != "A" {
		t.Errorf("expected A from named input, got %q", got)
	}
}

// --- Kind ---

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("%w: x", connector.ErrIO), KindIO},
		{fmt.Errorf("%w: x", connector.ErrNetwork), KindNetwork},
		{fmt.Errorf("%w: x", connector.ErrDatabase), KindDatabase},
		{fmt.Errorf("%w: x", connector.ErrProcess), KindProcess},
		{fmt.Errorf("%w: x", connector.ErrCacheMiss), KindCacheMiss},
		{fmt.Errorf("%w: x", connector.ErrNotImplemented), KindNotImplemented},
		{engine.NewValidationError(0, "", "f", "m", engine.ErrMissingField), KindConfig},
		{fmt.Errorf("%w: %w", connector.ErrNetwork, context.DeadlineExceeded), KindNetwork},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindCanceled},
		{errors.New("other"), KindUnknown},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestDispatcher_NameShadowingStepKeyRejected(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	out := filepath.Join(dir, "out.txt")
	os.WriteFile(a, []byte("AAA"), 0o644)
	os.WriteFile(b, []byte("BBB"), 0o644)

	p := &domain.Pipeline{Steps: []domain.Step{
		{Kind: domain.StepKindRead, Connection: domain.Connection{File: &domain.FileConfig{Location: a}}},
		{Name: "step-0", Kind: domain.StepKindRead, Connection: domain.Connection{File: &domain.FileConfig{Location: b}}},
		{Kind: domain.StepKindWrite, Input: "step-0", Connection: domain.Connection{File: &domain.FileConfig{Location: out}}},
	}}

	run, err := newDispatcher(nil, nil).Run(context.Background(), p)
	if !errors.Is(err, engine.ErrReservedStepName) {
		t.Fatalf("expected ErrReservedStepName, got %v", err)
	}
	if run != nil {
		t.Errorf("expected no run for invalid pipeline, got %+v", run)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("expected no output file, stat err: %v", err)
	}
}

func TestDispatcher_StepLoggerInContext(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, "json", slog.LevelInfo)

	rec := &recorder{}
	d := New(Config{
		Registry: fakeRegistry(rec, func(ctx context.Context, index int, scope *cache.Scope) error {
			telemetry.FromContext(ctx).Info("connector says hi")
			return nil
		}),
		Logger: logger,
	})

	p := runPipeline(2)
	p.Steps[1].Name = "second"
	if _, err := d.Run(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "connector says hi") {
			lines = append(lines, line)
		}
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 connector log lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], `"step_index":1`) || !strings.Contains(lines[1], `"step":"second"`) {
		t.Errorf("connector log line lacks step attributes: %s", lines[1])
	}
	if !strings.Contains(lines[0], `"run_id"`) {
		t.Errorf("connector log line lacks run_id: %s", lines[0])
	}
}
