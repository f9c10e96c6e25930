package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/breaker"
	"github.com/mkoresh/forgeline/internal/chaos"
	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/pool"
	"github.com/mkoresh/forgeline/internal/repo"
	"github.com/mkoresh/forgeline/internal/sandbox"
	"github.com/mkoresh/forgeline/internal/sched"
	"github.com/mkoresh/forgeline/internal/worker"
)

// failure — один запланированный отказ scripted executor'а.
type failure struct {
	class domain.FailureClass
	err   string
}

// scriptedExecutor отыгрывает по шагу заданную последовательность
// отказов; вызовы сверх последовательности успешны.
type scriptedExecutor struct {
	mu      sync.Mutex
	scripts map[string][]failure
	calls   map[string]int
	gates   map[string]chan struct{}
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		scripts: make(map[string][]failure),
		calls:   make(map[string]int),
		gates:   make(map[string]chan struct{}),
	}
}

// fail планирует последовательность отказов для шага.
func (e *scriptedExecutor) fail(stepID string, failures ...failure) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[stepID] = failures
}

// gate блокирует первый вызов шага до закрытия канала.
func (e *scriptedExecutor) gate(stepID string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan struct{})
	e.gates[stepID] = ch
	return ch
}

func (e *scriptedExecutor) callCount(stepID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[stepID]
}

func (e *scriptedExecutor) Execute(_ context.Context, task *domain.Task) (*worker.ExecResult, error) {
	e.mu.Lock()
	e.calls[task.StepID]++
	n := e.calls[task.StepID]
	script := e.scripts[task.StepID]
	gate := e.gates[task.StepID]
	e.mu.Unlock()

	if gate != nil && n == 1 {
		<-gate
	}

	if n <= len(script) {
		f := script[n-1]
		return &worker.ExecResult{FailureClass: f.class, Error: f.err}, nil
	}
	return &worker.ExecResult{Outputs: map[string]any{"step": task.StepID}}, nil
}

type fakePatcher struct {
	mu    sync.Mutex
	patch map[string]any
	err   error
	calls int
}

func (p *fakePatcher) ProposePatch(_ context.Context, _ domain.Run, _ domain.StepDef, _ *domain.Task) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.patch, p.err
}

type fakePlanner struct {
	subplan []domain.StepDef
	err     error
}

func (p *fakePlanner) Replan(_ context.Context, _ domain.Run, _ domain.StepDef, _ string) ([]domain.StepDef, error) {
	return p.subplan, p.err
}

type fakeInverter struct {
	mu     sync.Mutex
	undone []string
}

func (i *fakeInverter) Undo(_ context.Context, _ domain.Run, step domain.StepDef) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.undone = append(i.undone, step.ID)
	return nil
}

func (i *fakeInverter) undoneSteps() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.undone...)
}

// envConfig — настройки тестового окружения.
type envConfig struct {
	retryLimit       int
	patchLimit       int
	breakerThreshold int
	breakerCooldown  time.Duration
	patcher          Patcher
	planner          Planner
	inverter         Inverter
	chaos            *chaos.Engine
	store            *repo.Memory
}

type env struct {
	exec     *scriptedExecutor
	pool     *pool.Pool
	store    *repo.Memory
	breakers *breaker.Registry
	orch     *Orchestrator
	inverter *fakeInverter
}

// newEnv собирает пул, одного воркера со scripted executor'ом
// и оркестратор поверх in-memory store.
func newEnv(t *testing.T, cfg envConfig) *env {
	t.Helper()

	if cfg.retryLimit == 0 {
		cfg.retryLimit = 2
	}
	if cfg.patchLimit == 0 {
		cfg.patchLimit = 1
	}
	if cfg.breakerThreshold == 0 {
		// Высокий порог: breaker не вмешивается, если тест этого не просит.
		cfg.breakerThreshold = 50
	}
	if cfg.breakerCooldown == 0 {
		cfg.breakerCooldown = time.Minute
	}
	if cfg.store == nil {
		cfg.store = repo.NewMemory()
	}

	exec := newScriptedExecutor()

	p := pool.New(pool.Config{LeaseTTL: 2 * time.Second})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(p.Stop)

	breakers := breaker.NewRegistry(breaker.Config{
		Threshold: cfg.breakerThreshold,
		Cooldown:  cfg.breakerCooldown,
	})

	registry := worker.NewRegistry()
	registry.Register("llm.call", exec)

	runner := worker.New(worker.Config{
		ID:           "w1",
		Pool:         p,
		Breakers:     breakers,
		Registry:     registry,
		PollInterval: 2 * time.Millisecond,
	})
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("start runner: %v", err)
	}
	t.Cleanup(runner.Stop)

	inverter := cfg.inverter
	fi, _ := inverter.(*fakeInverter)

	orch := New(Config{
		Store:        cfg.store,
		Pool:         p,
		Scheduler:    sched.New(sched.Config{}),
		Breakers:     breakers,
		Sandbox:      sandbox.New(sandbox.Config{AllowedPaths: []string{"prompt"}, DeniedSecrets: []string{"sk-secret"}}),
		Chaos:        cfg.chaos,
		Planner:      cfg.planner,
		Patcher:      cfg.patcher,
		Inverter:     inverter,
		RetryLimit:   cfg.retryLimit,
		PatchLimit:   cfg.patchLimit,
		RetryBackoff: time.Millisecond,
	})
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(orch.Stop)

	return &env{
		exec:     exec,
		pool:     p,
		store:    cfg.store,
		breakers: breakers,
		orch:     orch,
		inverter: fi,
	}
}

func llmStep(id string) domain.StepDef {
	return domain.StepDef{
		ID:      id,
		Class:   domain.TaskClassLLM,
		Type:    "llm.call",
		Payload: map[string]any{"prompt": "build " + id},
	}
}

// waitFinished ждёт терминального статуса run.
func waitFinished(t *testing.T, e *env, runID uuid.UUID) *domain.Run {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := e.orch.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if run.IsFinished() {
			return run
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", runID)
	return nil
}

func phases(attempts []domain.RepairAttempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, string(a.Phase)+":"+string(a.Outcome))
	}
	return out
}

func TestOrchestrator_HappyPath(t *testing.T) {
	e := newEnv(t, envConfig{})

	plan := []domain.StepDef{llmStep("generate"), llmStep("compile"), llmStep("test")}
	run, err := e.orch.Submit(context.Background(), plan, domain.Budget{MaxCost: 10}, domain.SLONormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", final.Status, final.Error)
	}
	if final.Cursor != 3 {
		t.Errorf("expected cursor 3, got %d", final.Cursor)
	}
	for _, id := range []string{"generate", "compile", "test"} {
		if n := e.exec.callCount(id); n != 1 {
			t.Errorf("step %s: expected 1 call, got %d", id, n)
		}
	}

	timeline, err := e.orch.Timeline(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 0 {
		t.Errorf("expected empty repair trail, got %v", phases(timeline))
	}
	if final.Budget.SpentCost <= 0 {
		t.Errorf("expected positive spent cost, got %f", final.Budget.SpentCost)
	}
}

func TestOrchestrator_BudgetRollbackBeforeExecution(t *testing.T) {
	e := newEnv(t, envConfig{})

	// Самый дешёвый тир стоит больше лимита: ни одна попытка не выполняется.
	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{llmStep("generate")},
		domain.Budget{MaxCost: 0.01},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusRolledBack {
		t.Fatalf("expected ROLLED_BACK, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "budget") {
		t.Errorf("expected budget reason, got %q", final.Error)
	}
	if n := e.exec.callCount("generate"); n != 0 {
		t.Errorf("expected 0 executor calls, got %d", n)
	}
}

func TestOrchestrator_RetryRecoversTransient(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.exec.fail("compile", failure{domain.FailureTransient, "connection reset"})

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{llmStep("compile")},
		domain.Budget{MaxCost: 10},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED after retry, got %s (%s)", final.Status, final.Error)
	}
	if n := e.exec.callCount("compile"); n != 2 {
		t.Errorf("expected 2 calls (fail + retry), got %d", n)
	}

	timeline, _ := e.orch.Timeline(context.Background(), run.ID)
	if len(timeline) != 1 || timeline[0].Phase != domain.PhaseRetry {
		t.Errorf("expected single RETRY record, got %v", phases(timeline))
	}
}

func TestOrchestrator_CircuitOpenDoesNotChargeBudget(t *testing.T) {
	e := newEnv(t, envConfig{
		breakerThreshold: 1,
		breakerCooldown:  40 * time.Millisecond,
	})

	// Открытый breaker: задачи отклоняются воркером без выполнения,
	// пока cooldown не истечёт.
	e.breakers.RecordFailure(domain.FailureTransient)

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{llmStep("deploy")},
		domain.Budget{MaxCost: 10},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED after cooldown, got %s (%s)", final.Status, final.Error)
	}
	if n := e.exec.callCount("deploy"); n != 1 {
		t.Errorf("expected 1 real call, got %d", n)
	}

	// Отклонения при открытом breaker не тратят бюджет: оплачена
	// только единственная реальная попытка.
	if final.Budget.AttemptsUsed != 1 {
		t.Errorf("expected 1 charged attempt, got %d", final.Budget.AttemptsUsed)
	}

	timeline, _ := e.orch.Timeline(context.Background(), run.ID)
	skipped := 0
	for _, a := range timeline {
		if a.Phase == domain.PhaseRetry && a.Outcome == domain.RepairOutcomeSkipped {
			skipped++
		}
	}
	if skipped == 0 {
		t.Error("expected skipped retry records while circuit was open")
	}
}

func TestOrchestrator_RepairPhaseOrdering(t *testing.T) {
	patcher := &fakePatcher{patch: map[string]any{"prompt": "patched"}}
	planner := &fakePlanner{subplan: []domain.StepDef{llmStep("replacement")}}
	inverter := &fakeInverter{}

	e := newEnv(t, envConfig{
		retryLimit: 1,
		patchLimit: 1,
		patcher:    patcher,
		planner:    planner,
		inverter:   inverter,
	})

	// setup выполняется и откатывается; flaky проходит всю лестницу.
	setup := llmStep("setup")
	setup.Undoable = true
	e.exec.fail("flaky",
		failure{domain.FailureTransient, "timeout"},
		failure{domain.FailureTransient, "timeout"},
		failure{domain.FailureCorrectable, "bad prompt"},
	)
	e.exec.fail("replacement", failure{domain.FailureStructural, "plan invalid"})

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{setup, llmStep("flaky")},
		domain.Budget{MaxCost: 100},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusRolledBack {
		t.Fatalf("expected ROLLED_BACK, got %s (%s)", final.Status, final.Error)
	}

	timeline, _ := e.orch.Timeline(context.Background(), run.ID)
	want := []string{
		"RETRY:FAILED",
		"RETRY:EXHAUSTED",
		"PATCH:SUCCEEDED",
		"PATCH:EXHAUSTED",
		"REPLAN:SUCCEEDED",
		"REPLAN:SKIPPED",
		"ROLLBACK:SUCCEEDED",
	}
	got := phases(timeline)
	if len(got) != len(want) {
		t.Fatalf("expected trail %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trail mismatch at %d: expected %v, got %v", i, want, got)
		}
	}

	if undone := inverter.undoneSteps(); len(undone) != 1 || undone[0] != "setup" {
		t.Errorf("expected [setup] undone, got %v", undone)
	}
	if patcher.calls != 1 {
		t.Errorf("expected 1 patch proposal, got %d", patcher.calls)
	}
}

func TestOrchestrator_SandboxBlockFailsWithoutRollback(t *testing.T) {
	// Правка выходит за write scope (разрешён только prompt).
	patcher := &fakePatcher{patch: map[string]any{"prompt": "build bad", "cmd": "rm -rf /"}}
	inverter := &fakeInverter{}

	e := newEnv(t, envConfig{
		patcher:  patcher,
		inverter: inverter,
	})

	setup := llmStep("setup")
	setup.Undoable = true
	e.exec.fail("bad", failure{domain.FailureCorrectable, "schema mismatch"})

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{setup, llmStep("bad")},
		domain.Budget{MaxCost: 100},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", final.Status)
	}
	if !strings.Contains(final.Error, "sandbox") {
		t.Errorf("expected sandbox reason, got %q", final.Error)
	}
	// Нарушение песочницы НЕ откатывает завершённые шаги.
	if undone := inverter.undoneSteps(); len(undone) != 0 {
		t.Errorf("expected no rollback, got undone %v", undone)
	}
}

func TestOrchestrator_SkipsRetryWhenBreakerOpen(t *testing.T) {
	e := newEnv(t, envConfig{breakerThreshold: 1})
	e.exec.fail("compile", failure{domain.FailureTransient, "connection refused"})

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{llmStep("compile")},
		domain.Budget{MaxCost: 10},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusRolledBack {
		t.Fatalf("expected ROLLED_BACK, got %s", final.Status)
	}
	// Первый отказ открыл breaker: retry пропущен, второго вызова нет.
	if n := e.exec.callCount("compile"); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}

	timeline, _ := e.orch.Timeline(context.Background(), run.ID)
	found := false
	for _, a := range timeline {
		if a.Phase == domain.PhaseRetry && a.Outcome == domain.RepairOutcomeSkipped {
			found = true
		}
	}
	if !found {
		t.Errorf("expected RETRY:SKIPPED in trail, got %v", phases(timeline))
	}
}

func TestOrchestrator_CancelRollsBack(t *testing.T) {
	inverter := &fakeInverter{}
	e := newEnv(t, envConfig{inverter: inverter})

	gate := e.exec.gate("slow")

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{llmStep("slow"), llmStep("never")},
		domain.Budget{MaxCost: 10},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Ждём, пока первый шаг возьмут в работу, и отменяем.
	deadline := time.Now().Add(2 * time.Second)
	for e.exec.callCount("slow") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := e.orch.Cancel(run.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(gate)

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusRolledBack {
		t.Fatalf("expected ROLLED_BACK, got %s", final.Status)
	}
	if n := e.exec.callCount("never"); n != 0 {
		t.Errorf("step after cancel must not run, got %d calls", n)
	}
}

func TestOrchestrator_ChaosRecoveryMarked(t *testing.T) {
	engine, err := chaos.New(chaos.Config{
		Enabled:     true,
		Faults:      []domain.ChaosFaultType{domain.ChaosFaultTransient},
		Probability: 1,
	})
	if err != nil {
		t.Fatalf("new chaos engine: %v", err)
	}

	e := newEnv(t, envConfig{chaos: engine})

	gate := e.exec.gate("compile")
	e.exec.fail("compile", failure{domain.FailureTransient, "injected-like failure"})

	run, err := e.orch.Submit(context.Background(),
		[]domain.StepDef{llmStep("compile")},
		domain.Budget{MaxCost: 10},
		domain.SLONormal,
	)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Инъекция в run до завершения: тот же путь, что у runner'а.
	if _, injected := engine.Intercept(&domain.Task{ID: uuid.New(), RunID: run.ID, Class: domain.TaskClassLLM}); !injected {
		t.Fatal("expected fault injection")
	}
	close(gate)

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED despite fault, got %s (%s)", final.Status, final.Error)
	}

	summary := engine.Summary()
	if summary.Injected != 1 || summary.Recovered != 1 {
		t.Errorf("expected 1 injected / 1 recovered, got %d / %d", summary.Injected, summary.Recovered)
	}
	for _, event := range summary.Events {
		if !event.Recovered {
			t.Errorf("expected event %s marked recovered", event.ID)
		}
	}
}

func TestOrchestrator_RestoreUnfinishedRun(t *testing.T) {
	store := repo.NewMemory()

	// Run, переживший рестарт процесса: RUNNING в Store, loop'а нет.
	run := domain.NewRun(
		[]domain.StepDef{llmStep("generate"), llmStep("compile")},
		domain.Budget{MaxCost: 10},
		domain.SLONormal,
	)
	run.MarkRunning()
	run.Cursor = 1
	if err := store.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	e := newEnv(t, envConfig{store: store})

	final := waitFinished(t, e, run.ID)

	if final.Status != domain.RunStatusCompleted {
		t.Fatalf("expected COMPLETED after restore, got %s (%s)", final.Status, final.Error)
	}
	// Курсор пережил рестарт: первый шаг не выполняется заново.
	if n := e.exec.callCount("generate"); n != 0 {
		t.Errorf("expected restored cursor to skip generate, got %d calls", n)
	}
	if n := e.exec.callCount("compile"); n != 1 {
		t.Errorf("expected compile executed once, got %d calls", n)
	}
}

func TestOrchestrator_GetRunNotFound(t *testing.T) {
	e := newEnv(t, envConfig{})

	_, err := e.orch.GetRun(context.Background(), uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
