package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/breaker"
	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/pool"
)

// fakeExecutor — управляемый executor для тестов.
type fakeExecutor struct {
	calls   atomic.Int32
	result  *ExecResult
	execErr error
}

func (f *fakeExecutor) Execute(_ context.Context, task *domain.Task) (*ExecResult, error) {
	f.calls.Add(1)
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ExecResult{Outputs: map[string]any{"step": task.StepID}}, nil
}

func newTestTask(class domain.TaskClass, taskType string) *domain.Task {
	step := domain.StepDef{ID: "compile", Class: class, Type: taskType}
	return domain.NewTask(uuid.New(), step, 1)
}

// newTestRunner собирает пул + runner с указанным executor'ом
// для типа "llm.call" и запускает оба.
func newTestRunner(t *testing.T, exec Executor) (*pool.Pool, *breaker.Registry, *Runner) {
	t.Helper()

	p := pool.New(pool.Config{QueueDepth: 8, LeaseTTL: time.Second})
	breakers := breaker.NewRegistry(breaker.Config{Threshold: 3, Cooldown: time.Minute})

	registry := NewRegistry()
	registry.Register("llm.call", exec)

	r := New(Config{
		ID:           "w1",
		Pool:         p,
		Breakers:     breakers,
		Registry:     registry,
		PollInterval: 5 * time.Millisecond,
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start runner: %v", err)
	}
	t.Cleanup(r.Stop)

	return p, breakers, r
}

func submitAndAwait(t *testing.T, p *pool.Pool, task *domain.Task) *domain.Task {
	t.Helper()

	if err := p.Submit(task); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done, err := p.Await(ctx, task.ID)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	return done
}

func TestRunner_ExecutesTask(t *testing.T) {
	exec := &fakeExecutor{}
	p, _, _ := newTestRunner(t, exec)

	task := newTestTask(domain.TaskClassLLM, "llm.call")
	done := submitAndAwait(t, p, task)

	if done.Status != domain.TaskStatusSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s (%s)", done.Status, done.Error)
	}
	if done.Outputs["step"] != "compile" {
		t.Errorf("expected outputs from executor, got %v", done.Outputs)
	}
	if exec.calls.Load() != 1 {
		t.Errorf("expected 1 executor call, got %d", exec.calls.Load())
	}
}

func TestRunner_InfraErrorClassifiedTransient(t *testing.T) {
	exec := &fakeExecutor{execErr: errors.New("connection refused")}
	p, breakers, _ := newTestRunner(t, exec)

	done := submitAndAwait(t, p, newTestTask(domain.TaskClassLLM, "llm.call"))

	if done.Status != domain.TaskStatusFailed {
		t.Fatalf("expected FAILED, got %s", done.Status)
	}
	if done.FailureClass != domain.FailureTransient {
		t.Errorf("expected TRANSIENT, got %s", done.FailureClass)
	}
	if got := breakers.Get(domain.FailureTransient).Snapshot().ConsecutiveFailures; got != 1 {
		t.Errorf("expected 1 recorded failure, got %d", got)
	}
}

func TestRunner_LogicalFailureKeepsExecutorClass(t *testing.T) {
	exec := &fakeExecutor{result: &ExecResult{
		FailureClass: domain.FailureCorrectable,
		Error:        "schema mismatch",
	}}
	p, _, _ := newTestRunner(t, exec)

	done := submitAndAwait(t, p, newTestTask(domain.TaskClassLLM, "llm.call"))

	if done.FailureClass != domain.FailureCorrectable {
		t.Errorf("expected CORRECTABLE, got %s", done.FailureClass)
	}
	if done.Error != "schema mismatch" {
		t.Errorf("unexpected error message: %q", done.Error)
	}
}

func TestRunner_UnknownTaskType(t *testing.T) {
	p, _, _ := newTestRunner(t, &fakeExecutor{})

	done := submitAndAwait(t, p, newTestTask(domain.TaskClassCPU, "no-such-type"))

	if done.Status != domain.TaskStatusFailed {
		t.Fatalf("expected FAILED, got %s", done.Status)
	}
	if done.FailureClass != domain.FailureStructural {
		t.Errorf("expected STRUCTURALLY_BLOCKED, got %s", done.FailureClass)
	}
}

func TestRunner_CircuitOpenFastFail(t *testing.T) {
	exec := &fakeExecutor{}
	p, breakers, _ := newTestRunner(t, exec)

	// Открываем breaker внешних вызовов до отправки task.
	for i := 0; i < 3; i++ {
		breakers.RecordFailure(domain.FailureTransient)
	}

	done := submitAndAwait(t, p, newTestTask(domain.TaskClassLLM, "llm.call"))

	if done.FailureClass != domain.FailureCircuitOpen {
		t.Fatalf("expected CIRCUIT_OPEN, got %s", done.FailureClass)
	}
	if exec.calls.Load() != 0 {
		t.Errorf("executor must not be called while circuit is open, got %d calls", exec.calls.Load())
	}
}

func TestIdempotentExecutor_DeduplicatesKey(t *testing.T) {
	inner := &fakeExecutor{}
	idem := NewIdempotentExecutor(inner)

	task := newTestTask(domain.TaskClassLLM, "llm.call")

	first, err := idem.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}

	// Повторная доставка того же ключа — no-op с тем же результатом.
	second, err := idem.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}

	if inner.calls.Load() != 1 {
		t.Errorf("expected exactly 1 real call, got %d", inner.calls.Load())
	}
	if fmt.Sprintf("%v", first.Outputs) != fmt.Sprintf("%v", second.Outputs) {
		t.Errorf("cached result differs: %v vs %v", first.Outputs, second.Outputs)
	}
}

func TestIdempotentExecutor_SuppressesRedelivery(t *testing.T) {
	inner := &fakeExecutor{}
	idem := NewIdempotentExecutor(inner)

	task := newTestTask(domain.TaskClassLLM, "llm.call")
	if _, err := idem.Execute(context.Background(), task); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Requeue после истечения лизы сохраняет ключ: повторная доставка
	// уже выполненной задачи — no-op, эффект не дублируется.
	task.Requeue()
	res, err := idem.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("execute after requeue: %v", err)
	}

	if inner.calls.Load() != 1 {
		t.Errorf("redelivered task must be deduplicated, got %d calls", inner.calls.Load())
	}
	if res.Failed() {
		t.Errorf("cached success expected, got %q", res.Error)
	}
}

func TestIdempotentExecutor_NewAttemptExecutes(t *testing.T) {
	inner := &fakeExecutor{}
	idem := NewIdempotentExecutor(inner)

	step := domain.StepDef{ID: "compile", Class: domain.TaskClassLLM, Type: "llm.call"}
	runID := uuid.New()

	first := domain.NewTask(runID, step, 1)
	if _, err := idem.Execute(context.Background(), first); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Новая попытка оркестратора — новая задача с новым ключом,
	// вызов реальный.
	second := domain.NewTask(runID, step, 2)
	if _, err := idem.Execute(context.Background(), second); err != nil {
		t.Fatalf("execute attempt 2: %v", err)
	}

	if inner.calls.Load() != 2 {
		t.Errorf("expected 2 real calls for distinct keys, got %d", inner.calls.Load())
	}
}

func TestIdempotentExecutor_DoesNotCacheFailures(t *testing.T) {
	inner := &fakeExecutor{result: &ExecResult{
		FailureClass: domain.FailureTransient,
		Error:        "timeout",
	}}
	idem := NewIdempotentExecutor(inner)

	task := newTestTask(domain.TaskClassLLM, "llm.call")
	if _, err := idem.Execute(context.Background(), task); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Отказ не кешируется: та же доставка выполняется заново.
	inner.result = nil
	res, err := idem.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("retry execute: %v", err)
	}

	if res.Failed() {
		t.Errorf("expected success on retry, got %q", res.Error)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("expected 2 real calls, got %d", inner.calls.Load())
	}
}

func TestTransformExecutor_PassThrough(t *testing.T) {
	task := newTestTask(domain.TaskClassCPU, "transform")
	task.Payload = map[string]any{"artifact": "app.tar.gz"}

	res, err := (&TransformExecutor{}).Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if res.Failed() {
		t.Fatalf("unexpected failure: %q", res.Error)
	}
	if res.Outputs["artifact"] != "app.tar.gz" {
		t.Errorf("expected payload pass-through, got %v", res.Outputs)
	}
}
