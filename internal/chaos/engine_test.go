package chaos

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

func chaosTask(class domain.TaskClass) *domain.Task {
	return domain.NewTask(uuid.New(), domain.StepDef{ID: "s1", Class: class}, 1)
}

func TestIntercept_Disabled(t *testing.T) {
	e, err := New(Config{Enabled: false, Faults: []domain.ChaosFaultType{domain.ChaosFaultTransient}, Probability: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, injected := e.Intercept(chaosTask(domain.TaskClassCPU)); injected {
		t.Error("disabled engine must not inject")
	}
}

func TestIntercept_ProbabilityOne(t *testing.T) {
	e, err := New(Config{
		Enabled:     true,
		Faults:      []domain.ChaosFaultType{domain.ChaosFaultTransient},
		Probability: 1,
		Seed:        42,
	})
	if err != nil {
		t.Fatal(err)
	}

	fault, injected := e.Intercept(chaosTask(domain.TaskClassCPU))
	if !injected {
		t.Fatal("probability 1 must inject")
	}
	if fault != domain.ChaosFaultTransient {
		t.Errorf("unexpected fault type %s", fault)
	}

	s := e.Summary()
	if s.Injected != 1 || s.Active != 1 {
		t.Errorf("summary = %+v, want 1 injected, 1 active", s)
	}
}

func TestIntercept_TargetClasses(t *testing.T) {
	e, err := New(Config{
		Enabled:       true,
		Faults:        []domain.ChaosFaultType{domain.ChaosFaultTransient},
		Probability:   1,
		TargetClasses: []domain.TaskClass{domain.TaskClassLLM},
		Seed:          42,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, injected := e.Intercept(chaosTask(domain.TaskClassCPU)); injected {
		t.Error("untargeted class must not be injected")
	}
	if _, injected := e.Intercept(chaosTask(domain.TaskClassLLM)); !injected {
		t.Error("targeted class must be injected")
	}
}

func TestResolveRun_Recovered(t *testing.T) {
	e, err := New(Config{
		Enabled:     true,
		Faults:      []domain.ChaosFaultType{domain.ChaosFaultTransient},
		Probability: 1,
		Seed:        42,
	})
	if err != nil {
		t.Fatal(err)
	}

	task := chaosTask(domain.TaskClassCPU)
	if _, injected := e.Intercept(task); !injected {
		t.Fatal("expected injection")
	}

	e.ResolveRun(task.RunID, true)

	s := e.Summary()
	if s.Recovered != 1 {
		t.Errorf("expected 1 recovered, got %d", s.Recovered)
	}
	for _, event := range s.Events {
		if event.RunID == task.RunID && !event.Recovered {
			t.Error("event should be marked recovered")
		}
	}
}

func TestResolveRun_FailedRunNotRecovered(t *testing.T) {
	e, err := New(Config{
		Enabled:     true,
		Faults:      []domain.ChaosFaultType{domain.ChaosFaultTransient},
		Probability: 1,
		Seed:        42,
	})
	if err != nil {
		t.Fatal(err)
	}

	task := chaosTask(domain.TaskClassCPU)
	e.Intercept(task)
	e.ResolveRun(task.RunID, false)

	if s := e.Summary(); s.Recovered != 0 {
		t.Errorf("failed run must not count as recovered, got %d", s.Recovered)
	}
}

func TestSweep_RemovesExpired(t *testing.T) {
	e, err := New(Config{
		Enabled:        true,
		Faults:         []domain.ChaosFaultType{domain.ChaosFaultTransient},
		Probability:    1,
		RecoveryWindow: time.Millisecond,
		Seed:           42,
	})
	if err != nil {
		t.Fatal(err)
	}

	e.Intercept(chaosTask(domain.TaskClassCPU))

	if removed := e.Sweep(time.Now().Add(time.Second)); removed != 1 {
		t.Errorf("expected 1 expired event removed, got %d", removed)
	}
	if s := e.Summary(); s.Active != 0 || s.Expired != 1 {
		t.Errorf("summary after sweep = %+v", s)
	}
}

func TestWindow_Cron(t *testing.T) {
	w, err := NewWindow("0 3 * * *", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if w.Open(day.Add(2 * time.Hour)) {
		t.Error("window should be closed at 02:00")
	}
	if !w.Open(day.Add(3*time.Hour + 30*time.Minute)) {
		t.Error("window should be open at 03:30")
	}
	if w.Open(day.Add(5 * time.Hour)) {
		t.Error("window should be closed again at 05:00")
	}
}

func TestWindow_EmptyAlwaysOpen(t *testing.T) {
	w, err := NewWindow("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Open(time.Now()) {
		t.Error("empty schedule means always-open window")
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("not a cron"); err == nil {
		t.Error("invalid expression accepted")
	}
}
