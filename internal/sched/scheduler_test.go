package sched

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

func testTask(attempt int) *domain.Task {
	step := domain.StepDef{ID: "gen", Class: domain.TaskClassLLM, Type: "llm.call"}
	return domain.NewTask(uuid.New(), step, attempt)
}

func TestSelect_SLOMapping(t *testing.T) {
	s := New(Config{})

	tests := []struct {
		name      string
		slo       domain.SLOTier
		wantClass domain.TaskClass
		wantTier  string
	}{
		{"fast goes to high queue with cheapest tier", domain.SLOFast, domain.TaskClassHigh, "small"},
		{"normal keeps task class", domain.SLONormal, domain.TaskClassLLM, "small"},
		{"thorough goes to low queue with best tier", domain.SLOThorough, domain.TaskClassLow, "large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := s.Select(testTask(1), domain.Budget{}, tt.slo)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if d.QueueClass != tt.wantClass {
				t.Errorf("queue class = %s, want %s", d.QueueClass, tt.wantClass)
			}
			if d.ModelTier != tt.wantTier {
				t.Errorf("model tier = %s, want %s", d.ModelTier, tt.wantTier)
			}
		})
	}
}

func TestSelect_BudgetExceeded(t *testing.T) {
	s := New(Config{Tiers: []ModelTier{{Name: "small", CostPerCall: 2.0}}})

	budget := domain.Budget{MaxCost: 10, SpentCost: 9}
	_, err := s.Select(testTask(1), budget, domain.SLONormal)
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}

	// Ровно на границе — проходит.
	budget = domain.Budget{MaxCost: 10, SpentCost: 8}
	if _, err := s.Select(testTask(1), budget, domain.SLONormal); err != nil {
		t.Errorf("exact fit should pass: %v", err)
	}
}

func TestSelect_SkipsTierBelowThreshold(t *testing.T) {
	s := New(Config{SuccessThreshold: 0.8})

	// Роняем историю small ниже порога.
	for i := 0; i < 30; i++ {
		s.RecordOutcome("llm.call", "small", false)
	}

	d, err := s.Select(testTask(1), domain.Budget{}, domain.SLONormal)
	if err != nil {
		t.Fatal(err)
	}
	if d.ModelTier == "small" {
		t.Error("tier below success threshold must be skipped")
	}
}

func TestSelect_EscalatesOnRetry(t *testing.T) {
	s := New(Config{})

	d, err := s.Select(testTask(2), domain.Budget{}, domain.SLONormal)
	if err != nil {
		t.Fatal(err)
	}
	if d.ModelTier != "medium" {
		t.Errorf("second attempt should escalate to medium, got %s", d.ModelTier)
	}

	// Эскалация ограничена верхним тиром.
	d, err = s.Select(testTask(10), domain.Budget{}, domain.SLONormal)
	if err != nil {
		t.Fatal(err)
	}
	if d.ModelTier != "large" {
		t.Errorf("escalation must be bounded by the top tier, got %s", d.ModelTier)
	}
}

func TestRecordOutcome_EWMA(t *testing.T) {
	s := New(Config{})

	if got := s.SuccessRate("llm.call", "small"); got != 1.0 {
		t.Fatalf("prior success rate should be optimistic, got %f", got)
	}

	s.RecordOutcome("llm.call", "small", false)
	after := s.SuccessRate("llm.call", "small")
	if after >= 1.0 {
		t.Errorf("failure must lower the rate, got %f", after)
	}

	s.RecordOutcome("llm.call", "small", true)
	if got := s.SuccessRate("llm.call", "small"); got <= after {
		t.Errorf("success must raise the rate, got %f", got)
	}
}
