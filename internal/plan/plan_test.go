package plan

import (
	"errors"
	"testing"
	"time"

	"github.com/mkoresh/forgeline/internal/domain"
)

func TestValidate_EmptyPlan(t *testing.T) {
	tests := []struct {
		name  string
		steps []domain.StepDef
	}{
		{name: "nil steps", steps: nil},
		{name: "empty steps", steps: []domain.StepDef{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.steps)
			if !errors.Is(err, ErrEmptyPlan) {
				t.Errorf("expected ErrEmptyPlan, got %v", err)
			}
		})
	}
}

func TestValidate_EmptyStepID(t *testing.T) {
	steps := []domain.StepDef{
		{ID: "", Class: domain.TaskClassLLM},
	}

	err := Validate(steps)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if !errors.Is(vErr.Err, ErrEmptyStepID) {
		t.Errorf("expected ErrEmptyStepID, got %v", vErr.Err)
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	steps := []domain.StepDef{
		{ID: "build", Class: domain.TaskClassLLM},
		{ID: "build", Class: domain.TaskClassCPU},
	}

	err := Validate(steps)
	if !errors.Is(err, ErrDuplicateStepID) {
		t.Errorf("expected ErrDuplicateStepID, got %v", err)
	}
}

func TestValidate_UnknownClass(t *testing.T) {
	steps := []domain.StepDef{
		{ID: "build", Class: "GPU"},
	}

	err := Validate(steps)
	if !errors.Is(err, ErrUnknownClass) {
		t.Errorf("expected ErrUnknownClass, got %v", err)
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if vErr.StepID != "build" {
		t.Errorf("expected step ID build, got %q", vErr.StepID)
	}
	if vErr.Field != "class" {
		t.Errorf("expected field class, got %q", vErr.Field)
	}
}

func TestValidate_ValidPlan(t *testing.T) {
	steps := []domain.StepDef{
		{ID: "generate", Class: domain.TaskClassLLM, Type: "llm.call"},
		{ID: "compile", Class: domain.TaskClassCPU, Type: "transform"},
		{ID: "test", Class: domain.TaskClassIO, Type: "http", Undoable: true},
	}

	if err := Validate(steps); err != nil {
		t.Errorf("expected valid plan, got %v", err)
	}
}

func TestValidateSLO(t *testing.T) {
	for _, slo := range []domain.SLOTier{"", domain.SLOFast, domain.SLONormal, domain.SLOThorough} {
		if err := ValidateSLO(slo); err != nil {
			t.Errorf("SLO %q: expected valid, got %v", slo, err)
		}
	}

	if err := ValidateSLO("instant"); !errors.Is(err, ErrUnknownSLO) {
		t.Errorf("expected ErrUnknownSLO, got %v", err)
	}
}

func TestValidateBudget(t *testing.T) {
	valid := domain.Budget{MaxCost: 1.5, MaxAttempts: 10, MaxTime: time.Minute}
	if err := ValidateBudget(valid); err != nil {
		t.Errorf("expected valid budget, got %v", err)
	}

	// Нулевые лимиты означают отсутствие ограничения
	if err := ValidateBudget(domain.Budget{}); err != nil {
		t.Errorf("expected zero budget to be valid, got %v", err)
	}

	negative := domain.Budget{MaxCost: -1}
	if err := ValidateBudget(negative); !errors.Is(err, ErrNegativeBudget) {
		t.Errorf("expected ErrNegativeBudget, got %v", err)
	}
}
