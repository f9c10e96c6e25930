package canary

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
)

func TestAssignVariant_Deterministic(t *testing.T) {
	m := New(Config{CanaryPercent: 50})

	for i := 0; i < 20; i++ {
		runID := uuid.New()
		first := m.AssignVariant(runID)
		for j := 0; j < 5; j++ {
			if got := m.AssignVariant(runID); got != first {
				t.Fatalf("assignment must be reproducible: got %s then %s", first, got)
			}
		}
	}
}

func TestAssignVariant_PercentBounds(t *testing.T) {
	all := New(Config{CanaryPercent: 100})
	none := New(Config{CanaryPercent: -1})

	for i := 0; i < 50; i++ {
		runID := uuid.New()
		if got := all.AssignVariant(runID); got != domain.VariantCanary {
			t.Fatalf("100%% must always assign canary, got %s", got)
		}
		if got := none.AssignVariant(runID); got != domain.VariantBaseline {
			t.Fatalf("0%% must always assign baseline, got %s", got)
		}
	}
}

func record(m *Manager, variant domain.CanaryVariant, success bool, cost float64, latency time.Duration) {
	m.Record(domain.CanarySample{
		RunID:   uuid.New(),
		Variant: variant,
		Success: success,
		Cost:    cost,
		Latency: latency,
	})
}

func TestEvaluate_Promote(t *testing.T) {
	m := New(Config{CanaryPercent: 50, MinSamples: 3})

	for i := 0; i < 5; i++ {
		record(m, domain.VariantBaseline, true, 1.0, time.Second)
		record(m, domain.VariantCanary, true, 1.0, time.Second)
	}

	cmp := m.Evaluate(time.Hour)
	if cmp.Recommendation != domain.RecommendPromote {
		t.Errorf("expected promote, got %s (%s)", cmp.Recommendation, cmp.Reason)
	}
}

func TestEvaluate_RollbackOnSuccessRegression(t *testing.T) {
	m := New(Config{CanaryPercent: 50, MinSamples: 3, SuccessTolerance: 0.05})

	for i := 0; i < 10; i++ {
		record(m, domain.VariantBaseline, true, 1.0, time.Second)
		record(m, domain.VariantCanary, i%2 == 0, 1.0, time.Second)
	}

	cmp := m.Evaluate(time.Hour)
	if cmp.Recommendation != domain.RecommendRollback {
		t.Errorf("expected rollback, got %s", cmp.Recommendation)
	}
}

func TestEvaluate_RollbackOnCostRegression(t *testing.T) {
	m := New(Config{CanaryPercent: 50, MinSamples: 3, RegressionTolerance: 1.5})

	for i := 0; i < 5; i++ {
		record(m, domain.VariantBaseline, true, 1.0, time.Second)
		record(m, domain.VariantCanary, true, 2.0, time.Second)
	}

	cmp := m.Evaluate(time.Hour)
	if cmp.Recommendation != domain.RecommendRollback {
		t.Errorf("expected rollback on cost regression, got %s", cmp.Recommendation)
	}
	if cmp.Reason != "canary cost regressed" {
		t.Errorf("unexpected reason %q", cmp.Reason)
	}
}

func TestEvaluate_InsufficientData(t *testing.T) {
	m := New(Config{CanaryPercent: 50, MinSamples: 5})

	record(m, domain.VariantBaseline, true, 1.0, time.Second)
	record(m, domain.VariantCanary, true, 1.0, time.Second)

	cmp := m.Evaluate(time.Hour)
	if cmp.Recommendation != domain.RecommendInsufficient {
		t.Errorf("expected insufficient_data, got %s", cmp.Recommendation)
	}
}

func TestEvaluate_WindowFiltersOldSamples(t *testing.T) {
	m := New(Config{CanaryPercent: 50, MinSamples: 1})

	m.Record(domain.CanarySample{
		RunID:      uuid.New(),
		Variant:    domain.VariantCanary,
		Success:    true,
		RecordedAt: time.Now().Add(-2 * time.Hour),
	})

	cmp := m.Evaluate(time.Hour)
	if cmp.Canary.Samples != 0 {
		t.Errorf("sample outside window must be ignored, got %d", cmp.Canary.Samples)
	}
}
