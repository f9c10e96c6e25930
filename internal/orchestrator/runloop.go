package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/pool"
	"github.com/mkoresh/forgeline/internal/sched"
	"github.com/mkoresh/forgeline/internal/telemetry"
)

// stepVerdict — итог обработки одного шага (включая починку).
type stepVerdict int

const (
	// verdictAdvance — шаг выполнен, курсор двигается дальше.
	verdictAdvance stepVerdict = iota

	// verdictReplanned — план заменён, курсор остаётся на месте.
	verdictReplanned

	// verdictRollback — шаг невосстановим, run откатывается.
	verdictRollback

	// verdictFail — фатальный отказ без отката (нарушение песочницы).
	verdictFail

	// verdictShutdown — процесс останавливается, run замирает
	// до восстановления из Store.
	verdictShutdown
)

// runLoop — control loop одного run: шаги по порядку, починка,
// финализация.
func (o *Orchestrator) runLoop(ctx context.Context, st *runState) {
	run := st.run
	logger := o.logger.With("run_id", run.ID)

	st.mu.Lock()
	run.MarkRunning()
	st.mu.Unlock()
	o.persistRun(ctx, st)
	o.publishRunStatus(ctx, st)

	logger.Info("run started",
		"steps", len(run.Plan),
		"cursor", run.Cursor,
		"slo", run.SLO,
	)

loop:
	for {
		if ctx.Err() != nil {
			// Останов процесса: run остаётся нетерминальным в Store
			// и восстановится при следующем старте.
			o.removeActiveRun(run.ID)
			return
		}
		if st.canceled.Load() {
			o.rollback(ctx, st, "run canceled")
			break
		}

		st.mu.Lock()
		if run.StartedAt != nil {
			run.Budget.Observe(time.Since(*run.StartedAt))
		}
		breached := run.Budget.Exceeded()
		step := run.CurrentStep()
		st.mu.Unlock()

		if breached != domain.BudgetReasonNone {
			o.rollback(ctx, st, "budget exceeded: "+string(breached))
			break
		}
		if step == nil {
			st.mu.Lock()
			run.MarkCompleted()
			st.mu.Unlock()
			break
		}

		verdict, detail := o.executeStep(ctx, st, step)
		switch verdict {
		case verdictAdvance:
			st.mu.Lock()
			run.Advance()
			st.mu.Unlock()
			o.persistRun(ctx, st)

		case verdictReplanned:
			o.persistRun(ctx, st)

		case verdictRollback:
			o.rollback(ctx, st, detail)
			break loop

		case verdictFail:
			st.mu.Lock()
			run.MarkFailed(detail)
			st.mu.Unlock()
			break loop

		case verdictShutdown:
			o.removeActiveRun(run.ID)
			return
		}
	}

	o.finishRun(ctx, st)
}

// executeStep выполняет один шаг плана, включая всю лестницу починки.
// Возвращается только с терминальным для шага вердиктом.
func (o *Orchestrator) executeStep(ctx context.Context, st *runState, step *domain.StepDef) (stepVerdict, string) {
	run := st.run
	logger := o.logger.With("run_id", run.ID, "step_id", step.ID)

	retriesUsed := 0
	patchesUsed := 0
	attempt := 0

	for {
		if st.canceled.Load() {
			return verdictRollback, "run canceled"
		}

		attempt++
		st.mu.Lock()
		task := domain.NewTask(run.ID, *step, attempt)
		decision, err := o.sched.Select(task, run.Budget, run.SLO)
		st.mu.Unlock()

		if err != nil {
			if errors.Is(err, sched.ErrBudgetExceeded) {
				return verdictRollback, err.Error()
			}
			// ErrNoTier: выполнять нечем, восстановить нельзя.
			return verdictRollback, err.Error()
		}
		task.Class = decision.QueueClass
		task.ModelTier = decision.ModelTier

		if err := o.pool.Submit(task); err != nil {
			if errors.Is(err, pool.ErrQueueFull) {
				// Backpressure: ждём место в очереди, попытка не расходуется.
				attempt--
				if !o.sleep(ctx, o.retryBackoff) {
					return verdictShutdown, ""
				}
				continue
			}
			return verdictRollback, fmt.Sprintf("submit step %s: %v", step.ID, err)
		}

		done, err := o.pool.Await(ctx, task.ID)
		if err != nil {
			return verdictShutdown, ""
		}

		// CIRCUIT_OPEN и ABANDONED — отказы без выполнения: бюджет не тратился,
		// и статистика исходов по тиру по ним не собирается.
		executed := done.Status != domain.TaskStatusAbandoned &&
			done.FailureClass != domain.FailureCircuitOpen
		if executed {
			st.mu.Lock()
			run.Budget.Charge(decision.EstimatedCost)
			st.mu.Unlock()
			o.sched.RecordOutcome(task.Type, decision.ModelTier, done.Status == domain.TaskStatusSucceeded)
		}
		o.saveTask(ctx, done)

		switch done.Status {
		case domain.TaskStatusSucceeded:
			st.mu.Lock()
			repaired := run.Status == domain.RunStatusRepairing
			if repaired {
				run.MarkRunning()
			}
			st.mu.Unlock()
			if repaired {
				o.persistRun(ctx, st)
				o.publishRunStatus(ctx, st)
			}
			return verdictAdvance, ""

		case domain.TaskStatusAbandoned:
			return verdictRollback, "run canceled"
		}

		// Отказ: входим в починку.
		class := done.FailureClass
		detail := done.Error
		logger.Warn("step failed",
			"attempt", attempt,
			"failure_class", class,
			"error", detail,
		)

		st.mu.Lock()
		if run.Status != domain.RunStatusRepairing {
			run.MarkRepairing()
			st.mu.Unlock()
			o.persistRun(ctx, st)
			o.publishRunStatus(ctx, st)
		} else {
			st.mu.Unlock()
		}

		// Фатальные классы решаются до лестницы.
		st.mu.Lock()
		breached := run.Budget.Exceeded()
		st.mu.Unlock()
		if class == domain.FailureBudgetExceeded || breached != domain.BudgetReasonNone {
			return verdictRollback, "budget exceeded"
		}
		if class == domain.FailureSandboxViolation {
			return verdictFail, "sandbox violation: " + detail
		}

		// Фаза retry.
		if class == domain.FailureCircuitOpen {
			// Отказ без выполнения: слот retry не расходуется.
			o.recordRepair(ctx, st, step.ID, domain.PhaseRetry, retriesUsed+1,
				domain.RepairOutcomeSkipped, "circuit open, retry slot not consumed")
			if !o.sleep(ctx, o.backoff(retriesUsed+1)) {
				return verdictShutdown, ""
			}
			continue
		}
		if class == domain.FailureTransient {
			if o.breakers.Get(class).State() == domain.BreakerOpen {
				o.recordRepair(ctx, st, step.ID, domain.PhaseRetry, retriesUsed+1,
					domain.RepairOutcomeSkipped, "breaker open, escalating")
			} else if retriesUsed < o.retryLimit {
				retriesUsed++
				o.recordRepair(ctx, st, step.ID, domain.PhaseRetry, retriesUsed,
					domain.RepairOutcomeFailed, detail)
				if !o.sleep(ctx, o.backoff(retriesUsed)) {
					return verdictShutdown, ""
				}
				continue
			} else {
				o.recordRepair(ctx, st, step.ID, domain.PhaseRetry, retriesUsed,
					domain.RepairOutcomeExhausted, "retry limit reached")
			}
		}

		// Фаза patch.
		if class == domain.FailureTransient || class == domain.FailureCorrectable {
			verdict, handled := o.tryPatch(ctx, st, step, done, &patchesUsed)
			if handled {
				if verdict == verdictAdvance {
					// Правка применена — новая попытка с исправленным payload.
					continue
				}
				return verdict, "sandbox violation: patch outside write scope"
			}
		}

		// Фаза replan.
		if o.tryReplan(ctx, st, step, detail) {
			return verdictReplanned, ""
		}

		// Фаза rollback.
		return verdictRollback, fmt.Sprintf("step %s unrecoverable (%s): %s", step.ID, class, detail)
	}
}

// tryPatch — одна попытка фазы patch.
//
// handled=true означает, что правка применена (verdictAdvance —
// повторить шаг) либо нарушила песочницу (verdictFail). handled=false
// эскалирует к следующей фазе.
func (o *Orchestrator) tryPatch(ctx context.Context, st *runState, step *domain.StepDef, failed *domain.Task, patchesUsed *int) (stepVerdict, bool) {
	if o.patcher == nil {
		o.recordRepair(ctx, st, step.ID, domain.PhasePatch, *patchesUsed+1,
			domain.RepairOutcomeSkipped, "no patcher configured")
		return 0, false
	}
	if *patchesUsed >= o.patchLimit {
		o.recordRepair(ctx, st, step.ID, domain.PhasePatch, *patchesUsed,
			domain.RepairOutcomeExhausted, "patch limit reached")
		return 0, false
	}

	patched, err := o.patcher.ProposePatch(ctx, st.snapshot(), *step, failed)
	if err != nil {
		o.recordRepair(ctx, st, step.ID, domain.PhasePatch, *patchesUsed+1,
			domain.RepairOutcomeFailed, err.Error())
		return 0, false
	}

	if err := o.sandbox.ValidatePatch(step.Payload, patched); err != nil {
		// Нарушение песочницы фатально: run падает без отката.
		o.recordRepair(ctx, st, step.ID, domain.PhasePatch, *patchesUsed+1,
			domain.RepairOutcomeFailed, err.Error())
		return verdictFail, true
	}

	*patchesUsed++
	st.mu.Lock()
	step.Payload = patched
	st.mu.Unlock()
	o.recordRepair(ctx, st, step.ID, domain.PhasePatch, *patchesUsed,
		domain.RepairOutcomeSucceeded, "payload patched")
	return verdictAdvance, true
}

// tryReplan — фаза replan: не более одного на run.
func (o *Orchestrator) tryReplan(ctx context.Context, st *runState, step *domain.StepDef, reason string) bool {
	st.mu.Lock()
	replanned := st.run.Replanned
	st.mu.Unlock()

	if replanned {
		o.recordRepair(ctx, st, step.ID, domain.PhaseReplan, 1,
			domain.RepairOutcomeSkipped, "replan already used")
		return false
	}
	if o.planner == nil {
		o.recordRepair(ctx, st, step.ID, domain.PhaseReplan, 1,
			domain.RepairOutcomeSkipped, "no planner configured")
		return false
	}

	subplan, err := o.planner.Replan(ctx, st.snapshot(), *step, reason)
	if err != nil {
		o.recordRepair(ctx, st, step.ID, domain.PhaseReplan, 1,
			domain.RepairOutcomeFailed, err.Error())
		return false
	}
	if len(subplan) == 0 {
		o.recordRepair(ctx, st, step.ID, domain.PhaseReplan, 1,
			domain.RepairOutcomeFailed, "planner returned empty subplan")
		return false
	}

	st.mu.Lock()
	st.run.SplicePlan(subplan)
	st.mu.Unlock()
	o.recordRepair(ctx, st, step.ID, domain.PhaseReplan, 1,
		domain.RepairOutcomeSucceeded, fmt.Sprintf("plan spliced, %d replacement steps", len(subplan)))
	return true
}

// rollback выполняет обратные операции завершённых шагов
// в обратном порядке и переводит run в ROLLED_BACK.
func (o *Orchestrator) rollback(ctx context.Context, st *runState, reason string) {
	run := st.run
	logger := o.logger.With("run_id", run.ID)
	logger.Warn("rolling back run", "reason", reason)

	o.pool.Abandon(run.ID, "run rolled back")

	st.mu.Lock()
	completed := append([]domain.StepDef(nil), run.CompletedSteps()...)
	st.mu.Unlock()

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if !step.Undoable {
			continue
		}
		if o.inverter == nil {
			o.recordRepair(ctx, st, step.ID, domain.PhaseRollback, 1,
				domain.RepairOutcomeSkipped, "no inverter configured")
			continue
		}
		if err := o.inverter.Undo(ctx, st.snapshot(), step); err != nil {
			// Откат продолжается: частичный rollback лучше, чем никакой.
			o.recordRepair(ctx, st, step.ID, domain.PhaseRollback, 1,
				domain.RepairOutcomeFailed, err.Error())
			continue
		}
		o.recordRepair(ctx, st, step.ID, domain.PhaseRollback, 1,
			domain.RepairOutcomeSucceeded, "step undone")
	}

	st.mu.Lock()
	run.MarkRolledBack(reason)
	st.mu.Unlock()
}

// finishRun финализирует терминальный run.
func (o *Orchestrator) finishRun(ctx context.Context, st *runState) {
	run := st.run

	o.persistRun(ctx, st)
	o.publishRunStatus(ctx, st)

	completed := run.Status == domain.RunStatusCompleted
	telemetry.RunsFinished.WithLabelValues(string(run.Status)).Inc()

	if o.chaos != nil {
		o.chaos.ResolveRun(run.ID, completed)
	}
	if o.canary != nil {
		o.canary.Record(domain.CanarySample{
			RunID:      run.ID,
			Variant:    run.Variant,
			Success:    completed,
			Cost:       run.Budget.SpentCost,
			Latency:    run.Duration(),
			RecordedAt: time.Now(),
		})
	}

	o.removeActiveRun(run.ID)

	o.logger.Info("run finished",
		"run_id", run.ID,
		"status", run.Status,
		"spent_cost", run.Budget.SpentCost,
		"attempts", run.Budget.AttemptsUsed,
		"duration", run.Duration(),
		"error", run.Error,
	)
}

// recordRepair добавляет запись в repair trail и публикует её.
func (o *Orchestrator) recordRepair(ctx context.Context, st *runState, stepID string, phase domain.RepairPhase, attempt int, outcome domain.RepairOutcome, detail string) {
	record := domain.RepairAttempt{
		RunID:     st.run.ID,
		StepID:    stepID,
		Phase:     phase,
		Attempt:   attempt,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now(),
	}

	if err := o.store.AppendRepairAttempt(ctx, record); err != nil {
		o.logger.Error("failed to append repair attempt", "run_id", st.run.ID, "error", err)
	}
	if err := o.publisher.PublishRepairAttempt(ctx, record); err != nil {
		o.logger.Error("failed to publish repair attempt", "run_id", st.run.ID, "error", err)
	}

	telemetry.RepairAttempts.WithLabelValues(string(phase), string(outcome)).Inc()

	o.logger.Info("repair attempt",
		"run_id", st.run.ID,
		"step_id", stepID,
		"phase", phase,
		"attempt", attempt,
		"outcome", outcome,
		"detail", detail,
	)
}

// persistRun пишет текущее состояние run в Store.
func (o *Orchestrator) persistRun(ctx context.Context, st *runState) {
	run := st.snapshot()
	if err := o.store.SaveRun(ctx, &run); err != nil {
		o.logger.Error("failed to persist run", "run_id", run.ID, "error", err)
	}
}

// publishRunStatus публикует смену статуса run в audit sink.
func (o *Orchestrator) publishRunStatus(ctx context.Context, st *runState) {
	run := st.snapshot()
	if err := o.publisher.PublishRunStatus(ctx, &run); err != nil {
		o.logger.Error("failed to publish run status", "run_id", run.ID, "error", err)
	}
}

// saveTask пишет терминальный task в Store.
func (o *Orchestrator) saveTask(ctx context.Context, task *domain.Task) {
	if err := o.store.SaveTask(ctx, task); err != nil {
		o.logger.Error("failed to save task", "task_id", task.ID, "error", err)
	}
}

// backoff возвращает экспоненциальную задержку попытки n (с 1).
func (o *Orchestrator) backoff(n int) time.Duration {
	d := o.retryBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= o.maxBackoff {
			return o.maxBackoff
		}
	}
	if d > o.maxBackoff {
		return o.maxBackoff
	}
	return d
}

// sleep ждёт d или отмены контекста. Возвращает false при отмене.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
