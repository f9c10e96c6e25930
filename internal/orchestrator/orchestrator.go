package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/breaker"
	"github.com/mkoresh/forgeline/internal/canary"
	"github.com/mkoresh/forgeline/internal/chaos"
	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/events"
	"github.com/mkoresh/forgeline/internal/pool"
	"github.com/mkoresh/forgeline/internal/repo"
	"github.com/mkoresh/forgeline/internal/sandbox"
	"github.com/mkoresh/forgeline/internal/sched"
)

// Default configuration values.
const (
	defaultRetryLimit   = 3
	defaultPatchLimit   = 2
	defaultRetryBackoff = 500 * time.Millisecond
	defaultMaxBackoff   = 30 * time.Second
)

// Orchestrator управляет выполнением runs.
type Orchestrator struct {
	store    repo.Store
	pool     *pool.Pool
	sched    *sched.Scheduler
	breakers *breaker.Registry
	sandbox  *sandbox.Sandbox

	// Опциональные подсистемы
	canary    *canary.Manager
	chaos     *chaos.Engine
	publisher *events.Publisher

	// Внешние коллабораторы фаз починки
	planner  Planner
	patcher  Patcher
	inverter Inverter

	// Configuration
	retryLimit   int
	patchLimit   int
	retryBackoff time.Duration
	maxBackoff   time.Duration

	// Active runs — runs в процессе выполнения (runID → state)
	activeRuns map[uuid.UUID]*runState
	mu         sync.RWMutex

	// Lifecycle
	runCtx     context.Context
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// runState — состояние одного активного run.
//
// run мутируется только его control loop'ом; mu защищает чтения
// снапшотов из API-горутин.
type runState struct {
	mu       sync.Mutex
	run      *domain.Run
	canceled atomic.Bool
}

// snapshot возвращает копию run для чтения вне control loop.
func (st *runState) snapshot() domain.Run {
	st.mu.Lock()
	defer st.mu.Unlock()

	run := *st.run
	run.Plan = append([]domain.StepDef(nil), st.run.Plan...)
	return run
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — персистентность runs и repair trail (обязательно).
	Store repo.Store

	// Pool — worker pool (обязательно).
	Pool *pool.Pool

	// Scheduler — планировщик очереди и тира (обязательно).
	Scheduler *sched.Scheduler

	// Breakers — реестр circuit breaker'ов (обязательно).
	Breakers *breaker.Registry

	// Sandbox — песочница правок patch (обязательно).
	Sandbox *sandbox.Sandbox

	// Canary — менеджер canary (опционально).
	Canary *canary.Manager

	// Chaos — движок инъекции отказов (опционально).
	Chaos *chaos.Engine

	// Publisher — audit sink (опционально, nil = log-only).
	Publisher *events.Publisher

	// Planner, Patcher, Inverter — внешние коллабораторы фаз починки
	// (все опциональны; отсутствие означает пропуск фазы).
	Planner  Planner
	Patcher  Patcher
	Inverter Inverter

	// RetryLimit — слоты retry на один шаг (default: 3).
	RetryLimit int

	// PatchLimit — правки patch на один шаг (default: 2).
	PatchLimit int

	// RetryBackoff — базовый backoff retry, растёт экспоненциально
	// (default: 500ms).
	RetryBackoff time.Duration

	// MaxBackoff — потолок backoff (default: 30s).
	MaxBackoff time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	retryLimit := cfg.RetryLimit
	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}

	patchLimit := cfg.PatchLimit
	if patchLimit <= 0 {
		patchLimit = defaultPatchLimit
	}

	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		store:        cfg.Store,
		pool:         cfg.Pool,
		sched:        cfg.Scheduler,
		breakers:     cfg.Breakers,
		sandbox:      cfg.Sandbox,
		canary:       cfg.Canary,
		chaos:        cfg.Chaos,
		publisher:    cfg.Publisher,
		planner:      cfg.Planner,
		patcher:      cfg.Patcher,
		inverter:     cfg.Inverter,
		retryLimit:   retryLimit,
		patchLimit:   patchLimit,
		retryBackoff: retryBackoff,
		maxBackoff:   maxBackoff,
		activeRuns:   make(map[uuid.UUID]*runState),
		logger:       logger,
	}
}

// Start запускает Orchestrator и восстанавливает незавершённые runs
// из Store.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.runCtx = ctx
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"retry_limit", o.retryLimit,
		"patch_limit", o.patchLimit,
	)

	if err := o.restore(ctx); err != nil {
		return err
	}

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator и дожидается control loops.
// Незавершённые runs остаются в Store и восстанавливаются
// при следующем старте.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Submit создаёт run по плану и запускает его control loop.
func (o *Orchestrator) Submit(ctx context.Context, plan []domain.StepDef, budget domain.Budget, slo domain.SLOTier) (*domain.Run, error) {
	if o.IsStopped() {
		return nil, ErrOrchestratorStopped
	}
	if len(plan) == 0 {
		return nil, ErrEmptyPlan
	}

	run := domain.NewRun(plan, budget, slo)
	if o.canary != nil {
		run.Variant = o.canary.AssignVariant(run.ID)
	}

	if err := o.store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	o.logger.Info("run submitted",
		"run_id", run.ID,
		"steps", len(run.Plan),
		"slo", run.SLO,
		"variant", run.Variant,
	)

	if err := o.launch(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Cancel запрашивает отмену run.
//
// Отмена кооперативная: control loop выполняет rollback на ближайшей
// точке приостановки. Уже leased task не прерывается — его лиза
// истечёт или результат будет отброшен.
func (o *Orchestrator) Cancel(runID uuid.UUID) error {
	o.mu.RLock()
	st, active := o.activeRuns[runID]
	o.mu.RUnlock()

	if !active {
		run, err := o.store.GetRun(context.Background(), runID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrRunNotFound
			}
			return err
		}
		if run.IsFinished() {
			return ErrRunFinished
		}
		return ErrRunNotFound
	}

	st.canceled.Store(true)
	o.pool.Abandon(runID, "run canceled")

	o.logger.Info("run cancel requested", "run_id", runID)
	return nil
}

// GetRun возвращает состояние run: активный снапшот или запись Store.
func (o *Orchestrator) GetRun(ctx context.Context, runID uuid.UUID) (*domain.Run, error) {
	o.mu.RLock()
	st, active := o.activeRuns[runID]
	o.mu.RUnlock()

	if active {
		run := st.snapshot()
		return &run, nil
	}

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns возвращает последние runs.
func (o *Orchestrator) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return o.store.ListRuns(ctx, limit)
}

// Timeline возвращает repair trail run'а в хронологическом порядке.
func (o *Orchestrator) Timeline(ctx context.Context, runID uuid.UUID) ([]domain.RepairAttempt, error) {
	if _, err := o.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return o.store.ListRepairAttempts(ctx, runID)
}

// ActiveRunsCount возвращает число активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// launch регистрирует run как активный и запускает control loop.
func (o *Orchestrator) launch(run *domain.Run) error {
	st := &runState{run: run}

	o.mu.Lock()
	if _, exists := o.activeRuns[run.ID]; exists {
		o.mu.Unlock()
		return ErrRunAlreadyActive
	}
	o.activeRuns[run.ID] = st
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runLoop(o.runCtx, st)
	}()
	return nil
}

// restore перезапускает незавершённые runs из Store.
func (o *Orchestrator) restore(ctx context.Context) error {
	runs, err := o.store.ListUnfinishedRuns(ctx)
	if err != nil {
		return err
	}

	for i := range runs {
		run := runs[i]
		if err := o.launch(&run); err != nil {
			o.logger.Error("failed to restore run", "run_id", run.ID, "error", err)
			continue
		}
		o.logger.Info("run restored",
			"run_id", run.ID,
			"status", run.Status,
			"cursor", run.Cursor,
		)
	}
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}
