package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoresh/forgeline/internal/breaker"
	"github.com/mkoresh/forgeline/internal/chaos"
	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/pool"
)

// Default configuration values.
const (
	defaultPollInterval      = 250 * time.Millisecond
	defaultHeartbeatInterval = 10 * time.Second
)

// Runner — цикл одного воркера.
//
// Берёт tasks из пула под лизу, продлевает лизу heartbeat'ом
// во время выполнения и репортит результат. Если Runner умирает
// молча, реапер пула возвращает его task в очередь по TTL лизы.
type Runner struct {
	id           string
	capabilities []domain.TaskClass

	pool     *pool.Pool
	breakers *breaker.Registry
	chaos    *chaos.Engine
	registry *Registry

	pollInterval      time.Duration
	heartbeatInterval time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Runner.
type Config struct {
	// ID — идентификатор воркера в пуле (обязательно).
	ID string

	// Capabilities — классы задач, которые воркер обслуживает
	// (пусто = все классы).
	Capabilities []domain.TaskClass

	// Pool — worker pool (обязательно).
	Pool *pool.Pool

	// Breakers — реестр circuit breaker'ов (обязательно).
	Breakers *breaker.Registry

	// Chaos — движок инъекции отказов (опционально, nil = выключен).
	Chaos *chaos.Engine

	// Registry — реестр executor'ов (опционально; если nil —
	// используется NewRegistry()).
	Registry *Registry

	// PollInterval — пауза между пустыми LeaseNext (default: 250ms).
	PollInterval time.Duration

	// HeartbeatInterval — период продления лизы (default: 10s).
	// Должен быть заметно меньше LeaseTTL пула.
	HeartbeatInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	heartbeatInterval := cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Runner{
		id:                cfg.ID,
		capabilities:      cfg.Capabilities,
		pool:              cfg.Pool,
		breakers:          cfg.Breakers,
		chaos:             cfg.Chaos,
		registry:          registry,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		logger:            logger.With("worker_id", cfg.ID),
	}
}

// Start регистрирует воркера в пуле и запускает цикл лиз.
func (r *Runner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.pool.Register(r.id, r.capabilities)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.leaseLoop(ctx)
	}()

	r.logger.Info("worker runner started", "capabilities", r.capabilities)
	return nil
}

// Stop останавливает Runner и дожидается завершения текущего task.
func (r *Runner) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()
	r.logger.Info("worker runner stopped")
}

// leaseLoop — основной цикл: лиза → выполнение → результат.
func (r *Runner) leaseLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := r.pool.LeaseNext(r.id)
		if err != nil {
			if !errors.Is(err, pool.ErrNoTask) && !errors.Is(err, pool.ErrPoolStopped) {
				r.logger.Error("lease failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollInterval):
			}
			continue
		}

		r.execute(ctx, task)
	}
}

// execute выполняет один task под лизой.
func (r *Runner) execute(ctx context.Context, task *domain.Task) {
	logger := r.logger.With(
		"task_id", task.ID,
		"run_id", task.RunID,
		"step_id", task.StepID,
		"attempt", task.Attempt,
	)

	// Перехват chaos-движка: синтетический отказ вместо выполнения.
	if fault, injected := r.chaos.Intercept(task); injected {
		if fault == domain.ChaosFaultWorkerDeath {
			// Молчим: лиза истечёт, реапер вернёт task в очередь.
			logger.Warn("simulating worker death, dropping task result")
			return
		}
		class := fault.FailureClass()
		r.breakers.RecordFailure(class)
		r.report(logger, r.pool.Fail(task.ID, class, "injected fault: "+string(fault)))
		return
	}

	executor, err := r.registry.Get(task.Type)
	if err != nil {
		r.report(logger, r.pool.Fail(task.ID, domain.FailureStructural, err.Error()))
		return
	}

	// Открытый breaker внешних вызовов — fast-fail без выполнения.
	if err := r.breakers.Allow(domain.FailureTransient); err != nil {
		logger.Warn("circuit open, rejecting task without execution")
		r.report(logger, r.pool.Fail(task.ID, domain.FailureCircuitOpen, err.Error()))
		return
	}

	// Heartbeat продлевает лизу, пока идёт выполнение.
	stopHeartbeat := make(chan struct{})
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go func() {
		defer hbWG.Done()
		r.heartbeatLoop(logger, task, stopHeartbeat)
	}()

	res, execErr := executor.Execute(ctx, task)

	close(stopHeartbeat)
	hbWG.Wait()

	switch {
	case execErr != nil:
		// Инфраструктурная ошибка внешнего вызова.
		r.breakers.RecordFailure(domain.FailureTransient)
		logger.Warn("task execution failed", "failure_class", domain.FailureTransient, "error", execErr)
		r.report(logger, r.pool.Fail(task.ID, domain.FailureTransient, execErr.Error()))

	case res.Failed():
		class := res.FailureClass
		if class == "" {
			class = domain.FailureCorrectable
		}
		r.breakers.RecordFailure(class)
		logger.Warn("task execution failed", "failure_class", class, "error", res.Error)
		r.report(logger, r.pool.Fail(task.ID, class, res.Error))

	default:
		r.breakers.RecordSuccess(domain.FailureTransient)
		logger.Debug("task execution succeeded")
		r.report(logger, r.pool.Complete(task.ID, res.Outputs))
	}
}

// heartbeatLoop продлевает лизу, пока task выполняется.
func (r *Runner) heartbeatLoop(logger *slog.Logger, task *domain.Task, stop <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.pool.Heartbeat(r.id, task.ID); err != nil {
				// Лиза уже reclaimed — продление бессмысленно.
				logger.Warn("heartbeat failed", "error", err)
				return
			}
		}
	}
}

// report логирует исход финализации task.
// ErrUnknownLease означает, что лиза истекла во время выполнения
// и task уже возвращён в очередь — результат отбрасывается.
func (r *Runner) report(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, pool.ErrUnknownLease) || errors.Is(err, pool.ErrUnknownTask) {
		logger.Warn("lease reclaimed before result, discarding", "error", err)
		return
	}
	logger.Error("failed to report task result", "error", err)
}
