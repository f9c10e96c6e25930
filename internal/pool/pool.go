package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/telemetry"
)

// Default configuration values.
const (
	defaultQueueDepth       = 256
	defaultLeaseTTL         = 30 * time.Second
	defaultReapInterval     = 5 * time.Second
	defaultWorkerTimeout    = 90 * time.Second
	defaultAwaitPollTimeout = time.Second
)

// Result — финальный результат task, доставляемый ожидающему.
type Result struct {
	Task *domain.Task
}

// Pool — worker pool с очередями по классам и лизами.
//
// Всё разделяемое состояние (очереди, воркеры, лизы) мутируется
// под одним мьютексом: выдача лизы, возврат по TTL и финализация
// атомарны относительно друг друга.
type Pool struct {
	mu      sync.Mutex
	queues  map[domain.TaskClass][]*domain.Task
	workers map[string]*domain.WorkerInfo
	leases  map[uuid.UUID]*domain.TaskLease
	tasks   map[uuid.UUID]*domain.Task
	waiters map[uuid.UUID]chan Result

	queueDepth    int
	leaseTTL      time.Duration
	reapInterval  time.Duration
	workerTimeout time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
}

// Config — конфигурация Pool.
type Config struct {
	// QueueDepth — максимальная глубина очереди класса (default: 256).
	QueueDepth int

	// LeaseTTL — срок лизы до продления heartbeat'ом (default: 30s).
	LeaseTTL time.Duration

	// ReapInterval — период сканирования лиз реапером (default: 5s).
	ReapInterval time.Duration

	// WorkerTimeout — таймаут heartbeat, после которого воркер
	// удаляется из пула (default: 90s).
	WorkerTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Pool.
func New(cfg Config) *Pool {
	queueDepth := cfg.QueueDepth
	if queueDepth <= 0 {
		queueDepth = defaultQueueDepth
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	reapInterval := cfg.ReapInterval
	if reapInterval <= 0 {
		reapInterval = defaultReapInterval
	}
	workerTimeout := cfg.WorkerTimeout
	if workerTimeout <= 0 {
		workerTimeout = defaultWorkerTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		queues:        make(map[domain.TaskClass][]*domain.Task),
		workers:       make(map[string]*domain.WorkerInfo),
		leases:        make(map[uuid.UUID]*domain.TaskLease),
		tasks:         make(map[uuid.UUID]*domain.Task),
		waiters:       make(map[uuid.UUID]chan Result),
		queueDepth:    queueDepth,
		leaseTTL:      leaseTTL,
		reapInterval:  reapInterval,
		workerTimeout: workerTimeout,
		logger:        logger,
	}
}

// Start запускает фоновый реапер лиз.
func (p *Pool) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reapLoop(ctx)
	}()

	p.logger.Info("pool started",
		"queue_depth", p.queueDepth,
		"lease_ttl", p.leaseTTL,
		"reap_interval", p.reapInterval,
	)
	return nil
}

// Stop останавливает Pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	if p.cancelFunc != nil {
		p.cancelFunc()
	}
	p.wg.Wait()

	p.logger.Info("pool stopped")
}

// reapLoop — цикл реапера.
func (p *Pool) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Reap(time.Now())
		}
	}
}

// Reap выполняет один проход реапера.
//
// Любая лиза с истёкшим TTL освобождается, её task возвращается
// в голову очереди своего класса с attempt+1. Это единственный
// механизм восстановления после смерти воркера — внешний
// supervisor не предполагается.
//
// Воркеры без heartbeat дольше WorkerTimeout удаляются из пула.
func (p *Pool) Reap(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	reaped := 0
	for taskID, lease := range p.leases {
		if !lease.Expired(now) {
			continue
		}

		task, ok := p.tasks[taskID]
		delete(p.leases, taskID)
		if w, exists := p.workers[lease.WorkerID]; exists && w.CurrentTaskID == taskID {
			w.CurrentTaskID = uuid.Nil
		}
		if !ok {
			continue
		}

		task.Requeue()
		// Возврат в голову очереди: задача не теряет своё место.
		p.queues[task.Class] = append([]*domain.Task{task}, p.queues[task.Class]...)
		reaped++

		telemetry.LeasesReaped.Inc()
		telemetry.QueueDepth.WithLabelValues(string(task.Class)).Set(float64(len(p.queues[task.Class])))

		p.logger.Warn("lease expired, task requeued",
			"task_id", taskID,
			"worker_id", lease.WorkerID,
			"attempt", task.Attempt,
		)
	}

	for id, w := range p.workers {
		if now.Sub(w.LastHeartbeat) > p.workerTimeout {
			delete(p.workers, id)
			p.logger.Warn("worker expired, removed from pool", "worker_id", id)
		}
	}

	return reaped
}
