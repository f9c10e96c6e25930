// Package chaos инъецирует синтетические отказы в пайплайн
// для проверки фаз починки оркестратора.
//
// Engine помечает подмножество задач на синтетический отказ до того,
// как они дойдут до исполнения, и фиксирует, восстановился ли run
// (дошёл до COMPLETED несмотря на инъекцию) в пределах окна.
package chaos

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/telemetry"
)

// Default configuration values.
const (
	defaultRecoveryWindow = 10 * time.Minute
	defaultSweepInterval  = time.Minute
)

// Config — конфигурация Engine.
type Config struct {
	// Enabled — выключенный движок не инъецирует ничего.
	Enabled bool

	// Faults — типы отказов для инъекции.
	Faults []domain.ChaosFaultType

	// Probability — вероятность инъекции для подходящего task [0..1].
	Probability float64

	// TargetClasses — классы задач под инъекцию (пусто = все).
	TargetClasses []domain.TaskClass

	// RecoveryWindow — окно, в пределах которого засчитывается
	// восстановление run (default: 10m).
	RecoveryWindow time.Duration

	// CronExpr + WindowDuration — расписание окон инъекций
	// (пусто = окно всегда открыто).
	CronExpr       string
	WindowDuration time.Duration

	// Seed — сид генератора (0 = текущее время).
	Seed int64

	// Logger
	Logger *slog.Logger
}

// Engine — движок инъекции синтетических отказов.
type Engine struct {
	cfg    Config
	window *Window
	logger *slog.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	events map[uuid.UUID]*domain.ChaosEvent
	byRun  map[uuid.UUID][]uuid.UUID

	injected  int
	recovered int
	expired   int
}

// New создаёт Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.RecoveryWindow <= 0 {
		cfg.RecoveryWindow = defaultRecoveryWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	window, err := NewWindow(cfg.CronExpr, cfg.WindowDuration)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Engine{
		cfg:    cfg,
		window: window,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
		events: make(map[uuid.UUID]*domain.ChaosEvent),
		byRun:  make(map[uuid.UUID][]uuid.UUID),
	}, nil
}

// Intercept решает, инъецировать ли отказ в task.
// Возвращает тип отказа и true, если task помечен.
func (e *Engine) Intercept(task *domain.Task) (domain.ChaosFaultType, bool) {
	if e == nil || !e.cfg.Enabled || len(e.cfg.Faults) == 0 {
		return "", false
	}

	now := time.Now()
	if !e.window.Open(now) {
		return "", false
	}
	if !e.targeted(task.Class) {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rng.Float64() >= e.cfg.Probability {
		return "", false
	}

	fault := e.cfg.Faults[e.rng.Intn(len(e.cfg.Faults))]
	event := &domain.ChaosEvent{
		ID:           uuid.New(),
		Type:         fault,
		RunID:        task.RunID,
		TargetTaskID: task.ID,
		InjectedAt:   now,
		ExpiresAt:    now.Add(e.cfg.RecoveryWindow),
	}
	e.events[event.ID] = event
	e.byRun[task.RunID] = append(e.byRun[task.RunID], event.ID)
	e.injected++

	telemetry.ChaosInjections.WithLabelValues(string(fault)).Inc()

	e.logger.Info("chaos fault injected",
		"event_id", event.ID,
		"type", fault,
		"run_id", task.RunID,
		"task_id", task.ID,
	)
	return fault, true
}

// targeted проверяет, попадает ли класс под инъекцию.
func (e *Engine) targeted(class domain.TaskClass) bool {
	if len(e.cfg.TargetClasses) == 0 {
		return true
	}
	for _, c := range e.cfg.TargetClasses {
		if c == class {
			return true
		}
	}
	return false
}

// ResolveRun фиксирует исход run для его chaos-событий.
// Run, достигший COMPLETED в пределах окна, засчитывается
// как восстановившийся после каждой своей инъекции.
func (e *Engine) ResolveRun(runID uuid.UUID, completed bool) {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for _, eventID := range e.byRun[runID] {
		event, ok := e.events[eventID]
		if !ok || event.Recovered {
			continue
		}
		if completed && !event.Expired(now) {
			event.Recovered = true
			e.recovered++
			telemetry.ChaosRecoveries.Inc()
			e.logger.Info("chaos fault recovered",
				"event_id", event.ID,
				"run_id", runID,
			)
		}
	}
	if completed {
		delete(e.byRun, runID)
	}
}

// Sweep удаляет протухшие события без восстановления.
func (e *Engine) Sweep(now time.Time) int {
	if e == nil {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, event := range e.events {
		if event.Recovered || !event.Expired(now) {
			continue
		}
		delete(e.events, id)
		e.expired++
		removed++
	}
	return removed
}

// Run запускает периодический sweep до отмены контекста.
func (e *Engine) Run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			e.Sweep(now)
		}
	}
}

// Summary — сводная статистика chaos-движка.
type Summary struct {
	Enabled   bool                `json:"enabled"`
	Injected  int                 `json:"injected"`
	Recovered int                 `json:"recovered"`
	Expired   int                 `json:"expired"`
	Active    int                 `json:"active"`
	Events    []domain.ChaosEvent `json:"events,omitempty"`
}

// Summary возвращает сводку по инъекциям.
func (e *Engine) Summary() Summary {
	if e == nil {
		return Summary{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Summary{
		Enabled:   e.cfg.Enabled,
		Injected:  e.injected,
		Recovered: e.recovered,
		Expired:   e.expired,
	}
	for _, event := range e.events {
		s.Events = append(s.Events, *event)
		if !event.Recovered {
			s.Active++
		}
	}
	return s
}
