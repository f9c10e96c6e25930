// Package breaker реализует реестр circuit breaker'ов по классам отказов.
//
// Состояние process-wide и разделяется всеми runs: системный сбой
// одной внешней зависимости защищает все runs одновременно.
// Переходы выполняются через compare-and-swap без глобального лока,
// чтобы классы не конкурировали между собой.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkoresh/forgeline/internal/domain"
)

// Ошибки breaker'а.
var (
	// ErrCircuitOpen — breaker открыт, вызов не выполнялся.
	ErrCircuitOpen = errors.New("circuit open")
)

// Default configuration values.
const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// Внутренние коды состояний для atomic CAS.
const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

func stateOf(code int32) domain.BreakerState {
	switch code {
	case stateOpen:
		return domain.BreakerOpen
	case stateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

// Breaker — circuit breaker одного класса отказов.
//
// Машина состояний:
//
//	CLOSED → (threshold подряд отказов) → OPEN
//	OPEN → (cooldown истёк) → HALF_OPEN
//	HALF_OPEN → (проба успешна) → CLOSED
//	HALF_OPEN → (проба упала) → OPEN (cooldown заново)
type Breaker struct {
	class    domain.FailureClass
	thresh   int32
	cooldown time.Duration

	state       atomic.Int32
	consecutive atomic.Int32
	openedAt    atomic.Int64 // unix nanos
	probe       atomic.Bool  // проба half_open уже выдана
}

// newBreaker создаёт breaker в состоянии CLOSED.
func newBreaker(class domain.FailureClass, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{
		class:    class,
		thresh:   int32(threshold),
		cooldown: cooldown,
	}
}

// Allow решает, можно ли выполнять вызов.
//
// В OPEN возвращает ErrCircuitOpen до истечения cooldown; после —
// переводит breaker в HALF_OPEN и пропускает ровно одну пробу.
func (b *Breaker) Allow(now time.Time) error {
	for {
		switch b.state.Load() {
		case stateClosed:
			return nil

		case stateOpen:
			opened := time.Unix(0, b.openedAt.Load())
			if now.Sub(opened) < b.cooldown {
				return ErrCircuitOpen
			}
			// Cooldown истёк — пробуем перейти в HALF_OPEN.
			if b.state.CompareAndSwap(stateOpen, stateHalfOpen) {
				b.probe.Store(false)
			}
			// В любом случае перечитываем состояние.
			continue

		case stateHalfOpen:
			// Ровно одна проба: первый CAS выигрывает.
			if b.probe.CompareAndSwap(false, true) {
				return nil
			}
			return ErrCircuitOpen

		default:
			return nil
		}
	}
}

// RecordSuccess фиксирует успешный вызов.
// Из HALF_OPEN переводит в CLOSED; счётчик отказов обнуляется.
func (b *Breaker) RecordSuccess() {
	b.consecutive.Store(0)
	b.state.CompareAndSwap(stateHalfOpen, stateClosed)
}

// RecordFailure фиксирует отказ вызова.
// Возвращает новое состояние breaker'а.
func (b *Breaker) RecordFailure(now time.Time) domain.BreakerState {
	// Проба в HALF_OPEN упала — обратно в OPEN, cooldown заново.
	if b.state.CompareAndSwap(stateHalfOpen, stateOpen) {
		b.openedAt.Store(now.UnixNano())
		return domain.BreakerOpen
	}

	n := b.consecutive.Add(1)
	if n >= b.thresh {
		if b.state.CompareAndSwap(stateClosed, stateOpen) {
			b.openedAt.Store(now.UnixNano())
		}
	}
	return stateOf(b.state.Load())
}

// State возвращает текущее состояние breaker'а.
func (b *Breaker) State() domain.BreakerState {
	return stateOf(b.state.Load())
}

// Snapshot — состояние breaker'а для management surface.
type Snapshot struct {
	Class               domain.FailureClass `json:"failure_class"`
	State               domain.BreakerState `json:"state"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	OpenedAt            *time.Time          `json:"opened_at,omitempty"`
	Cooldown            time.Duration       `json:"cooldown"`
}

// Snapshot возвращает слепок состояния breaker'а.
func (b *Breaker) Snapshot() Snapshot {
	snap := Snapshot{
		Class:               b.class,
		State:               b.State(),
		ConsecutiveFailures: int(b.consecutive.Load()),
		Cooldown:            b.cooldown,
	}
	if nanos := b.openedAt.Load(); nanos > 0 && snap.State != domain.BreakerClosed {
		t := time.Unix(0, nanos)
		snap.OpenedAt = &t
	}
	return snap
}

// Config — конфигурация реестра breaker'ов.
type Config struct {
	// Threshold — число подряд идущих отказов до открытия (default: 5).
	Threshold int

	// Cooldown — пауза перед пробой после открытия (default: 30s).
	Cooldown time.Duration

	// Logger
	Logger *slog.Logger
}

// Registry — реестр breaker'ов, шардированный по классу отказа.
//
// Один breaker на класс, общий для всех runs процесса.
type Registry struct {
	cfg      Config
	breakers sync.Map // domain.FailureClass → *Breaker
	logger   *slog.Logger

	// onTransition вызывается при смене состояния (для аудита/метрик).
	onTransition func(class domain.FailureClass, state domain.BreakerState)
}

// NewRegistry создаёт реестр breaker'ов.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{cfg: cfg, logger: logger}
}

// OnTransition регистрирует хук смены состояния.
func (r *Registry) OnTransition(fn func(class domain.FailureClass, state domain.BreakerState)) {
	r.onTransition = fn
}

// Get возвращает breaker класса, создавая его при первом обращении.
func (r *Registry) Get(class domain.FailureClass) *Breaker {
	if b, ok := r.breakers.Load(class); ok {
		return b.(*Breaker)
	}
	created := newBreaker(class, r.cfg.Threshold, r.cfg.Cooldown)
	actual, _ := r.breakers.LoadOrStore(class, created)
	return actual.(*Breaker)
}

// Allow решает, можно ли выполнять вызов, гейтящийся данным классом.
func (r *Registry) Allow(class domain.FailureClass) error {
	return r.Get(class).Allow(time.Now())
}

// RecordSuccess фиксирует успешный вызов класса.
func (r *Registry) RecordSuccess(class domain.FailureClass) {
	b := r.Get(class)
	prev := b.State()
	b.RecordSuccess()
	if next := b.State(); next != prev {
		r.transition(class, next)
	}
}

// RecordFailure фиксирует отказ вызова класса.
func (r *Registry) RecordFailure(class domain.FailureClass) {
	b := r.Get(class)
	prev := b.State()
	next := b.RecordFailure(time.Now())
	if next != prev {
		r.transition(class, next)
	}
}

// transition логирует смену состояния и дергает хук.
func (r *Registry) transition(class domain.FailureClass, state domain.BreakerState) {
	r.logger.Warn("breaker state changed",
		"failure_class", class,
		"state", state,
	)
	if r.onTransition != nil {
		r.onTransition(class, state)
	}
}

// Snapshots возвращает слепки всех breaker'ов реестра.
func (r *Registry) Snapshots() []Snapshot {
	var snaps []Snapshot
	r.breakers.Range(func(_, v any) bool {
		snaps = append(snaps, v.(*Breaker).Snapshot())
		return true
	})
	return snaps
}
