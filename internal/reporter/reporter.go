// Package reporter периодически публикует canary-сравнение.
//
// Reporter по cron-расписанию агрегирует сэмплы canary-менеджера
// за окно, логирует рекомендацию и отправляет сравнение в audit
// exchange. Автоматических действий по рекомендации не выполняется.
package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkoresh/forgeline/internal/canary"
	"github.com/mkoresh/forgeline/internal/domain"
	"github.com/mkoresh/forgeline/internal/events"
)

const (
	defaultCronExpr = "*/5 * * * *"
	defaultWindow   = time.Hour
)

// cronParser — парсер cron-выражений (стандартные 5 полей).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Reporter — периодический публикатор canary-сравнения.
type Reporter struct {
	canary    *canary.Manager
	publisher *events.Publisher
	schedule  cron.Schedule
	window    time.Duration
	logger    *slog.Logger

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

// Config — конфигурация Reporter.
type Config struct {
	// Canary — менеджер canary (обязательно).
	Canary *canary.Manager

	// Publisher — audit sink (опционально, nil = log-only).
	Publisher *events.Publisher

	// CronExpr — расписание отчётов (default: каждые 5 минут).
	CronExpr string

	// Window — окно агрегации сэмплов (default: 1h).
	Window time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Reporter.
func New(cfg Config) (*Reporter, error) {
	expr := cfg.CronExpr
	if expr == "" {
		expr = defaultCronExpr
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	window := cfg.Window
	if window <= 0 {
		window = defaultWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reporter{
		canary:    cfg.Canary,
		publisher: cfg.Publisher,
		schedule:  schedule,
		window:    window,
		logger:    logger,
	}, nil
}

// Start запускает цикл отчётов.
func (r *Reporter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)
	}()

	r.logger.Info("canary reporter started", "window", r.window)
	return nil
}

// Stop останавливает Reporter.
func (r *Reporter) Stop() {
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()

	r.logger.Info("canary reporter stopped")
}

func (r *Reporter) loop(ctx context.Context) {
	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.Tick(ctx)
		}
	}
}

// Tick выполняет один отчёт: агрегирует окно, логирует рекомендацию
// и публикует сравнение.
func (r *Reporter) Tick(ctx context.Context) domain.CanaryComparison {
	cmp := r.canary.Evaluate(r.window)

	r.logger.Info("canary report",
		"recommendation", cmp.Recommendation,
		"reason", cmp.Reason,
		"baseline_samples", cmp.Baseline.Samples,
		"canary_samples", cmp.Canary.Samples,
	)

	if err := r.publisher.PublishCanaryComparison(ctx, cmp); err != nil {
		r.logger.Error("failed to publish canary comparison", "error", err)
	}

	return cmp
}
