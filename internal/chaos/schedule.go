package chaos

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser — парсер cron-выражений для окон инъекций.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Window — расписание окон, внутри которых разрешены инъекции.
//
// Пустое выражение означает «окно всегда открыто» — режим
// постоянного фонового хаоса. Cron-выражение открывает окно
// длительностью Duration в каждый момент срабатывания —
// режим запланированных game days.
type Window struct {
	schedule cron.Schedule
	duration time.Duration
}

// NewWindow создаёт окно инъекций из cron-выражения.
func NewWindow(cronExpr string, duration time.Duration) (*Window, error) {
	if cronExpr == "" {
		return &Window{}, nil
	}
	if duration <= 0 {
		return nil, fmt.Errorf("window duration must be positive")
	}

	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return &Window{schedule: schedule, duration: duration}, nil
}

// Open проверяет, открыто ли окно в момент now.
func (w *Window) Open(now time.Time) bool {
	if w.schedule == nil {
		return true
	}
	// Окно открыто, если срабатывание было в (now-duration, now].
	fire := w.schedule.Next(now.Add(-w.duration))
	return !fire.After(now)
}

// ValidateCronExpr проверяет валидность cron-выражения окна.
func ValidateCronExpr(cronExpr string) error {
	_, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}
