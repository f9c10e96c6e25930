package api

import (
	"log/slog"

	"github.com/mkoresh/forgeline/internal/breaker"
	"github.com/mkoresh/forgeline/internal/canary"
	"github.com/mkoresh/forgeline/internal/chaos"
	"github.com/mkoresh/forgeline/internal/orchestrator"
	"github.com/mkoresh/forgeline/internal/pool"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orch     *orchestrator.Orchestrator
	pool     *pool.Pool
	breakers *breaker.Registry
	canary   *canary.Manager
	chaos    *chaos.Engine
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Pool         *pool.Pool
	Breakers     *breaker.Registry
	Canary       *canary.Manager
	Chaos        *chaos.Engine // может быть nil, тогда /chaos/summary отдаёт пустую сводку
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		orch:     cfg.Orchestrator,
		pool:     cfg.Pool,
		breakers: cfg.Breakers,
		canary:   cfg.Canary,
		chaos:    cfg.Chaos,
		logger:   cfg.Logger,
	}
}
