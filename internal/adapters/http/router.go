package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/handlers"
	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/middleware"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/config"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/telemetry"
)

// DefaultRequestTimeout is the deadline applied to /api requests.
const DefaultRequestTimeout = 30 * time.Second

// RouterConfig wires handlers into the route table. Nil handlers leave
// their routes unmounted.
type RouterConfig struct {
	Logger     *slog.Logger
	AuthConfig *config.AuthConfig
	AppConfig  *config.AppConfig

	HealthHandler *handlers.HealthHandler
	QuoteHandler  *handlers.QuoteHandler
	TRMNLHandler  *handlers.TRMNLHandler

	// Timeout is the request deadline for /api routes. Zero disables it.
	Timeout time.Duration
}

// SetupRouter installs the middleware chain and mounts the routes.
//
// Every request passes Recovery, RequestID, CorrelationID, the otel
// middleware and Logging, in that order. /api adds the request timeout and,
// on POST routes, the write guard. /-/, /health and /trmnl are open.
func SetupRouter(engine *gin.Engine, cfg RouterConfig) {
	serviceName := "trmnl-quotes"
	if cfg.AppConfig != nil && cfg.AppConfig.Name != "" {
		serviceName = cfg.AppConfig.Name
	}

	engine.Use(
		middleware.Recovery(cfg.Logger),
		middleware.RequestID(),
		middleware.CorrelationID(),
	)
	engine.Use(telemetry.Middleware(serviceName)...)
	engine.Use(middleware.Logging(cfg.Logger))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterHealthRoutesOnEngine(engine)
	}

	if cfg.QuoteHandler != nil {
		api := engine.Group("/api")
		if cfg.Timeout > 0 {
			api.Use(middleware.Timeout(cfg.Timeout))
		}

		cfg.QuoteHandler.RegisterQuoteRoutes(api, middleware.WriteGuard(cfg.AuthConfig)...)
	}

	if cfg.TRMNLHandler != nil {
		cfg.TRMNLHandler.RegisterTRMNLRoutes(engine.Group("/trmnl"))
	}

	engine.NoRoute(func(c *gin.Context) {
		dto.AbortWithErrorCode(c, dto.ErrorCodeNotFound, "route not found")
	})
}

// NewDefaultRouterConfig fills RouterConfig with DefaultRequestTimeout.
func NewDefaultRouterConfig(
	logger *slog.Logger,
	appCfg *config.AppConfig,
	authCfg *config.AuthConfig,
	healthHandler *handlers.HealthHandler,
	quoteHandler *handlers.QuoteHandler,
	trmnlHandler *handlers.TRMNLHandler,
) RouterConfig {
	return RouterConfig{
		Logger:        logger,
		AuthConfig:    authCfg,
		AppConfig:     appCfg,
		HealthHandler: healthHandler,
		QuoteHandler:  quoteHandler,
		TRMNLHandler:  trmnlHandler,
		Timeout:       DefaultRequestTimeout,
	}
}
