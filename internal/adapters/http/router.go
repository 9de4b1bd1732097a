package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/account-service/config"
	v1 "github.com/example/account-service/internal/adapters/http/api/v1"
	internalhttp "github.com/example/account-service/internal/adapters/http/internal"
	pkglog "github.com/example/account-service/pkg/log"
)

type Router struct {
	cfg       *config.Config
	logger    pkglog.Logger
	apiRouter *v1.Router
	gatherer  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logger pkglog.Logger, apiRouter *v1.Router, gatherer prometheus.Gatherer) *Router {
	return &Router{cfg: cfg, logger: logger, apiRouter: apiRouter, gatherer: gatherer}
}

func (r *Router) Setup(e *echo.Echo) {
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			r.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("trace_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	internalhttp.Register(e.Group(""), r.gatherer)
	apiGroup := e.Group(r.cfg.HTTPBasePath)
	r.apiRouter.Register(apiGroup)
}
