// Package server assembles the HTTP surface on echo.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	apiconfig "fund_extractor/pkg/api/config"
	"fund_extractor/pkg/api/portfolio"
	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/metrics"
	"fund_extractor/pkg/core/pipeline"
	"fund_extractor/pkg/core/store"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Processor      portfolio.Processor
	Store          store.Store
	Agents         *agent.Manager
	Metrics        *metrics.Metrics
	UploadDir      string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
}

func New(deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method), zap.String("uri", v.URI),
				zap.Int("status", v.Status), zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	ph, err := portfolio.NewHandler(deps.Processor, deps.Store, deps.UploadDir, deps.MaxUploadBytes, logger)
	if err != nil {
		return nil, err
	}
	ph.Register(e)
	if deps.Agents != nil {
		apiconfig.NewHandler(deps.Agents, logger).Register(e.Group("/api/config"))
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))

	return &Server{echo: e, logger: logger}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is cancelled, then drains in-flight requests
// for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	s.logger.Info("Server starting", zap.String("addr", addr))

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

// errorHandler replies {"message": ...} and logs the failure once, with the
// stack of its origin when one was captured.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		cause := err

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
			if he.Internal != nil {
				cause = he.Internal
			}
		}

		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", code), zap.String("method", req.Method),
			zap.String("path", req.URL.Path), zap.String("remote", c.RealIP()),
			zap.Error(cause),
		}
		if trace := pipeline.Trace(cause); trace != "" {
			fields = append(fields, zap.String("stack", trace))
		}
		if code >= http.StatusInternalServerError {
			logger.Error(msg, fields...)
		} else {
			logger.Warn(msg, fields...)
		}

		if req.Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]string{"message": msg})
	}
}
