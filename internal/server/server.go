// Package server exposes the orchestrator to a local UI as JSON over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/stockhub-client/pkg/client"
	"github.com/Sternrassler/stockhub-client/pkg/metrics"
	"github.com/Sternrassler/stockhub-client/pkg/orchestrator"
)

// Service is the orchestrator surface served over HTTP.
type Service interface {
	FetchSeries(ctx context.Context, symbol, rangeToken string) (*orchestrator.Series, error)
	FetchPredictions(ctx context.Context, symbol string) (*orchestrator.Predictions, error)
	FetchTickerSnapshot(ctx context.Context, symbol string) (*orchestrator.TickerSnapshot, error)
	FetchTickers(ctx context.Context, symbols []string) *orchestrator.BatchResult
	Invalidate(ctx context.Context, symbol string) error
	Health(ctx context.Context) *orchestrator.Health
}

// Config holds server configuration.
type Config struct {
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// Retry wraps fetches in client.RetryWithBackoff.
	Retry bool
}

// ErrorResponse is the JSON body of every failed call.
type ErrorResponse struct {
	Kind    orchestrator.Kind `json:"kind"`
	Message string            `json:"message"`
}

// BatchResponse is the JSON body of /api/tickers.
type BatchResponse struct {
	Snapshots map[string]*orchestrator.TickerSnapshot `json:"snapshots"`
	Errors    map[string]ErrorResponse                `json:"errors"`
}

// Server wraps the echo instance.
type Server struct {
	echo    *echo.Echo
	service Service
	config  Config
	logger  zerolog.Logger
	errs    chan error
}

// New creates a server and registers its routes.
func New(service Service, cfg Config, logger zerolog.Logger) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		service: service,
		config:  cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		errs:    make(chan error, 1),
	}

	e.Use(recoverMiddleware(s.logger))
	e.Use(requestLogging(s.logger))

	g := e.Group("/api")
	g.GET("/series/:symbol", s.series)
	g.GET("/predictions/:symbol", s.predictions)
	g.GET("/ticker/:symbol", s.ticker)
	g.GET("/tickers", s.tickers)
	g.DELETE("/cache/:symbol", s.invalidate)

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return s
}

// Start binds the listen address and serves in the background. Bind errors
// are returned; later serve failures are delivered on Err.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
			s.errs <- err
		}
	}()

	return nil
}

// Err reports a failure of the serving loop after a successful Start.
func (s *Server) Err() <-chan error {
	return s.errs
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.echo.Listener == nil {
		return nil
	}
	return s.echo.Listener.Addr()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) series(c echo.Context) error {
	rangeToken := c.QueryParam("range")
	if rangeToken == "" {
		rangeToken = string(orchestrator.Range1D)
	}

	var out *orchestrator.Series
	err := s.call(c, func(ctx context.Context) (err error) {
		out, err = s.service.FetchSeries(ctx, c.Param("symbol"), rangeToken)
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) predictions(c echo.Context) error {
	var out *orchestrator.Predictions
	err := s.call(c, func(ctx context.Context) (err error) {
		out, err = s.service.FetchPredictions(ctx, c.Param("symbol"))
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) ticker(c echo.Context) error {
	var out *orchestrator.TickerSnapshot
	err := s.call(c, func(ctx context.Context) (err error) {
		out, err = s.service.FetchTickerSnapshot(ctx, c.Param("symbol"))
		return err
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) tickers(c echo.Context) error {
	raw := c.QueryParam("symbols")
	if strings.TrimSpace(raw) == "" {
		return s.fail(c, &orchestrator.Error{Kind: orchestrator.KindInvalidRequest, Message: "symbols is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()

	res := s.service.FetchTickers(ctx, strings.Split(raw, ","))

	out := BatchResponse{
		Snapshots: res.Snapshots,
		Errors:    make(map[string]ErrorResponse, len(res.Errors)),
	}
	for sym, err := range res.Errors {
		_, body := errorBody(err)
		out.Errors[sym] = body
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) invalidate(c echo.Context) error {
	if err := s.service.Invalidate(c.Request().Context(), c.Param("symbol")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) health(c echo.Context) error {
	h := s.service.Health(c.Request().Context())
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, h)
}

// call runs fn under the request deadline, retrying backend failures when
// enabled.
func (s *Server) call(c echo.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer cancel()

	if !s.config.Retry {
		return fn(ctx)
	}
	return client.RetryWithBackoff(ctx, fn)
}

func (s *Server) fail(c echo.Context, err error) error {
	status, body := errorBody(err)
	s.logger.Debug().
		Err(err).
		Str("path", c.Path()).
		Str("error_kind", string(body.Kind)).
		Int("status", status).
		Msg("Request failed")
	return c.JSON(status, body)
}

// errorBody maps err to an HTTP status and the {kind, message} body.
func errorBody(err error) (int, ErrorResponse) {
	var e *orchestrator.Error
	if !errors.As(err, &e) {
		return http.StatusBadGateway, ErrorResponse{Kind: orchestrator.KindNetwork, Message: err.Error()}
	}

	body := ErrorResponse{Kind: e.Kind, Message: e.Message}
	switch e.Kind {
	case orchestrator.KindInvalidRequest:
		return http.StatusBadRequest, body
	case orchestrator.KindReauthenticate:
		return http.StatusUnauthorized, body
	case orchestrator.KindJobTimeout:
		return http.StatusGatewayTimeout, body
	default:
		return http.StatusBadGateway, body
	}
}
