package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/techwatch/internal/db"
	"horse.fit/techwatch/internal/engine"
)

// Processor is the engine surface exposed over HTTP.
type Processor interface {
	ProcessBatch(ctx context.Context, topic string, maxItems int) (engine.BatchResult, error)
	Forget(ctx context.Context, itemIDs []int64) (engine.ForgetResult, error)
}

type StatsSource interface {
	QueryStats(ctx context.Context) (*db.Stats, error)
	Ping(ctx context.Context) error
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Topics          []string
	MaxItems        int
}

type Server struct {
	processor Processor
	stats     StatsSource
	logger    zerolog.Logger
	opts      Options
	topics    map[string]struct{}
}

func NewServer(processor Processor, stats StatsSource, logger zerolog.Logger, opts Options) *Server {
	opts.Host = strings.TrimSpace(opts.Host)
	if opts.Host == "" {
		opts.Host = "0.0.0.0"
	}
	opts.Port = positiveOr(opts.Port, 8090)
	opts.ReadTimeout = positiveOr(opts.ReadTimeout, 10*time.Second)
	opts.WriteTimeout = positiveOr(opts.WriteTimeout, 10*time.Minute)
	opts.ShutdownTimeout = positiveOr(opts.ShutdownTimeout, 10*time.Second)
	opts.MaxItems = positiveOr(opts.MaxItems, 200)

	topics := make(map[string]struct{}, len(opts.Topics))
	for _, topic := range opts.Topics {
		if normalized := strings.ToLower(strings.TrimSpace(topic)); normalized != "" {
			topics[normalized] = struct{}{}
		}
	}

	return &Server{
		processor: processor,
		stats:     stats,
		logger:    logger,
		topics:    topics,
		opts:      opts,
	}
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.processor == nil || s.stats == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.routes()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("techwatch api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("techwatch api stopped")
	return nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				logRequest(s.logger.Error().Err(v.Error), v, "http request failed")
				return nil
			}
			logRequest(s.logger.Info(), v, "http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.POST("/topics/:topic/process", s.handleProcess)
	api.POST("/forget", s.handleForget)
	return e
}

func logRequest(event *zerolog.Event, v middleware.RequestLoggerValues, msg string) {
	event.
		Str("method", v.Method).
		Str("uri", v.URI).
		Int("status", v.Status).
		Dur("latency", v.Latency).
		Str("remote_ip", v.RemoteIP).
		Str("request_id", v.RequestID).
		Msg(msg)
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if v, ok := he.Message.(string); ok && strings.TrimSpace(v) != "" {
			message = v
		} else if text := strings.TrimSpace(http.StatusText(status)); text != "" {
			message = text
		}
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}
