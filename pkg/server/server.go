package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haivivi/voicegate/pkg/metrics"
	"github.com/haivivi/voicegate/pkg/profile"
	"github.com/haivivi/voicegate/pkg/token"
	"github.com/haivivi/voicegate/pkg/verify"
)

// Profiles is the read/delete side of the profile store.
type Profiles interface {
	Load(ctx context.Context, userID string) (*profile.Profile, error)
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) iter.Seq2[string, error]
	Model() string
}

// Config configures a Server.
type Config struct {
	Verifier *verify.Verifier
	Enroller *verify.Enroller
	Profiles Profiles

	// Issuer signs tokens for accepted attempts. Nil disables tokens.
	Issuer *token.Issuer

	// SampleRate is the engine rate uploads are resampled to.
	SampleRate int

	// MaxUpload bounds request bodies in bytes; 0 means 32 MiB.
	MaxUpload int64

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Gatherer backs /metrics; nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front of the engine.
type Server struct {
	echo       *echo.Echo
	verifier   *verify.Verifier
	enroller   *verify.Enroller
	profiles   Profiles
	issuer     *token.Issuer
	sampleRate int
	maxUpload  int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New creates a Server with all routes registered.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Verifier == nil:
		return nil, errors.New("server: verifier is required")
	case cfg.Enroller == nil:
		return nil, errors.New("server: enroller is required")
	case cfg.Profiles == nil:
		return nil, errors.New("server: profiles are required")
	case cfg.SampleRate <= 0:
		return nil, fmt.Errorf("server: sample rate must be positive, got %d", cfg.SampleRate)
	}
	s := &Server{
		echo:       echo.New(),
		verifier:   cfg.Verifier,
		enroller:   cfg.Enroller,
		profiles:   cfg.Profiles,
		issuer:     cfg.Issuer,
		sampleRate: cfg.SampleRate,
		maxUpload:  cfg.MaxUpload,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 32 << 20
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.observe)
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", s.maxUpload>>10)))

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := e.Group("/v1")
	v1.GET("/users", s.listUsers)
	v1.GET("/users/:id", s.getUser)
	v1.DELETE("/users/:id", s.deleteUser)
	v1.POST("/users/:id/enroll", s.enroll)
	v1.POST("/users/:id/retrain", s.retrain)
	v1.POST("/users/:id/verify", s.verify)
	v1.GET("/users/:id/verify/stream", s.verifyStream)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", addr)
		errc <- s.echo.Start(addr)
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// observe logs every request and records its latency.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		status := c.Response().Status
		elapsed := time.Since(start)
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTPRequest(req.Method, route, strconv.Itoa(status), elapsed)
		s.logger.DebugContext(req.Context(), "http request",
			"method", req.Method,
			"route", route,
			"status", status,
			"elapsed", elapsed,
		)
		return nil
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"model":  s.profiles.Model(),
	})
}
