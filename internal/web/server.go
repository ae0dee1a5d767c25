// Package web serves the news page, the JSON API and the operational
// endpoints over echo.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/matheuskafuri/cryptonews/internal/cache"
	"github.com/matheuskafuri/cryptonews/internal/config"
	"github.com/matheuskafuri/cryptonews/internal/metrics"
	"go.uber.org/zap"
)

// ArticleReader is the read side of the cache the handlers query.
type ArticleReader interface {
	GetArticles(opts cache.QueryOpts) ([]cache.Article, error)
	LastRefresh() (time.Time, error)
}

type Options struct {
	Addr      string
	PageSize  int
	RateLimit config.RateLimit
	Sources   []string
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// OptionsFromConfig fills Options from the service configuration.
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) Options {
	return Options{
		Addr:      cfg.ListenAddr(),
		PageSize:  cfg.GetPageSize(),
		RateLimit: cfg.Limits(),
		Sources:   cfg.SourceNames(),
		Logger:    logger,
		Metrics:   m,
	}
}

type Server struct {
	echo     *echo.Echo
	store    ArticleReader
	tmpl     *Templates
	limiter  *ipLimiter
	addr     string
	pageSize int
	sources  []string
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(store ArticleReader, opts Options) (*Server, error) {
	tmpl, err := ParseTemplates()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}

	s := &Server{
		echo:     echo.New(),
		store:    store,
		tmpl:     tmpl,
		addr:     opts.Addr,
		pageSize: opts.PageSize,
		sources:  opts.Sources,
		logger:   opts.Logger.Named("http"),
		metrics:  opts.Metrics,
	}
	if opts.RateLimit.RPS > 0 {
		s.limiter = newIPLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst)
	}

	// Client IPs come from the socket unless a trusted proxy sets X-Forwarded-For.
	s.echo.IPExtractor = echo.ExtractIPDirect()
	if opts.RateLimit.TrustProxy {
		s.echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Renderer = tmpl
	s.echo.HTTPErrorHandler = s.handleError
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.requestLogger())
	e.Use(s.countRequests)
	if s.limiter != nil {
		e.Use(s.limiter.middleware(operational))
	}

	e.GET("/", s.handleIndex)
	e.GET("/api/news", s.handleNews)
	e.GET("/api/briefing", s.handleBriefing)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.StaticFS("/static", echo.MustSubFS(staticFS, "static"))
}

// operational routes are never rate limited.
func operational(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/healthz" || p == "/metrics" || strings.HasPrefix(p, "/static/")
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.Close()
	return err
}

// Close stops background work without touching the listener.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}

	req := c.Request()
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("remote_ip", c.RealIP()),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Debug("request rejected", fields...)
	}

	if c.Response().Committed {
		return
	}
	switch {
	case req.Method == http.MethodHead:
		err = c.NoContent(code)
	case strings.HasPrefix(req.URL.Path, "/api/"):
		err = c.JSON(code, map[string]string{"error": msg})
	default:
		err = c.String(code, msg)
	}
	if err != nil {
		s.logger.Warn("writing error response", zap.Error(err))
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	})
}

// countRequests records every response by route pattern and status. Errors
// are counted with the code the error handler will write.
func (s *Server) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		code := c.Response().Status
		if err != nil {
			code = http.StatusInternalServerError
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
		return err
	}
}
