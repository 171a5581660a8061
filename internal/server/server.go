package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"copilot-bridge/internal/bridge"
	"copilot-bridge/internal/config"
	"copilot-bridge/internal/sanitize"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server exposes the underlying chat-completion capability through the four
// dialect endpoints.
type Server struct {
	cfg       config.Config
	resolver  bridge.Resolver
	sanitizer *sanitize.Sanitizer
	limiter   *Limiter
	app       *echo.Echo
	address   string
	verbose   bool
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, resolver bridge.Resolver) (*Server, error) {
	if resolver == nil {
		return nil, errors.New("resolver must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))

	srv := &Server{
		cfg:       cfg,
		resolver:  resolver,
		sanitizer: sanitize.New(cfg.Sanitize.Enabled),
		limiter:   NewLimiter(cfg.MaxConcurrent),
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
		verbose:   cfg.Verbose,
	}

	e.HTTPErrorHandler = srv.errorHandler
	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the echo engine for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// InFlight reports the current active-request count.
func (s *Server) InFlight() int64 {
	return s.limiter.InFlight()
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	auth := s.app.Group("", tagDialect, s.authMiddleware, s.limitMiddleware)
	auth.GET("/v1/models", s.handleListModels)
	auth.POST("/v1/chat/completions", s.handleChatCompletions)
	auth.POST("/v1/responses", s.handleResponses)
	auth.POST("/v1/messages", s.handleMessages)
	auth.POST("/v1/models/:action", s.handleGenerateContent)
}

// tagDialect records the owning dialect before auth or the body decode can
// fail, so every error envelope on a dialect route is dialect-shaped.
func tagDialect(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(dialectContextKey, dialectForRoute(c.Path()))
		return next(c)
	}
}

func dialectForRoute(routePath string) string {
	switch routePath {
	case "/v1/chat/completions":
		return dialectOpenAI
	case "/v1/responses":
		return dialectAISDK
	case "/v1/messages":
		return dialectAnthropic
	case "/v1/models/:action":
		return dialectGemini
	default:
		return ""
	}
}

// authMiddleware accepts the shared token from any of the dialects' header
// conventions or Google's key query parameter, headers taking precedence.
func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := extractToken(c)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth.Token)) != 1 {
			return requestError{
				Status:  http.StatusUnauthorized,
				Message: messageUnauthorized,
				Type:    typeInvalidRequest,
				Code:    codeUnauthorized,
			}
		}
		return next(c)
	}
}

func extractToken(c echo.Context) string {
	header := c.Request().Header
	if auth := header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(rest)
		}
	}
	if key := header.Get("x-api-key"); key != "" {
		return strings.TrimSpace(key)
	}
	if key := header.Get("x-goog-api-key"); key != "" {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(c.QueryParam("key"))
}

// limitMiddleware reserves an in-flight slot for the request lifetime. The
// release is deferred so it runs exactly once on every exit path, recovered
// panics included.
func (s *Server) limitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiter.Acquire() {
			return requestError{
				Status:  http.StatusTooManyRequests,
				Message: messageTooManyRequests,
				Type:    typeInvalidRequest,
				Code:    codeRateLimited,
			}
		}
		defer s.limiter.Release()
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c echo.Context) error {
	catalogue, err := s.resolver.Models(c.Request().Context())
	if err != nil {
		return err
	}

	data := make([]map[string]any, 0, len(catalogue))
	for _, m := range catalogue {
		ownedBy := m.OwnedBy
		if ownedBy == "" {
			ownedBy = "copilot"
		}
		data = append(data, map[string]any{
			"id":       m.ID,
			"object":   "model",
			"owned_by": ownedBy,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    typeInvalidRequest,
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid request payload: %v", err),
			Type:    typeInvalidRequest,
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    typeInvalidRequest,
		}
	}
	return nil
}
