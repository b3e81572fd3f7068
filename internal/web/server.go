// Package web serves the local HTML front-end over the clinic backend.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/config"
	"github.com/clinsys/clinsys/internal/domain/appointment"
	"github.com/clinsys/clinsys/internal/domain/evolution"
	"github.com/clinsys/clinsys/internal/domain/patient"
	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/listsync"
	"github.com/clinsys/clinsys/internal/platform/middleware"
	"github.com/clinsys/clinsys/internal/platform/session"
	"github.com/clinsys/clinsys/internal/platform/ui"
)

const shutdownTimeout = 10 * time.Second

// API is the backend client the server talks through.
type API interface {
	gateway.Doer
	BaseURL() string
}

type Server struct {
	cfg      *config.Config
	e        *echo.Echo
	sessions *session.Manager
	api      API
	logger   zerolog.Logger
}

// New wires the middleware stack, the login flow and the three record
// sections.
func New(cfg *config.Config, sessions *session.Manager, api API, logger zerolog.Logger) (*Server, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	s := &Server{cfg: cfg, e: e, sessions: sessions, api: api, logger: logger}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Audit(logger, ui.UserKey))
	e.Use(middleware.SecurityHeaders(cfg.CookieSecure))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.CSRFWithConfig(echomw.CSRFConfig{
		TokenLookup:    "form:_csrf",
		ContextKey:     ui.CSRFKey,
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.CookieSecure,
		CookieSameSite: http.SameSiteStrictMode,
	}))

	e.StaticFS("/static", echo.MustSubFS(staticFS, "static"))
	e.GET("/health", s.health)

	auth := &authHandler{sessions: sessions, api: api, logger: logger}
	e.GET("/", auth.Home)
	e.GET("/login", auth.LoginForm)
	e.POST("/login", auth.Login, loginLimiter())
	e.POST("/logout", auth.Logout)

	patients := patient.NewService(patient.NewPatientRepoAPI(api), logger)
	appointments := appointment.NewService(appointment.NewAppointmentRepoAPI(api), patients, logger)
	evolutions := evolution.NewService(evolution.NewEvolutionRepoAPI(api), patients, logger)

	// One active list view at a time across every section.
	tracker := &listsync.Tracker{}

	g := e.Group("", RequireSession(sessions, logger))
	patient.NewHandler(patients, tracker, sessions, cfg.PageSize, logger).RegisterRoutes(g)
	appointment.NewHandler(appointments, tracker, sessions, cfg.PageSize, logger).RegisterRoutes(g)
	evolution.NewHandler(evolutions, tracker, cfg.PageSize, logger).RegisterRoutes(g)

	return s, nil
}

// loginLimiter throttles password guessing per client address.
func loginLimiter() echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      0.2,
		Burst:     5,
		ExpiresIn: 5 * time.Minute,
	})
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts. Wait a minute and try again.")
		},
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("backend", s.api.BaseURL()).Msg("starting server")
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"backend":       s.api.BaseURL(),
		"authenticated": s.sessions.IsAuthenticated(),
	})
}

// handleError renders failures as an HTML page with the message as an
// alert.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Something went wrong. Please try again."
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	if c.Request().Method == http.MethodHead {
		if err := c.NoContent(code); err != nil {
			s.logger.Error().Err(err).Msg("failed to write error response")
		}
		return
	}

	page := ui.NewPage(c, http.StatusText(code), "")
	page.Alert(ui.Danger, msg)
	if rerr := c.Render(code, errorTemplate, page); rerr != nil {
		s.logger.Error().Err(rerr).Msg("failed to render error page")
		_ = c.String(code, msg)
	}
}
