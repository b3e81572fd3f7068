package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/session"
	"github.com/clinsys/clinsys/internal/platform/ui"
)

// RequireSession sends visitors without a token to the login page and
// exposes the signed-in user's display name to the templates. Token claims
// are read for display only; the backend's 401/403 replies end a session.
func RequireSession(sessions *session.Manager, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !sessions.IsAuthenticated() {
				return ui.Redirect(c, session.UnauthenticatedHome, ui.Info, "Please log in.")
			}
			claims, err := sessions.Claims()
			if err != nil {
				logger.Debug().Err(err).Msg("token claims unreadable")
			}
			c.Set(ui.UserKey, displayName(claims))
			return next(c)
		}
	}
}

func displayName(c *session.Claims) string {
	switch {
	case c == nil:
		return "Signed in"
	case c.Name != "":
		return c.Name
	case c.Email != "":
		return c.Email
	case c.Subject != "":
		return c.Subject
	}
	return "Signed in"
}

type authHandler struct {
	sessions *session.Manager
	api      gateway.Doer
	logger   zerolog.Logger
}

func loginFields(email string) []form.Field {
	return []form.Field{
		{Name: "email", Label: "Email", Type: "email", Value: email, Required: true},
		{Name: "password", Label: "Password", Type: "password", Required: true},
	}
}

func (h *authHandler) loginPage(c echo.Context, status int, email string, alert *ui.Message) error {
	page := ui.NewPage(c, "Log in", "")
	page.User = ""
	page.Fields = loginFields(email)
	if alert != nil {
		page.Alert(alert.Kind, alert.Text)
	}
	return c.Render(status, ui.LoginTemplate, page)
}

func (h *authHandler) LoginForm(c echo.Context) error {
	if h.sessions.IsAuthenticated() {
		return c.Redirect(http.StatusSeeOther, session.AuthenticatedHome)
	}
	return h.loginPage(c, http.StatusOK, "", nil)
}

func (h *authHandler) Login(c echo.Context) error {
	creds := session.Credentials{
		Email:    c.FormValue("email"),
		Password: c.FormValue("password"),
	}
	next, err := h.sessions.Login(c.Request().Context(), h.api, creds)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			return h.loginPage(c, http.StatusUnauthorized, creds.Email, &ui.Message{Kind: ui.Warning, Text: "Invalid email or password."})
		}
		h.logger.Error().Err(err).Msg("login failed")
		return h.loginPage(c, http.StatusBadGateway, creds.Email, &ui.Message{Kind: ui.Danger, Text: "Could not reach the server. Try again."})
	}
	return ui.Redirect(c, next, ui.Success, "Welcome back.")
}

func (h *authHandler) Logout(c echo.Context) error {
	next, err := h.sessions.Logout()
	if err != nil {
		h.logger.Error().Err(err).Msg("logout failed")
		return ui.Redirect(c, session.AuthenticatedHome, ui.Danger, "Could not log out. Try again.")
	}
	return ui.Redirect(c, next, ui.Info, "You have been logged out.")
}

// Home sends the visitor to wherever their session state says.
func (h *authHandler) Home(c echo.Context) error {
	if h.sessions.IsAuthenticated() {
		return c.Redirect(http.StatusSeeOther, session.AuthenticatedHome)
	}
	return c.Redirect(http.StatusSeeOther, session.UnauthenticatedHome)
}
