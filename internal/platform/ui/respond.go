package ui

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/session"
)

// SessionExpired is shown when the backend refuses the stored token.
const SessionExpired = "Your session expired or you lack permission. Please log in again."

// ErrorMessage picks the user-facing text for err. Validation and login
// failures speak for themselves; anything else shows fallback.
func ErrorMessage(err error, fallback string) string {
	switch {
	case form.IsValidation(err):
		return form.Message(err)
	case errors.Is(err, session.ErrInvalidCredentials):
		return err.Error()
	case gateway.IsAuth(err):
		return SessionExpired
	case gateway.IsNotFound(err):
		return "The requested record was not found."
	default:
		return fallback
	}
}

// Redirect queues an alert and answers with a 303 to target.
func Redirect(c echo.Context, target, kind, text string) error {
	if text != "" {
		Flash(c, kind, text)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

// SessionLost reports whether err means the session is gone and, if so,
// sends the user to the login page.
func SessionLost(c echo.Context, err error) (bool, error) {
	if !gateway.IsAuth(err) {
		return false, nil
	}
	return true, Redirect(c, session.UnauthenticatedHome, Danger, SessionExpired)
}
