package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records one change a signed-in user submitted.
type AuditEntry struct {
	User       string
	Resource   string // patients, appointments, evolutions, session
	RecordID   string
	Action     string // create, update, delete, login, logout, handoff
	Path       string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Succeeded reports whether the submission was accepted. Redirects count as
// success since every accepted form answers with a 303.
func (e AuditEntry) Succeeded() bool {
	return e.StatusCode < http.StatusBadRequest
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordChange(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordChange(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every POST form submission after it was handled. userKey is the
// context key holding the signed-in user's display name. Extra recorders
// receive the same entries.
func Audit(logger zerolog.Logger, userKey string, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodPost {
				return next(c)
			}

			err := next(c)

			entry := classify(req.URL.Path)
			entry.Path = req.URL.Path
			entry.Timestamp = time.Now().UTC()
			entry.StatusCode = c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					entry.StatusCode = he.Code
				} else {
					entry.StatusCode = http.StatusInternalServerError
				}
			}
			if u, ok := c.Get(userKey).(string); ok {
				entry.User = u
			}
			if id, ok := c.Get(RequestIDKey).(string); ok {
				entry.RequestID = id
			}

			logger.Info().
				Str("audit", "change").
				Str("user", entry.User).
				Str("resource", entry.Resource).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Int("status", entry.StatusCode).
				Bool("ok", entry.Succeeded()).
				Str("request_id", entry.RequestID).
				Msg("audit")

			for _, r := range recorders {
				if rerr := r.RecordChange(entry); rerr != nil {
					logger.Error().Err(rerr).Str("path", entry.Path).Msg("failed to record audit entry")
				}
			}
			return err
		}
	}
}

// classify reads the resource, record and action out of a form path such as
// /patients/3/edit or /patients/3/evolutions/8/delete. The innermost record
// wins.
func classify(path string) AuditEntry {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(segs) == 1 && (segs[0] == "login" || segs[0] == "logout"):
		return AuditEntry{Resource: "session", Action: segs[0]}
	case len(segs) == 0 || segs[0] == "":
		return AuditEntry{Action: "unknown"}
	}

	var e AuditEntry
	for i := 0; i < len(segs); i++ {
		switch segs[i] {
		case "new":
			e.Action = "create"
			e.RecordID = ""
		case "edit":
			e.Action = "update"
		case "delete":
			e.Action = "delete"
		case "appointment":
			e.Action = "handoff"
		default:
			if isID(segs[i]) {
				e.RecordID = segs[i]
			} else {
				e.Resource = segs[i]
				e.RecordID = ""
			}
		}
	}
	if e.Action == "" {
		e.Action = "unknown"
	}
	return e
}

func isID(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
