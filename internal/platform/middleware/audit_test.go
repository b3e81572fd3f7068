package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path               string
		resource, id, verb string
	}{
		{"/patients/new", "patients", "", "create"},
		{"/patients/3/edit", "patients", "3", "update"},
		{"/appointments/12/delete", "appointments", "12", "delete"},
		{"/patients/3/appointment", "patients", "3", "handoff"},
		{"/patients/3/evolutions/new", "evolutions", "", "create"},
		{"/patients/3/evolutions/8/delete", "evolutions", "8", "delete"},
		{"/login", "session", "", "login"},
		{"/logout", "session", "", "logout"},
		{"/", "", "", "unknown"},
	}
	for _, tt := range tests {
		e := classify(tt.path)
		if e.Resource != tt.resource || e.RecordID != tt.id || e.Action != tt.verb {
			t.Errorf("classify(%q) = %s/%s/%s, want %s/%s/%s", tt.path,
				e.Resource, e.RecordID, e.Action, tt.resource, tt.id, tt.verb)
		}
	}
}

func TestAudit_RecordsPostsOnly(t *testing.T) {
	e := echo.New()
	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})
	mw := Audit(zerolog.Nop(), "user", rec)

	handler := mw(func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/patients")
	})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/patients/4/edit", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set("user", "Dr. Lima")
		c.Set(RequestIDKey, "rid-1")
		if err := handler(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
	entry := got[0]
	if entry.User != "Dr. Lima" || entry.RecordID != "4" || entry.Action != "update" || entry.RequestID != "rid-1" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.StatusCode != http.StatusSeeOther || !entry.Succeeded() {
		t.Errorf("expected a successful 303, got %d", entry.StatusCode)
	}
}

func TestAudit_HandlerErrorStatus(t *testing.T) {
	e := echo.New()
	var got AuditEntry
	mw := Audit(zerolog.Nop(), "user", AuditRecorderFunc(func(entry AuditEntry) error {
		got = entry
		return nil
	}))

	req := httptest.NewRequest(http.MethodPost, "/appointments/1/delete", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	err := mw(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "missing csrf token")
	})(c)

	if err == nil {
		t.Fatal("expected the handler error to pass through")
	}
	if got.StatusCode != http.StatusBadRequest || got.Succeeded() {
		t.Errorf("expected a failed 400 entry, got %+v", got)
	}
}
