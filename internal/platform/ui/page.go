package ui

import (
	"github.com/labstack/echo/v4"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/render"
)

// Context keys set by the web middleware.
const (
	CSRFKey = "csrf"
	UserKey = "user"
)

// Template names every page handler renders through echo's Renderer.
const (
	ListTemplate  = "list"
	FormTemplate  = "form"
	LoginTemplate = "login"
)

// Page is the data every template receives.
type Page struct {
	Title  string
	Nav    string
	User   string
	CSRF   string
	Alerts []Message

	// List pages.
	Table   *render.Table
	Filters []form.Field
	Create  string

	// Form pages.
	Fields []form.Field
	Action string
	Cancel string

	// Extra carries page-specific values, e.g. the patient an evolution
	// list belongs to.
	Extra map[string]any
}

// NewPage starts a page with the request's session user, CSRF token and
// pending alerts.
func NewPage(c echo.Context, title, nav string) *Page {
	p := &Page{Title: title, Nav: nav, Alerts: Pop(c), Extra: map[string]any{}}
	if tok, ok := c.Get(CSRFKey).(string); ok {
		p.CSRF = tok
	}
	if u, ok := c.Get(UserKey).(string); ok {
		p.User = u
	}
	return p
}

// Alert adds an alert shown on this page only.
func (p *Page) Alert(kind, text string) *Page {
	p.Alerts = append(p.Alerts, Message{Kind: kind, Text: text})
	return p
}

// WithTable attaches a rendered table and passes the CSRF token to its
// row actions.
func (p *Page) WithTable(t render.Table) *Page {
	t.CSRF = p.CSRF
	p.Table = &t
	return p
}
