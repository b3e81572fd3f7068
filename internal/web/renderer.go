package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/clinsys/clinsys/internal/platform/render"
	"github.com/clinsys/clinsys/internal/platform/ui"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const errorTemplate = "error"

// Renderer renders pages as layout.html wrapped around one page template.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"table": func(t *render.Table) (template.HTML, error) {
			if t == nil {
				return "", nil
			}
			return t.HTML()
		},
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{ui.ListTemplate, ui.FormTemplate, ui.LoginTemplate, errorTemplate} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/fields.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}
