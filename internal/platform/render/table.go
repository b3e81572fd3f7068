// Package render turns list rows into tables for the HTML front-end and the
// command line.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clinsys/clinsys/pkg/pagination"
)

// Placeholder is shown for missing values.
const Placeholder = "—"

// Cell is one table cell. HTML, when set, is trusted markup already produced
// by a safe renderer; otherwise Text is escaped on output.
type Cell struct {
	Text string
	HTML template.HTML
}

// Text builds a plain cell; blank values become the placeholder.
func Text(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{Text: Placeholder}
	}
	return Cell{Text: s}
}

// Opt builds a plain cell from an optional value.
func Opt(s *string) Cell {
	if s == nil {
		return Cell{Text: Placeholder}
	}
	return Text(*s)
}

// Action is a row control. Method POST renders a small form, anything else a
// link.
type Action struct {
	Label   string
	Href    string
	Method  string
	Confirm string
	Style   string
}

// Layout describes how rows of T become table rows.
type Layout[T any] struct {
	Headers []string
	Empty   string
	Cells   func(T) []Cell
	Actions func(T) []Action
}

// Row is a rendered table row.
type Row struct {
	Cells   []Cell
	Actions []Action
}

// Table is the view model consumed by the page templates.
type Table struct {
	Headers  []string
	Rows     []Row
	Empty    string
	Pager    pagination.Info
	HasPager bool
	// CSRF is echoed into row action forms.
	CSRF string
	// Path and Query build the pager links; page is replaced.
	Path  string
	Query url.Values
}

// PageHref links to page n of the same view.
func (t Table) PageHref(n int) string {
	q := url.Values{}
	for k, v := range t.Query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(n))
	return t.Path + "?" + q.Encode()
}

func (t Table) PrevHref() string { return t.PageHref(max(t.Pager.Number-1, 0)) }

func (t Table) NextHref() string { return t.PageHref(t.Pager.Number + 1) }

// Columns is the column count including the actions column.
func (t Table) Columns() int {
	return len(t.Headers) + 1
}

// HTML renders the table and its pager.
func (t Table) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := tableTmpl.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// HTMLTable collects a load's rows and pager into a Table.
type HTMLTable[T any] struct {
	layout Layout[T]
	table  Table
}

// NewHTMLTable creates an empty HTMLTable for layout.
func NewHTMLTable[T any](layout Layout[T]) *HTMLTable[T] {
	return &HTMLTable[T]{
		layout: layout,
		table:  Table{Headers: layout.Headers, Empty: layout.Empty},
	}
}

func (h *HTMLTable[T]) RenderRows(rows []T) {
	h.table.Rows = make([]Row, 0, len(rows))
	for _, r := range rows {
		row := Row{Cells: h.layout.Cells(r)}
		if h.layout.Actions != nil {
			row.Actions = h.layout.Actions(r)
		}
		h.table.Rows = append(h.table.Rows, row)
	}
}

func (h *HTMLTable[T]) RenderPager(info pagination.Info) {
	h.table.Pager = info
	h.table.HasPager = true
}

// Table returns what was rendered so far.
func (h *HTMLTable[T]) Table() Table {
	return h.table
}

var tableTmpl = template.Must(template.New("table").Funcs(template.FuncMap{
	"cell": func(c Cell) any {
		if c.HTML != "" {
			return c.HTML
		}
		return c.Text
	},
	"post": func(a Action) bool { return strings.EqualFold(a.Method, "POST") },
}).Parse(`<table class="table table-striped align-middle">
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}<th class="text-end"></th></tr></thead>
<tbody>
{{- if not .Rows}}
<tr><td colspan="{{.Columns}}" class="text-center text-muted">{{.Empty}}</td></tr>
{{- end}}
{{- range .Rows}}
<tr>{{range .Cells}}<td>{{cell .}}</td>{{end}}<td class="text-end">
{{- range .Actions}}
{{- if post .}}<form method="post" action="{{.Href}}" class="d-inline"{{if .Confirm}} data-confirm="{{.Confirm}}"{{end}}><input type="hidden" name="_csrf" value="{{$.CSRF}}"><button class="btn btn-sm btn-outline-{{or .Style "danger"}} me-1">{{.Label}}</button></form>
{{- else}}<a class="btn btn-sm btn-outline-{{or .Style "primary"}} me-1" href="{{.Href}}">{{.Label}}</a>
{{- end}}
{{- end}}</td></tr>
{{- end}}
</tbody>
</table>
{{- if .HasPager}}
<nav class="d-flex align-items-center gap-2">
<a class="btn btn-outline-secondary btn-sm{{if .Pager.PrevDisabled}} disabled{{end}}" href="{{.PrevHref}}">&laquo;</a>
<span id="pageInfo">{{.Pager.Caption}}</span>
<a class="btn btn-outline-secondary btn-sm{{if .Pager.NextDisabled}} disabled{{end}}" href="{{.NextHref}}">&raquo;</a>
</nav>
{{- end}}`))

// FormatDate turns an ISO date or timestamp into dd/mm/yyyy. Blank input
// yields the placeholder; anything unparsable is returned unchanged.
func FormatDate(iso string) string {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return Placeholder
	}
	day, _, _ := strings.Cut(iso, "T")
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		return iso
	}
	return d.Format("02/01/2006")
}

// YesNo renders a boolean flag.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
