package patient

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/listsync"
	"github.com/clinsys/clinsys/internal/platform/render"
	"github.com/clinsys/clinsys/internal/platform/ui"
	"github.com/clinsys/clinsys/pkg/pagination"
)

const viewKey = "patients"

// Handoff records the patient a new appointment should be prefilled with.
type Handoff interface {
	SetHandoff(patientID string) error
}

type Handler struct {
	svc      *Service
	tracker  *listsync.Tracker
	handoff  Handoff
	pageSize int
	logger   zerolog.Logger

	mu   sync.Mutex
	view *View
}

func NewHandler(svc *Service, tracker *listsync.Tracker, handoff Handoff, pageSize int, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, tracker: tracker, handoff: handoff, pageSize: pageSize, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/new", h.NewPatientForm)
	g.POST("/patients/new", h.CreatePatient)
	g.GET("/patients/:id/edit", h.EditPatientForm)
	g.POST("/patients/:id/edit", h.UpdatePatient)
	g.POST("/patients/:id/delete", h.DeletePatient)
	g.POST("/patients/:id/appointment", h.NewAppointment)
}

// activeView returns the list view, starting a new one when the user comes
// from another list.
func (h *Handler) activeView() *View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tracker.Activate(viewKey) || h.view == nil {
		h.view = h.svc.NewView(h.pageSize)
	}
	return h.view
}

func (h *Handler) currentView() *View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.view == nil {
		h.view = h.svc.NewView(h.pageSize)
	}
	return h.view
}

func tableLayout() render.Layout[Patient] {
	return render.Layout[Patient]{
		Headers: []string{"Name", "CPF", "Email", "Phone", "Birth date", "Gender"},
		Empty:   "No patients found.",
		Cells: func(p Patient) []render.Cell {
			return []render.Cell{
				render.Text(p.Name),
				render.Opt(p.CPF),
				render.Opt(p.Email),
				render.Opt(p.Phone),
				render.Text(render.FormatDate(deref(p.BirthDate))),
				render.Opt(p.Gender),
			}
		},
		Actions: func(p Patient) []render.Action {
			base := fmt.Sprintf("/patients/%d", p.ID)
			return []render.Action{
				{Label: "Edit", Href: base + "/edit"},
				{Label: "Delete", Href: base + "/delete", Method: http.MethodPost, Confirm: "Delete this patient?"},
				{Label: "New appointment", Href: base + "/appointment", Method: http.MethodPost, Style: "success"},
				{Label: "Evolutions", Href: base + "/evolutions", Style: "secondary"},
			}
		},
	}
}

// CLILayout is the patient table for the command line.
func CLILayout() render.Layout[Patient] {
	l := tableLayout()
	l.Actions = nil
	return l
}

func filterFields() []form.Field {
	return []form.Field{
		{Name: "q", Label: "Name", Type: "text"},
		{Name: "sort", Label: "Sort", Type: "select", Options: []string{"name,asc", "name,desc"}},
		{Name: "size", Label: "Per page", Type: "select", Options: []string{"5", "10", "20", "50"}},
		{Name: "page", Type: "hidden", Value: "0"},
	}
}

func (h *Handler) ListPatients(c echo.Context) error {
	v := h.activeView()
	if c.QueryParams().Has("q") {
		v.Search(c.QueryParam("q"))
	}
	v.List().Apply(pagination.Overlay(c, v.List().Cursor()))

	tbl := render.NewHTMLTable(tableLayout())
	_, err := v.Load(c.Request().Context(), tbl)
	if errors.Is(err, listsync.ErrStale) {
		return c.Redirect(http.StatusSeeOther, c.Request().URL.String())
	}
	if lost, rerr := ui.SessionLost(c, err); lost {
		return rerr
	}

	page := ui.NewPage(c, "Patients", viewKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load patients")
		page.Alert(ui.Danger, "Failed to load patients.")
	}

	st := v.List().State()
	cur := v.List().Cursor()
	query := url.Values{"q": {st.Filters.Name}, "sort": {cur.Sort}, "size": {strconv.Itoa(cur.Size)}}
	page.Filters = form.Fill(filterFields(), map[string]any{"q": st.Filters.Name, "sort": cur.Sort, "size": strconv.Itoa(cur.Size)})

	t := tbl.Table()
	t.Path = "/patients"
	t.Query = query
	page.WithTable(t)
	page.Create = "/patients/new"
	return c.Render(http.StatusOK, ui.ListTemplate, page)
}

func (h *Handler) NewPatientForm(c echo.Context) error {
	return h.renderForm(c, ui.NewPage(c, "New patient", viewKey), http.StatusOK, "/patients/new", nil)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := FromForm(form.Serialize(params))
	if err := h.currentView().Save(c.Request().Context(), p); err != nil {
		return h.saveFailed(c, err, "New patient", "/patients/new", p)
	}
	return ui.Redirect(c, "/patients", ui.Success, "Patient created.")
}

func (h *Handler) EditPatientForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		if lost, rerr := ui.SessionLost(c, err); lost {
			return rerr
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("failed to load patient")
		return ui.Redirect(c, "/patients", ui.Danger, "Could not load the patient.")
	}
	return h.renderForm(c, ui.NewPage(c, editTitle(p), viewKey), http.StatusOK, fmt.Sprintf("/patients/%d/edit", id), p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := FromForm(form.Serialize(params))
	p.ID = id
	if err := h.currentView().Save(c.Request().Context(), p); err != nil {
		return h.saveFailed(c, err, editTitle(p), fmt.Sprintf("/patients/%d/edit", id), p)
	}
	return ui.Redirect(c, "/patients", ui.Success, "Patient updated.")
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.currentView().Delete(c.Request().Context(), id); err != nil {
		if lost, rerr := ui.SessionLost(c, err); lost {
			return rerr
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("failed to delete patient")
		return ui.Redirect(c, "/patients", ui.Danger, "Failed to delete patient.")
	}
	return ui.Redirect(c, "/patients", ui.Success, "Patient deleted.")
}

// NewAppointment hands the patient over to the new-appointment form.
func (h *Handler) NewAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.handoff.SetHandoff(strconv.FormatInt(id, 10)); err != nil {
		h.logger.Error().Err(err).Msg("failed to store appointment handoff")
		return ui.Redirect(c, "/patients", ui.Danger, "Could not start a new appointment.")
	}
	return c.Redirect(http.StatusSeeOther, "/appointments/new")
}

func (h *Handler) renderForm(c echo.Context, page *ui.Page, status int, action string, p *Patient) error {
	page.Fields = Fields()
	if p != nil {
		values, err := form.ToMap(p)
		if err != nil {
			return err
		}
		page.Fields = form.Fill(page.Fields, values)
	}
	page.Action = action
	page.Cancel = "/patients"
	return c.Render(status, ui.FormTemplate, page)
}

func (h *Handler) saveFailed(c echo.Context, err error, title, action string, p *Patient) error {
	if lost, rerr := ui.SessionLost(c, err); lost {
		return rerr
	}
	status := http.StatusUnprocessableEntity
	if !form.IsValidation(err) {
		status = http.StatusBadGateway
		h.logger.Error().Err(err).Msg("failed to save patient")
	}
	page := ui.NewPage(c, title, viewKey)
	page.Alert(alertKind(err), ui.ErrorMessage(err, "Failed to save patient."))
	return h.renderForm(c, page, status, action, p)
}

func alertKind(err error) string {
	if form.IsValidation(err) {
		return ui.Warning
	}
	return ui.Danger
}

func editTitle(p *Patient) string {
	if p.Name == "" {
		return "Edit: Patient"
	}
	return "Edit: " + p.Name
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
