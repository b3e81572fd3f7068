package appointment

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

const viewKey = "appointments"

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
	g.GET("/appointments", h.ListAppointments)
	g.GET("/appointments/new", h.NewAppointmentForm)
	g.POST("/appointments/new", h.CreateAppointment)
	g.GET("/appointments/patient-name", h.LookupPatientName)
	g.GET("/appointments/:id/edit", h.EditAppointmentForm)
	g.POST("/appointments/:id/edit", h.UpdateAppointment)
	g.POST("/appointments/:id/delete", h.DeleteAppointment)
}

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

func tableLayout() render.Layout[Appointment] {
	return render.Layout[Appointment]{
		Headers: []string{"Date", "Time", "Patient", "Doctor", "Status", "Paid"},
		Empty:   "No appointments found.",
		Cells: func(a Appointment) []render.Cell {
			return []render.Cell{
				render.Text(render.FormatDate(a.Date)),
				render.Text(a.Time),
				render.Text(a.PatientName),
				render.Text(a.UserName),
				render.Text(a.Status),
				render.Text(render.YesNo(a.Paid)),
			}
		},
		Actions: func(a Appointment) []render.Action {
			base := fmt.Sprintf("/appointments/%d", a.ID)
			return []render.Action{
				{Label: "Edit", Href: base + "/edit"},
				{Label: "Delete", Href: base + "/delete", Method: http.MethodPost, Confirm: "Delete this appointment?"},
			}
		},
	}
}

// CLILayout is the appointment table for the command line.
func CLILayout() render.Layout[Appointment] {
	l := tableLayout()
	l.Actions = nil
	return l
}

func filterFields() []form.Field {
	return []form.Field{
		{Name: "q", Label: "Patient", Type: "text"},
		{Name: "cpf", Label: "Patient CPF", Type: "text"},
		{Name: "sort", Label: "Sort", Type: "select", Options: SortOptions},
		{Name: "size", Label: "Per page", Type: "select", Options: []string{"5", "10", "20", "50"}},
		{Name: "page", Type: "hidden", Value: "0"},
	}
}

func (h *Handler) ListAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	v := h.activeView()
	q := c.QueryParams()
	if q.Has("q") || q.Has("cpf") {
		v.Filter(ctx, q.Get("q"), q.Get("cpf"))
	}
	v.List().Apply(pagination.Overlay(c, v.List().Cursor()))

	tbl := render.NewHTMLTable(tableLayout())
	_, err := v.Load(ctx, tbl)
	if errors.Is(err, listsync.ErrStale) {
		return c.Redirect(http.StatusSeeOther, c.Request().URL.String())
	}
	if lost, rerr := ui.SessionLost(c, err); lost {
		return rerr
	}

	page := ui.NewPage(c, "Appointments", viewKey)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load appointments")
		page.Alert(ui.Danger, "Failed to load appointments.")
	}

	name := v.List().State().Filters.Name
	cur := v.List().Cursor()
	values := map[string]any{"q": name, "cpf": v.CPF(), "sort": cur.Sort, "size": strconv.Itoa(cur.Size)}
	page.Filters = form.Fill(filterFields(), values)

	t := tbl.Table()
	t.Path = "/appointments"
	t.Query = url.Values{"q": {name}, "cpf": {v.CPF()}, "sort": {cur.Sort}, "size": {strconv.Itoa(cur.Size)}}
	page.WithTable(t)
	page.Create = "/appointments/new"
	return c.Render(http.StatusOK, ui.ListTemplate, page)
}

func (h *Handler) NewAppointmentForm(c echo.Context) error {
	values := map[string]any{"status": StatusScheduled, "paid": "false"}
	if pre, ok := h.svc.Prefill(c.Request().Context(), c.QueryParam("patientId"), h.handoff); ok {
		values["patientId"] = pre.PatientID
		values["patientName"] = pre.PatientName
	}
	page := ui.NewPage(c, "New appointment", viewKey)
	return h.renderForm(c, page, http.StatusOK, "/appointments/new", values)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := FromForm(form.Serialize(params))
	if err == nil {
		err = h.currentView().Save(c.Request().Context(), a)
	}
	if err != nil {
		return h.saveFailed(c, err, "New appointment", "/appointments/new", params)
	}
	return ui.Redirect(c, "/appointments", ui.Success, "Appointment saved.")
}

func (h *Handler) EditAppointmentForm(c echo.Context) error {
	id, err := parseParamID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		if lost, rerr := ui.SessionLost(c, err); lost {
			return rerr
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("failed to load appointment")
		return ui.Redirect(c, "/appointments", ui.Danger, "Could not load the selected appointment.")
	}

	values, err := form.ToMap(a)
	if err != nil {
		return err
	}
	if a.Status == "" {
		values["status"] = StatusScheduled
	}
	if a.PatientName == "" {
		values["patientName"] = render.Placeholder
	}
	page := ui.NewPage(c, "Edit appointment", viewKey)
	return h.renderForm(c, page, http.StatusOK, fmt.Sprintf("/appointments/%d/edit", id), values)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseParamID(c)
	if err != nil {
		return err
	}
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := FromForm(form.Serialize(params))
	if err == nil {
		a.ID = id
		err = h.currentView().Save(c.Request().Context(), a)
	}
	if err != nil {
		return h.saveFailed(c, err, "Edit appointment", fmt.Sprintf("/appointments/%d/edit", id), params)
	}
	return ui.Redirect(c, "/appointments", ui.Success, "Appointment saved.")
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseParamID(c)
	if err != nil {
		return err
	}
	if err := h.currentView().Delete(c.Request().Context(), id); err != nil {
		if lost, rerr := ui.SessionLost(c, err); lost {
			return rerr
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("failed to delete appointment")
		return ui.Redirect(c, "/appointments", ui.Danger, "Failed to delete. Try again or log in.")
	}
	return ui.Redirect(c, "/appointments", ui.Success, "Appointment deleted.")
}

// LookupPatientName answers the form's patient id field with the patient's
// name, or the placeholder.
func (h *Handler) LookupPatientName(c echo.Context) error {
	id := c.QueryParam("patientId")
	if !form.IsPositiveInt(id) {
		return c.JSON(http.StatusOK, map[string]string{"name": ""})
	}
	return c.JSON(http.StatusOK, map[string]string{"name": h.svc.PatientName(c.Request().Context(), id)})
}

func (h *Handler) renderForm(c echo.Context, page *ui.Page, status int, action string, values map[string]any) error {
	page.Fields = form.Fill(Fields(), values)
	page.Action = action
	page.Cancel = "/appointments"
	return c.Render(status, ui.FormTemplate, page)
}

func (h *Handler) saveFailed(c echo.Context, err error, title, action string, params url.Values) error {
	if lost, rerr := ui.SessionLost(c, err); lost {
		return rerr
	}
	status, kind := http.StatusUnprocessableEntity, ui.Warning
	if !form.IsValidation(err) {
		status, kind = http.StatusBadGateway, ui.Danger
		h.logger.Error().Err(err).Msg("failed to save appointment")
	}
	page := ui.NewPage(c, title, viewKey)
	page.Alert(kind, ui.ErrorMessage(err, "Could not save the appointment. Check the data or log in again."))

	values := make(map[string]any, len(params))
	for k := range params {
		values[k] = params.Get(k)
	}
	if id := params.Get("patientId"); form.IsPositiveInt(id) {
		values["patientName"] = h.svc.PatientName(c.Request().Context(), id)
	}
	return h.renderForm(c, page, status, action, values)
}

func parseParamID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
