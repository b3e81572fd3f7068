package evolution

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

// Notes live under the patients section of the navigation.
const nav = "patients"

type Handler struct {
	svc      *Service
	tracker  *listsync.Tracker
	pageSize int
	logger   zerolog.Logger

	mu   sync.Mutex
	view *View
}

func NewHandler(svc *Service, tracker *listsync.Tracker, pageSize int, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, tracker: tracker, pageSize: pageSize, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/patients/:id/evolutions", h.ListEvolutions)
	g.GET("/patients/:id/evolutions/new", h.NewEvolutionForm)
	g.POST("/patients/:id/evolutions/new", h.CreateEvolution)
	g.GET("/patients/:id/evolutions/:eid/edit", h.EditEvolutionForm)
	g.POST("/patients/:id/evolutions/:eid/edit", h.UpdateEvolution)
	g.POST("/patients/:id/evolutions/:eid/delete", h.DeleteEvolution)
}

func viewKey(patientID int64) string {
	return fmt.Sprintf("evolutions:%d", patientID)
}

// activeView returns the note list of patientID. Each patient's list is a
// separate view.
func (h *Handler) activeView(patientID int64) *View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tracker.Activate(viewKey(patientID)) || h.view == nil || h.view.PatientID() != patientID {
		h.view = h.svc.NewView(patientID, h.pageSize)
	}
	return h.view
}

func (h *Handler) currentView(patientID int64) *View {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.view == nil || h.view.PatientID() != patientID {
		h.view = h.svc.NewView(patientID, h.pageSize)
	}
	return h.view
}

func listPath(patientID int64) string {
	return fmt.Sprintf("/patients/%d/evolutions", patientID)
}

func tableLayout(patientID int64) render.Layout[Evolution] {
	return render.Layout[Evolution]{
		Headers: []string{"Date", "Author", "Content", "Appointment"},
		Empty:   "No evolutions recorded for this patient.",
		Cells: func(e Evolution) []render.Cell {
			return []render.Cell{
				render.Text(render.FormatDate(e.CreatedAt)),
				render.Text(e.AuthorName),
				render.MarkdownCell(e.Content),
				render.Text(e.Field("appointmentId")),
			}
		},
		Actions: func(e Evolution) []render.Action {
			base := fmt.Sprintf("%s/%d", listPath(patientID), e.ID)
			return []render.Action{
				{Label: "Edit", Href: base + "/edit"},
				{Label: "Delete", Href: base + "/delete", Method: http.MethodPost, Confirm: "Delete this evolution?"},
			}
		},
	}
}

// CLILayout is the note table for the command line.
func CLILayout() render.Layout[Evolution] {
	l := tableLayout(0)
	l.Actions = nil
	return l
}

func filterFields() []form.Field {
	return []form.Field{
		{Name: "sort", Label: "Sort", Type: "select", Options: SortOptions},
		{Name: "size", Label: "Per page", Type: "select", Options: []string{"5", "10", "20", "50"}},
		{Name: "page", Type: "hidden", Value: "0"},
	}
}

func (h *Handler) ListEvolutions(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v := h.activeView(patientID)
	v.List().Apply(pagination.Overlay(c, v.List().Cursor()))

	tbl := render.NewHTMLTable(tableLayout(patientID))
	_, err = v.Load(ctx, tbl)
	if errors.Is(err, listsync.ErrStale) {
		return c.Redirect(http.StatusSeeOther, c.Request().URL.String())
	}
	if lost, rerr := ui.SessionLost(c, err); lost {
		return rerr
	}

	page := ui.NewPage(c, "Evolutions: "+h.svc.PatientLabel(ctx, patientID), nav)
	if err != nil {
		h.logger.Error().Err(err).Int64("patient_id", patientID).Msg("failed to load evolutions")
		page.Alert(ui.Danger, "Failed to load evolutions.")
	}

	cur := v.List().Cursor()
	page.Filters = form.Fill(filterFields(), map[string]any{"sort": cur.Sort, "size": strconv.Itoa(cur.Size)})

	t := tbl.Table()
	t.Path = listPath(patientID)
	t.Query = url.Values{"sort": {cur.Sort}, "size": {strconv.Itoa(cur.Size)}}
	page.WithTable(t)
	page.Create = listPath(patientID) + "/new"
	return c.Render(http.StatusOK, ui.ListTemplate, page)
}

func (h *Handler) NewEvolutionForm(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	page := ui.NewPage(c, "New evolution: "+h.svc.PatientLabel(c.Request().Context(), patientID), nav)
	return h.renderForm(c, page, http.StatusOK, patientID, listPath(patientID)+"/new", nil)
}

func (h *Handler) CreateEvolution(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := FromForm(form.Serialize(params), patientID)
	if err == nil {
		err = h.currentView(patientID).Save(c.Request().Context(), e)
	}
	if err != nil {
		return h.saveFailed(c, err, "New evolution", patientID, listPath(patientID)+"/new", e)
	}
	return ui.Redirect(c, listPath(patientID), ui.Success, "Evolution saved.")
}

func (h *Handler) EditEvolutionForm(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "eid")
	if err != nil {
		return err
	}
	e, err := h.svc.GetEvolution(c.Request().Context(), id)
	if err != nil {
		if lost, rerr := ui.SessionLost(c, err); lost {
			return rerr
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("failed to load evolution")
		return ui.Redirect(c, listPath(patientID), ui.Danger, "Could not load the evolution.")
	}
	page := ui.NewPage(c, "Edit evolution", nav)
	return h.renderForm(c, page, http.StatusOK, patientID, fmt.Sprintf("%s/%d/edit", listPath(patientID), id), e)
}

func (h *Handler) UpdateEvolution(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "eid")
	if err != nil {
		return err
	}
	params, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := FromForm(form.Serialize(params), patientID)
	e.ID = id
	if err == nil {
		err = h.currentView(patientID).Save(c.Request().Context(), e)
	}
	if err != nil {
		return h.saveFailed(c, err, "Edit evolution", patientID, fmt.Sprintf("%s/%d/edit", listPath(patientID), id), e)
	}
	return ui.Redirect(c, listPath(patientID), ui.Success, "Evolution updated.")
}

func (h *Handler) DeleteEvolution(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	id, err := parseID(c, "eid")
	if err != nil {
		return err
	}
	if err := h.currentView(patientID).Delete(c.Request().Context(), id); err != nil {
		if lost, rerr := ui.SessionLost(c, err); lost {
			return rerr
		}
		h.logger.Error().Err(err).Int64("id", id).Msg("failed to delete evolution")
		return ui.Redirect(c, listPath(patientID), ui.Danger, "Failed to delete evolution.")
	}
	return ui.Redirect(c, listPath(patientID), ui.Success, "Evolution deleted.")
}

func (h *Handler) renderForm(c echo.Context, page *ui.Page, status int, patientID int64, action string, e *Evolution) error {
	page.Fields = Fields()
	if e != nil {
		values, err := form.ToMap(e)
		if err != nil {
			return err
		}
		page.Fields = form.Fill(page.Fields, values)
	}
	page.Action = action
	page.Cancel = listPath(patientID)
	return c.Render(status, ui.FormTemplate, page)
}

func (h *Handler) saveFailed(c echo.Context, err error, title string, patientID int64, action string, e *Evolution) error {
	if lost, rerr := ui.SessionLost(c, err); lost {
		return rerr
	}
	status, kind := http.StatusUnprocessableEntity, ui.Warning
	if !form.IsValidation(err) {
		status, kind = http.StatusBadGateway, ui.Danger
		h.logger.Error().Err(err).Msg("failed to save evolution")
	}
	page := ui.NewPage(c, title, nav)
	page.Alert(kind, ui.ErrorMessage(err, "Failed to save evolution."))
	return h.renderForm(c, page, status, patientID, action, e)
}

func parseID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
