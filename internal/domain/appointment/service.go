package appointment

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/listsync"
	"github.com/clinsys/clinsys/internal/platform/render"
)

// DefaultSort is the initial ordering of the appointment list.
const DefaultSort = "date,desc"

// SortOptions are the orderings the list offers.
var SortOptions = []string{DefaultSort, "date,asc", listsync.SortUpcoming, "patientName,asc", "status,asc"}

// PatientLookup is what appointments need to know about patients.
type PatientLookup interface {
	PatientName(ctx context.Context, id string) (string, error)
	IDsByCPF(ctx context.Context, cpf string) ([]int64, error)
}

// Handoff yields a patient id left by the patient list, at most once.
type Handoff interface {
	TakeHandoff() (string, bool)
}

type Service struct {
	repo     AppointmentRepository
	patients PatientLookup
	logger   zerolog.Logger
}

func NewService(repo AppointmentRepository, patients PatientLookup, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, logger: logger}
}

// List implements listsync.Source.
func (s *Service) List(ctx context.Context, query url.Values) (listsync.Collection[Appointment], error) {
	return s.repo.List(ctx, query)
}

func (s *Service) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n := Normalize(*a)
	return &n, nil
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) UpdateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID <= 0 {
		return form.Invalid("id", "Missing appointment id.")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, a)
}

func (s *Service) DeleteAppointment(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// PatientName looks up the display name for a raw patient id. Failures are
// logged and shown as the placeholder.
func (s *Service) PatientName(ctx context.Context, id string) string {
	id = strings.TrimSpace(id)
	if !form.IsPositiveInt(id) {
		return render.Placeholder
	}
	name, err := s.patients.PatientName(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", id).Msg("could not look up patient for prefill")
		return render.Placeholder
	}
	if name == "" {
		return render.Placeholder
	}
	return name
}

// Prefill is the patient a new appointment form starts with.
type Prefill struct {
	PatientID   string
	PatientName string
}

// Prefill picks the patient from the request (fromQuery) or, failing that,
// from the handoff left by the patient list, consuming it.
func (s *Service) Prefill(ctx context.Context, fromQuery string, handoff Handoff) (Prefill, bool) {
	id := strings.TrimSpace(fromQuery)
	if id == "" && handoff != nil {
		id, _ = handoff.TakeHandoff()
	}
	if id == "" {
		return Prefill{}, false
	}
	return Prefill{PatientID: id, PatientName: s.PatientName(ctx, id)}, true
}

// View is one activation of the appointment list.
type View struct {
	svc  *Service
	list *listsync.Synchronizer[Appointment]
	cpf  string
}

// NewView starts an appointment list at its first page.
func (s *Service) NewView(pageSize int) *View {
	return &View{
		svc: s,
		list: listsync.New[Appointment](s, listsync.State{PageSize: pageSize, Sort: DefaultSort},
			listsync.WithNormalizer(Normalize),
			listsync.WithLogger[Appointment](s.logger),
		),
	}
}

func (v *View) List() *listsync.Synchronizer[Appointment] { return v.list }

func (v *View) Load(ctx context.Context, r listsync.Renderer[Appointment]) (listsync.Result[Appointment], error) {
	return v.list.Load(ctx, r)
}

// CPF returns the active tax-id filter.
func (v *View) CPF() string { return v.cpf }

// Filter narrows the list by patient name and by patient CPF. The CPF is
// resolved to patient ids first; if that lookup fails the CPF filter is
// skipped. Unchanged filters keep the current page.
func (v *View) Filter(ctx context.Context, name, cpf string) {
	name = strings.TrimSpace(name)
	cpf = strings.TrimSpace(cpf)
	if v.list.State().Filters.Name == name && v.cpf == cpf {
		return
	}
	v.cpf = cpf

	f := listsync.Filters{Name: name}
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if cpf != "" {
		q.Set("cpf", cpf)
		f.Allow = listsync.ResolveAllowSet(ctx, v.svc.logger, "patientId", func(ctx context.Context) ([]int64, error) {
			return v.svc.patients.IDsByCPF(ctx, cpf)
		})
	}
	if len(q) > 0 {
		f.Query = q
	}
	v.list.SetFilters(f)
}

// Save creates a, or updates it when it has an id.
func (v *View) Save(ctx context.Context, a *Appointment) error {
	var err error
	if a.ID == 0 {
		err = v.svc.CreateAppointment(ctx, a)
	} else {
		err = v.svc.UpdateAppointment(ctx, a)
	}
	if err != nil {
		return err
	}
	v.list.Invalidate()
	return nil
}

func (v *View) Delete(ctx context.Context, id int64) error {
	if err := v.svc.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	v.list.Deleted()
	return nil
}
