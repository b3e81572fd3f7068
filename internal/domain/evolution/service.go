package evolution

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/listsync"
)

// DefaultSort shows the newest notes first.
const DefaultSort = "createdAt,desc"

var SortOptions = []string{DefaultSort, "createdAt,asc", "authorName,asc"}

// PatientNamer resolves the patient a note list belongs to.
type PatientNamer interface {
	PatientName(ctx context.Context, id string) (string, error)
}

type Service struct {
	repo     EvolutionRepository
	patients PatientNamer
	logger   zerolog.Logger
}

func NewService(repo EvolutionRepository, patients PatientNamer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, logger: logger}
}

func (s *Service) ListByPatient(ctx context.Context, patientID int64, query url.Values) (listsync.Collection[Evolution], error) {
	return s.repo.ListByPatient(ctx, patientID, query)
}

func (s *Service) GetEvolution(ctx context.Context, id int64) (*Evolution, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n := Normalize(*e)
	return &n, nil
}

func (s *Service) CreateEvolution(ctx context.Context, e *Evolution) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, e)
}

func (s *Service) UpdateEvolution(ctx context.Context, e *Evolution) error {
	if e.ID <= 0 {
		return form.Invalid("id", "Missing evolution id.")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, e)
}

func (s *Service) DeleteEvolution(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// PatientLabel names the patient for page titles, falling back to the id.
func (s *Service) PatientLabel(ctx context.Context, patientID int64) string {
	id := strconv.FormatInt(patientID, 10)
	if s.patients == nil {
		return "Patient " + id
	}
	name, err := s.patients.PatientName(ctx, id)
	if err != nil || name == "" {
		if err != nil {
			s.logger.Warn().Err(err).Int64("patient_id", patientID).Msg("could not look up patient name")
		}
		return "Patient " + id
	}
	return name
}

// View is one activation of a patient's note list.
type View struct {
	svc       *Service
	patientID int64
	list      *listsync.Synchronizer[Evolution]
}

// NewView starts the note list of patientID at its first page.
func (s *Service) NewView(patientID int64, pageSize int) *View {
	src := listsync.SourceFunc[Evolution](func(ctx context.Context, query url.Values) (listsync.Collection[Evolution], error) {
		return s.ListByPatient(ctx, patientID, query)
	})
	return &View{
		svc:       s,
		patientID: patientID,
		list: listsync.New[Evolution](src, listsync.State{PageSize: pageSize, Sort: DefaultSort},
			listsync.WithNormalizer(Normalize),
			listsync.WithLogger[Evolution](s.logger),
		),
	}
}

func (v *View) PatientID() int64 { return v.patientID }

func (v *View) List() *listsync.Synchronizer[Evolution] { return v.list }

func (v *View) Load(ctx context.Context, r listsync.Renderer[Evolution]) (listsync.Result[Evolution], error) {
	return v.list.Load(ctx, r)
}

// Save creates e for the view's patient, or updates it when it has an id.
func (v *View) Save(ctx context.Context, e *Evolution) error {
	e.PatientID = v.patientID
	var err error
	if e.ID == 0 {
		err = v.svc.CreateEvolution(ctx, e)
	} else {
		err = v.svc.UpdateEvolution(ctx, e)
	}
	if err != nil {
		return err
	}
	v.list.Invalidate()
	return nil
}

func (v *View) Delete(ctx context.Context, id int64) error {
	if err := v.svc.DeleteEvolution(ctx, id); err != nil {
		return err
	}
	v.list.Deleted()
	return nil
}
