package patient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/listsync"
	"github.com/clinsys/clinsys/pkg/pagination"
)

// DefaultSort is the initial ordering of the patient list.
const DefaultSort = "name,asc"

type Service struct {
	repo   PatientRepository
	logger zerolog.Logger
}

func NewService(repo PatientRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// List implements listsync.Source.
func (s *Service) List(ctx context.Context, query url.Values) (listsync.Collection[Patient], error) {
	return s.repo.List(ctx, query)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	n := Normalize(*p)
	return &n, nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.ID <= 0 {
		return form.Invalid("id", "Missing patient id.")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// PatientName returns the name of patient id. It accepts the raw form value.
func (s *Service) PatientName(ctx context.Context, id string) (string, error) {
	if !form.IsPositiveInt(id) {
		return "", form.Invalid("patientId", "Enter a valid patient ID.")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return "", err
	}
	p, err := s.repo.Get(ctx, n)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// cpfLookupPages bounds how many backend pages a CPF lookup walks.
const cpfLookupPages = 20

// IDsByCPF resolves a (partial) CPF into the ids of matching patients. The
// backend is asked to filter; the match is repeated here in case it does
// not. Paged replies are followed up to cpfLookupPages pages.
func (s *Service) IDsByCPF(ctx context.Context, cpf string) ([]int64, error) {
	digits := Digits(cpf)
	if digits == "" {
		return nil, form.Invalid("cpf", "CPF filter must contain digits.")
	}

	q := url.Values{}
	q.Set("cpf", digits)
	q.Set("size", strconv.Itoa(pagination.MaxSize))

	var candidates []Patient
	total := 0
	for page := 0; ; page++ {
		q.Set("page", strconv.Itoa(page))
		coll, err := s.repo.List(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("lookup patients by cpf: %w", err)
		}

		more := false
		switch c := coll.(type) {
		case listsync.Paged[Patient]:
			env := c.Envelope
			candidates = append(candidates, env.Content...)
			total = env.TotalElements
			more = env.Last != nil && !*env.Last && len(env.Content) > 0 &&
				(env.TotalPages == 0 || page+1 < env.TotalPages)
		case listsync.Unpaged[Patient]:
			candidates = c.Items
			total = len(c.Items)
		}
		if !more || page+1 == cpfLookupPages {
			break
		}
	}
	if total > len(candidates) {
		s.logger.Warn().
			Int("fetched", len(candidates)).
			Int("total", total).
			Msg("cpf lookup truncated")
	}

	ids := make([]int64, 0, len(candidates))
	for _, p := range candidates {
		if p.CPF != nil && strings.Contains(Digits(*p.CPF), digits) {
			ids = append(ids, p.ID)
		}
	}
	s.logger.Debug().Int("matches", len(ids)).Msg("cpf lookup")
	return ids, nil
}

// View is one activation of the patient list.
type View struct {
	svc  *Service
	list *listsync.Synchronizer[Patient]
}

// NewView starts a patient list at its first page.
func (s *Service) NewView(pageSize int) *View {
	return &View{
		svc: s,
		list: listsync.New[Patient](s, listsync.State{PageSize: pageSize, Sort: DefaultSort},
			listsync.WithNormalizer(Normalize),
			listsync.WithLogger[Patient](s.logger),
		),
	}
}

// List exposes the view's synchronizer for navigation.
func (v *View) List() *listsync.Synchronizer[Patient] { return v.list }

func (v *View) Load(ctx context.Context, r listsync.Renderer[Patient]) (listsync.Result[Patient], error) {
	return v.list.Load(ctx, r)
}

// Search filters by name (contains, case-insensitive). A changed term
// returns to the first page.
func (v *View) Search(name string) {
	name = strings.TrimSpace(name)
	if v.list.State().Filters.Name == name {
		return
	}
	f := listsync.Filters{Name: name}
	if name != "" {
		f.Query = url.Values{"name": {name}}
	}
	v.list.SetFilters(f)
}

// Save creates p, or updates it when it has an id.
func (v *View) Save(ctx context.Context, p *Patient) error {
	var err error
	if p.ID == 0 {
		err = v.svc.CreatePatient(ctx, p)
	} else {
		err = v.svc.UpdatePatient(ctx, p)
	}
	if err != nil {
		return err
	}
	v.list.Invalidate()
	return nil
}

func (v *View) Delete(ctx context.Context, id int64) error {
	if err := v.svc.DeletePatient(ctx, id); err != nil {
		return err
	}
	v.list.Deleted()
	return nil
}
