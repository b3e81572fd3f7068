// Package listsync loads list views from a backend that may or may not
// paginate. Bare-array replies are cached and filtered, sorted and sliced on
// the client; page envelopes are taken as delivered.
package listsync

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/pkg/pagination"
)

// ErrStale is returned by Load when a newer Load started before this one
// finished. Its result was not rendered.
var ErrStale = errors.New("listsync: superseded by a newer load")

// Source fetches one collection. A nil query asks for the bare list.
type Source[T any] interface {
	List(ctx context.Context, query url.Values) (Collection[T], error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, query url.Values) (Collection[T], error)

func (f SourceFunc[T]) List(ctx context.Context, query url.Values) (Collection[T], error) {
	return f(ctx, query)
}

// Renderer receives the rows and pager of a completed load. It must not call
// back into the Synchronizer.
type Renderer[T any] interface {
	RenderRows(rows []T)
	RenderPager(info pagination.Info)
}

// State is the cursor of a list view.
type State struct {
	PageIndex int
	PageSize  int
	Sort      string
	Filters   Filters
}

// Result is what a Load produced.
type Result[T any] struct {
	Rows  []T
	Info  pagination.Info
	Paged bool
}

// Option configures a Synchronizer.
type Option[T Row] func(*Synchronizer[T])

// WithNormalizer resolves denormalized display fields on every fetched item.
func WithNormalizer[T Row](fn func(T) T) Option[T] {
	return func(s *Synchronizer[T]) { s.normalize = fn }
}

// WithLogger sets the logger.
func WithLogger[T Row](l zerolog.Logger) Option[T] {
	return func(s *Synchronizer[T]) { s.logger = l }
}

// WithServerSort maps the view's sort token to what the backend accepts.
func WithServerSort[T Row](fn func(string) string) Option[T] {
	return func(s *Synchronizer[T]) { s.serverSort = fn }
}

// Synchronizer holds one list view's state and its client-side cache. Build
// one per view activation and drop it on navigation.
type Synchronizer[T Row] struct {
	src        Source[T]
	normalize  func(T) T
	serverSort func(string) string
	logger     zerolog.Logger

	mu        sync.Mutex
	state     State
	cache     []T
	seq       uint64
	lastCount int
}

// New creates a Synchronizer starting at initial.
func New[T Row](src Source[T], initial State, opts ...Option[T]) *Synchronizer[T] {
	if initial.PageSize <= 0 {
		initial.PageSize = pagination.DefaultSize
	}
	if initial.PageIndex < 0 {
		initial.PageIndex = 0
	}
	s := &Synchronizer[T]{
		src:        src,
		state:      initial,
		serverSort: defaultServerSort,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func defaultServerSort(token string) string {
	if token == SortUpcoming {
		return "date,asc"
	}
	return token
}

// State returns a copy of the current view state.
func (s *Synchronizer[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cached returns the number of items held in the client-side cache.
func (s *Synchronizer[T]) Cached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// SetPage moves to page n (clamped at 0).
func (s *Synchronizer[T]) SetPage(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.state.PageIndex = n
	s.mu.Unlock()
}

// Next advances one page. The pager's "last" flag is what stops the user.
func (s *Synchronizer[T]) Next() {
	s.mu.Lock()
	s.state.PageIndex++
	s.mu.Unlock()
}

// Prev goes back one page; it is a no-op on the first page.
func (s *Synchronizer[T]) Prev() {
	s.mu.Lock()
	if s.state.PageIndex > 0 {
		s.state.PageIndex--
	}
	s.mu.Unlock()
}

// SetSort changes the sort token.
func (s *Synchronizer[T]) SetSort(token string) {
	s.mu.Lock()
	s.state.Sort = token
	s.mu.Unlock()
}

// SetSize changes the page size and returns to the first page.
func (s *Synchronizer[T]) SetSize(n int) {
	if n <= 0 {
		n = pagination.DefaultSize
	}
	s.mu.Lock()
	s.state.PageSize = n
	s.state.PageIndex = 0
	s.mu.Unlock()
}

// Cursor returns the page, size and sort of the view.
func (s *Synchronizer[T]) Cursor() pagination.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pagination.Params{Page: s.state.PageIndex, Size: s.state.PageSize, Sort: s.state.Sort}
}

// Apply moves the view to the given cursor.
func (s *Synchronizer[T]) Apply(p pagination.Params) {
	if p.Size <= 0 {
		p.Size = pagination.DefaultSize
	}
	s.mu.Lock()
	s.state.PageIndex = max(p.Page, 0)
	s.state.PageSize = p.Size
	s.state.Sort = p.Sort
	s.mu.Unlock()
}

// SetFilters replaces the filters and returns to the first page.
func (s *Synchronizer[T]) SetFilters(f Filters) {
	s.mu.Lock()
	s.state.Filters = f
	s.state.PageIndex = 0
	s.mu.Unlock()
}

// Invalidate drops the cache so the next Load re-fetches. Call it after any
// successful create or update.
func (s *Synchronizer[T]) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// Deleted invalidates the cache after a successful delete and steps back a
// page when the deleted row was the only one shown on a non-first page.
func (s *Synchronizer[T]) Deleted() {
	s.mu.Lock()
	s.cache = nil
	if s.lastCount == 1 && s.state.PageIndex > 0 {
		s.state.PageIndex--
	}
	s.mu.Unlock()
}

// Load fetches the collection, reconciles its shape and hands the current
// page to r (which may be nil). Only the most recently started Load renders;
// older ones return ErrStale.
func (s *Synchronizer[T]) Load(ctx context.Context, r Renderer[T]) (Result[T], error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	st := s.state
	s.mu.Unlock()

	params := pagination.Params{Page: st.PageIndex, Size: st.PageSize, Sort: s.serverSort(st.Sort)}
	query := params.Query()
	for k, v := range st.Filters.Query {
		query[k] = append([]string(nil), v...)
	}

	coll, err := s.src.List(ctx, query)
	if err != nil {
		if gateway.IsAuth(err) || ctx.Err() != nil {
			return Result[T]{}, err
		}
		s.logger.Debug().Err(err).Msg("paginated list failed, retrying as plain list")
		coll, err = s.src.List(ctx, nil)
		if err != nil {
			return Result[T]{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		return Result[T]{}, ErrStale
	}

	var res Result[T]
	switch c := coll.(type) {
	case Unpaged[T]:
		if len(s.cache) == 0 {
			s.cache = s.normalizeAll(c.Items)
		}
		rows := FilterRows(s.cache, st.Filters)
		SortRows(rows, st.Sort)
		p := pagination.Params{Page: st.PageIndex, Size: st.PageSize}
		start, end := p.Window(len(rows))
		res = Result[T]{
			Rows: append([]T(nil), rows[start:end]...),
			Info: pagination.Compute(p, len(rows)),
		}
	case Paged[T]:
		rows := s.normalizeAll(c.Envelope.Content)
		if st.Sort == SortUpcoming {
			SortUpcomingRows(rows)
		}
		s.state.PageIndex = c.Envelope.Number
		if c.Envelope.Size > 0 {
			s.state.PageSize = c.Envelope.Size
		}
		res = Result[T]{Rows: rows, Info: pagination.FromEnvelope(c.Envelope), Paged: true}
	default:
		return Result[T]{}, errors.New("listsync: unknown collection shape")
	}

	s.lastCount = len(res.Rows)
	if r != nil {
		r.RenderRows(res.Rows)
		r.RenderPager(res.Info)
	}
	return res, nil
}

func (s *Synchronizer[T]) normalizeAll(items []T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		if s.normalize != nil {
			it = s.normalize(it)
		}
		out[i] = it
	}
	return out
}
