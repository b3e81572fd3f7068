package listsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/pkg/pagination"
)

type item struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	PatientID int64  `json:"patientId"`
	Display   string `json:"-"`
}

func (i item) RowID() int64    { return i.ID }
func (i item) RowName() string { return i.Name }
func (i item) Field(name string) string {
	switch name {
	case "id":
		return strconv.FormatInt(i.ID, 10)
	case "name":
		return i.Name
	case "date":
		return i.Date
	case "time":
		return i.Time
	case "patientId":
		if i.PatientID == 0 {
			return ""
		}
		return strconv.FormatInt(i.PatientID, 10)
	}
	return ""
}

type capture struct {
	rows  []item
	info  pagination.Info
	calls int
}

func (c *capture) RenderRows(rows []item)           { c.rows = rows; c.calls++ }
func (c *capture) RenderPager(info pagination.Info) { c.info = info }

func ids(rows []item) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// arraySource answers every call with the same bare array and records the
// queries it saw.
type arraySource struct {
	items   []item
	queries []url.Values
}

func (s *arraySource) List(_ context.Context, q url.Values) (Collection[item], error) {
	s.queries = append(s.queries, q)
	return Unpaged[item]{Items: append([]item(nil), s.items...)}, nil
}

func numbered(n int) []item {
	out := make([]item, n)
	for i := range out {
		out[i] = item{ID: int64(i + 1), Name: fmt.Sprintf("p%02d", i+1)}
	}
	return out
}

func TestDecode_Shapes(t *testing.T) {
	c, err := Decode[item](json.RawMessage(`[{"id":1},{"id":2}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, ok := c.(Unpaged[item])
	if !ok || len(u.Items) != 2 {
		t.Fatalf("expected Unpaged with 2 items, got %#v", c)
	}

	c, err = Decode[item](json.RawMessage(` {"content":[{"id":3}],"number":2,"totalPages":5,"first":false,"last":false}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, ok := c.(Paged[item])
	if !ok || p.Envelope.Number != 2 || len(p.Envelope.Content) != 1 {
		t.Fatalf("expected Paged envelope, got %#v", c)
	}

	c, err = Decode[item](nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u, ok := c.(Unpaged[item]); !ok || len(u.Items) != 0 {
		t.Errorf("expected empty Unpaged for empty body, got %#v", c)
	}

	if _, err := Decode[item](json.RawMessage(`"text"`)); err == nil {
		t.Error("expected error for scalar payload")
	}
}

func TestLoad_ArrayPagesCoverCollectionOnce(t *testing.T) {
	for _, tc := range []struct{ n, size int }{{0, 10}, {1, 10}, {10, 5}, {23, 10}, {7, 3}} {
		t.Run(fmt.Sprintf("n=%d,size=%d", tc.n, tc.size), func(t *testing.T) {
			src := &arraySource{items: numbered(tc.n)}
			s := New[item](src, State{PageSize: tc.size, Sort: "name,asc"})

			first, err := s.Load(context.Background(), nil)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			wantPages := pagination.TotalPages(tc.n, tc.size)
			if first.Info.TotalPages != wantPages {
				t.Fatalf("expected %d pages, got %d", wantPages, first.Info.TotalPages)
			}

			var seen []int64
			for p := 0; p < wantPages; p++ {
				s.SetPage(p)
				res, err := s.Load(context.Background(), nil)
				if err != nil {
					t.Fatalf("load page %d: %v", p, err)
				}
				if res.Info.First != (p == 0) {
					t.Errorf("page %d: first = %v", p, res.Info.First)
				}
				if res.Info.Last != (p == wantPages-1) {
					t.Errorf("page %d: last = %v", p, res.Info.Last)
				}
				seen = append(seen, ids(res.Rows)...)
			}
			if !sameIDs(seen, ids(numbered(tc.n))) {
				t.Errorf("pages do not reproduce the collection: %v", seen)
			}
		})
	}
}

func TestLoad_RendersRowsAndPager(t *testing.T) {
	src := &arraySource{items: numbered(12)}
	s := New[item](src, State{PageSize: 5})
	r := &capture{}

	s.Next()
	if _, err := s.Load(context.Background(), r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("expected one render, got %d", r.calls)
	}
	if !sameIDs(ids(r.rows), []int64{6, 7, 8, 9, 10}) {
		t.Errorf("unexpected rows %v", ids(r.rows))
	}
	if r.info.PrevDisabled() || r.info.NextDisabled() {
		t.Errorf("expected both pager controls enabled on a middle page, got %+v", r.info)
	}
	if got := r.info.Caption(); got != "Page 2 of 3 • Items on this page: 5" {
		t.Errorf("unexpected caption %q", got)
	}
}

func TestLoad_PageFarPastEndRendersEmpty(t *testing.T) {
	src := &arraySource{items: numbered(2)}
	s := New[item](src, State{PageSize: 10})
	r := &capture{}

	s.SetPage(922337203685477581)
	if _, err := s.Load(context.Background(), r); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.rows) != 0 {
		t.Errorf("expected no rows, got %v", ids(r.rows))
	}
	if !r.info.NextDisabled() {
		t.Error("expected next to be disabled past the end")
	}
}

func TestLoad_SendsPageQuery(t *testing.T) {
	src := &arraySource{}
	s := New[item](src, State{PageIndex: 2, PageSize: 20, Sort: SortUpcoming, Filters: Filters{Query: url.Values{"cpf": {"123"}}}})

	s.Load(context.Background(), nil)
	q := src.queries[0]
	if q.Get("page") != "2" || q.Get("size") != "20" {
		t.Errorf("unexpected paging query %v", q)
	}
	if q.Get("sort") != "date,asc" {
		t.Errorf("expected upcoming sort to be sent as date,asc, got %q", q.Get("sort"))
	}
	if q.Get("cpf") != "123" {
		t.Errorf("expected server filter forwarded, got %v", q)
	}
}

func TestLoad_FallsBackToPlainList(t *testing.T) {
	var queries []url.Values
	src := SourceFunc[item](func(_ context.Context, q url.Values) (Collection[item], error) {
		queries = append(queries, q)
		if q != nil {
			return nil, &gateway.RequestError{Status: http.StatusBadRequest}
		}
		return Unpaged[item]{Items: numbered(3)}, nil
	})
	s := New[item](src, State{PageSize: 10})

	res, err := s.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queries) != 2 || queries[1] != nil {
		t.Fatalf("expected a retry without query, got %v", queries)
	}
	if len(res.Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(res.Rows))
	}
}

func TestLoad_NoFallbackOnAuthError(t *testing.T) {
	calls := 0
	src := SourceFunc[item](func(_ context.Context, q url.Values) (Collection[item], error) {
		calls++
		return nil, &gateway.RequestError{Status: http.StatusUnauthorized}
	})
	s := New[item](src, State{})

	_, err := s.Load(context.Background(), nil)
	if !gateway.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry on auth error, got %d calls", calls)
	}
}

func TestLoad_PagedEnvelope(t *testing.T) {
	first, last := false, true
	src := SourceFunc[item](func(_ context.Context, q url.Values) (Collection[item], error) {
		return Paged[item]{Envelope: pagination.Envelope[item]{
			Content:          []item{{ID: 9, Date: "2025-03-01", Time: "10:00"}, {ID: 8, Date: "2025-01-01", Time: "08:00"}},
			Number:           3,
			TotalPages:       4,
			First:            &first,
			Last:             &last,
			NumberOfElements: 2,
			Size:             2,
		}}, nil
	})
	s := New[item](src, State{PageIndex: 7, PageSize: 10, Sort: SortUpcoming},
		WithNormalizer(func(i item) item { i.Display = "n"; return i }))

	res, err := s.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !res.Paged {
		t.Error("expected paged result")
	}
	if !sameIDs(ids(res.Rows), []int64{8, 9}) {
		t.Errorf("expected upcoming sort reapplied, got %v", ids(res.Rows))
	}
	if res.Rows[0].Display != "n" {
		t.Error("expected rows to be normalized")
	}
	st := s.State()
	if st.PageIndex != 3 || st.PageSize != 2 {
		t.Errorf("expected state synced to server (3,2), got (%d,%d)", st.PageIndex, st.PageSize)
	}
	if res.Info.First || !res.Info.Last || res.Info.TotalPages != 4 {
		t.Errorf("expected envelope metadata, got %+v", res.Info)
	}
	if s.Cached() != 0 {
		t.Error("paged responses must not populate the cache")
	}
}

func TestLoad_UpcomingExample(t *testing.T) {
	src := &arraySource{items: []item{
		{ID: 1, Date: "2025-01-10", Time: "09:00"},
		{ID: 2, Date: "2025-01-05", Time: "14:00"},
	}}
	s := New[item](src, State{PageSize: 10, Sort: SortUpcoming})

	res, err := s.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !sameIDs(ids(res.Rows), []int64{2, 1}) {
		t.Errorf("expected [2 1], got %v", ids(res.Rows))
	}
}

func TestLoad_CachePopulatedOnceAndInvalidated(t *testing.T) {
	src := &arraySource{items: numbered(3)}
	s := New[item](src, State{PageSize: 10})

	s.Load(context.Background(), nil)
	if s.Cached() != 3 {
		t.Fatalf("expected 3 cached, got %d", s.Cached())
	}

	src.items = numbered(5)
	res, _ := s.Load(context.Background(), nil)
	if len(res.Rows) != 3 {
		t.Errorf("expected cached rows to be served, got %d", len(res.Rows))
	}

	s.Invalidate()
	res, _ = s.Load(context.Background(), nil)
	if len(res.Rows) != 5 {
		t.Errorf("expected re-fetch after invalidate, got %d", len(res.Rows))
	}
}

func TestDeleted_StepsBackFromEmptiedPage(t *testing.T) {
	src := &arraySource{items: numbered(11)}
	s := New[item](src, State{PageSize: 10})
	s.SetPage(1)
	res, _ := s.Load(context.Background(), nil)
	if len(res.Rows) != 1 {
		t.Fatalf("expected a single row on page 2, got %d", len(res.Rows))
	}

	src.items = numbered(10)
	s.Deleted()
	if s.State().PageIndex != 0 {
		t.Fatalf("expected page index 0 after delete, got %d", s.State().PageIndex)
	}
	if s.Cached() != 0 {
		t.Error("expected cache cleared")
	}
	res, _ = s.Load(context.Background(), nil)
	if len(res.Rows) != 10 {
		t.Errorf("expected the full first page, got %d", len(res.Rows))
	}
}

func TestDeleted_KeepsPageWhenRowsRemain(t *testing.T) {
	src := &arraySource{items: numbered(12)}
	s := New[item](src, State{PageSize: 10})
	s.SetPage(1)
	s.Load(context.Background(), nil)

	s.Deleted()
	if s.State().PageIndex != 1 {
		t.Errorf("expected to stay on page 1, got %d", s.State().PageIndex)
	}

	s.SetPage(0)
	s.Load(context.Background(), nil)
	s.Deleted()
	if s.State().PageIndex != 0 {
		t.Errorf("expected first page unchanged, got %d", s.State().PageIndex)
	}
}

func TestLoad_StaleResultIsNotRendered(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	call := 0
	src := SourceFunc[item](func(_ context.Context, q url.Values) (Collection[item], error) {
		call++
		if call == 1 {
			entered <- struct{}{}
			<-release
			return Unpaged[item]{Items: numbered(1)}, nil
		}
		return Unpaged[item]{Items: numbered(2)}, nil
	})
	s := New[item](src, State{PageSize: 10})
	slow := &capture{}
	fast := &capture{}

	errc := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), slow)
		errc <- err
	}()
	<-entered

	if _, err := s.Load(context.Background(), fast); err != nil {
		t.Fatalf("fast load: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for the older load, got %v", err)
	}
	if slow.calls != 0 {
		t.Error("stale load must not render")
	}
	if fast.calls != 1 || len(fast.rows) != 2 {
		t.Errorf("expected latest load rendered with 2 rows, got %d calls", fast.calls)
	}
}

func TestNavigation(t *testing.T) {
	s := New[item](&arraySource{}, State{})
	s.Prev()
	if s.State().PageIndex != 0 {
		t.Error("prev on first page must be a no-op")
	}
	s.Next()
	s.Next()
	s.Prev()
	if s.State().PageIndex != 1 {
		t.Errorf("expected page 1, got %d", s.State().PageIndex)
	}
	s.SetFilters(Filters{Name: "ana"})
	if s.State().PageIndex != 0 {
		t.Error("changing filters must reset to the first page")
	}
	s.SetPage(3)
	s.SetSize(25)
	if st := s.State(); st.PageIndex != 0 || st.PageSize != 25 {
		t.Errorf("expected size 25 on page 0, got %+v", st)
	}
	if New[item](&arraySource{}, State{}).State().PageSize != pagination.DefaultSize {
		t.Error("expected default page size")
	}
}

func TestSortRows_AscDescStable(t *testing.T) {
	in := []item{
		{ID: 1, Name: "bruno"},
		{ID: 2, Name: "Ana"},
		{ID: 3, Name: "carla"},
		{ID: 4, Name: "ana"},
		{ID: 5, Name: "Bruno"},
	}

	asc := append([]item(nil), in...)
	SortRows(asc, "name,asc")
	if !sameIDs(ids(asc), []int64{2, 4, 1, 5, 3}) {
		t.Errorf("unexpected asc order %v", ids(asc))
	}

	desc := append([]item(nil), in...)
	SortRows(desc, "name,desc")
	if !sameIDs(ids(desc), []int64{3, 1, 5, 2, 4}) {
		t.Errorf("unexpected desc order %v", ids(desc))
	}

	other := append([]item(nil), in...)
	SortRows(other, "name,sideways")
	if !sameIDs(ids(other), ids(desc)) {
		t.Error("any direction other than asc must sort descending")
	}
}

func TestSortRows_UpcomingIdempotent(t *testing.T) {
	rows := []item{
		{ID: 1, Date: "2025-02-01", Time: "09:00"},
		{ID: 2, Date: "", Time: "10:00"},
		{ID: 3, Date: "2025-02-01"},
		{ID: 4, Date: "2025-02-01T00:00:00", Time: "08:30:00"},
		{ID: 5, Date: "garbage", Time: "07:00"},
	}
	SortRows(rows, SortUpcoming)
	want := []int64{2, 5, 3, 4, 1}
	if !sameIDs(ids(rows), want) {
		t.Fatalf("unexpected upcoming order %v", ids(rows))
	}

	SortRows(rows, SortUpcoming)
	if !sameIDs(ids(rows), want) {
		t.Errorf("upcoming sort is not idempotent: %v", ids(rows))
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		in   string
		want Sort
	}{
		{"name,asc", Sort{Field: "name", Asc: true}},
		{"date,desc", Sort{Field: "date"}},
		{"date,ASC", Sort{Field: "date", Asc: true}},
		{"name", Sort{Field: "name"}},
	}
	for _, tt := range tests {
		if got := ParseSort(tt.in); got != tt.want {
			t.Errorf("ParseSort(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestFilters_Match(t *testing.T) {
	rows := []item{
		{ID: 1, Name: "Ana Souza", PatientID: 10},
		{ID: 12, Name: "Bruno Lima", PatientID: 20},
		{ID: 21, Name: "ANA Lima"},
	}

	got := FilterRows(rows, Filters{Name: "ana"})
	if !sameIDs(ids(got), []int64{1, 21}) {
		t.Errorf("name filter: got %v", ids(got))
	}

	got = FilterRows(rows, Filters{ID: "1"})
	if !sameIDs(ids(got), []int64{1, 12, 21}) {
		t.Errorf("id filter: got %v", ids(got))
	}

	got = FilterRows(rows, Filters{Allow: NewAllowSet("patientId", []int64{20})})
	if !sameIDs(ids(got), []int64{12}) {
		t.Errorf("allow filter: got %v", ids(got))
	}

	got = FilterRows(rows, Filters{Allow: NewAllowSet("patientId", nil)})
	if len(got) != 0 {
		t.Errorf("active empty allow-set must drop everything, got %v", ids(got))
	}
}

func TestResolveAllowSet(t *testing.T) {
	patients := []struct {
		id  int64
		cpf string
	}{{1, "12345678901"}, {2, "99988877766"}}
	lookup := func(_ context.Context) ([]int64, error) {
		var out []int64
		for _, p := range patients {
			if len(p.cpf) >= 3 && p.cpf[:3] == "123" {
				out = append(out, p.id)
			}
		}
		return out, nil
	}

	set := ResolveAllowSet(context.Background(), zerolog.Nop(), "patientId", lookup)
	if !set.Active() || set.Len() != 1 || !set.Contains(1) || set.Contains(2) {
		t.Errorf("expected active set {1}, got len=%d", set.Len())
	}

	failing := func(_ context.Context) ([]int64, error) { return nil, errors.New("boom") }
	set = ResolveAllowSet(context.Background(), zerolog.Nop(), "patientId", failing)
	if set.Active() || set.Len() != 0 {
		t.Error("expected inactive empty set on lookup failure")
	}
	rows := []item{{ID: 1, PatientID: 1}, {ID: 2, PatientID: 2}}
	if got := FilterRows(rows, Filters{Allow: set}); len(got) != 2 {
		t.Errorf("expected all rows to pass a skipped filter, got %d", len(got))
	}
}

func TestFilteredArrayPaging(t *testing.T) {
	src := &arraySource{items: []item{
		{ID: 1, Name: "Ana"}, {ID: 2, Name: "Bia"}, {ID: 3, Name: "Ana Clara"}, {ID: 4, Name: "Joana"},
	}}
	s := New[item](src, State{PageSize: 2, Sort: "name,asc", Filters: Filters{Name: "ana"}})

	res, err := s.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !sameIDs(ids(res.Rows), []int64{1, 3}) {
		t.Errorf("unexpected first page %v", ids(res.Rows))
	}
	if res.Info.TotalPages != 2 || res.Info.TotalElements != 3 {
		t.Errorf("expected 3 filtered items over 2 pages, got %+v", res.Info)
	}
	if s.Cached() != 4 {
		t.Errorf("cache must hold the unfiltered collection, got %d", s.Cached())
	}
}

func TestTracker_Activate(t *testing.T) {
	var tr Tracker
	if !tr.Activate("patients") {
		t.Error("expected first activation to report a switch")
	}
	if tr.Activate("patients") {
		t.Error("expected re-activation of the same view to keep it")
	}
	if !tr.Activate("appointments") {
		t.Error("expected switching views to report a switch")
	}
	if tr.Active() != "appointments" {
		t.Errorf("expected appointments active, got %q", tr.Active())
	}
}

func TestSynchronizer_ApplyAndCursor(t *testing.T) {
	s := New[item](SourceFunc[item](func(context.Context, url.Values) (Collection[item], error) {
		return Unpaged[item]{}, nil
	}), State{Sort: "name,asc"})

	s.Apply(pagination.Params{Page: 3, Size: 0, Sort: "date,desc"})
	got := s.Cursor()
	want := pagination.Params{Page: 3, Size: pagination.DefaultSize, Sort: "date,desc"}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
