package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Params holds the page cursor of a list view.
type Params struct {
	Page int
	Size int
	Sort string
}

// FromContext extracts page parameters from the echo context. defaultSort is
// used when the request does not name one.
func FromContext(c echo.Context, defaultSort string) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 0 {
		page = 0
	}

	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	sort := strings.TrimSpace(c.QueryParam("sort"))
	if sort == "" {
		sort = defaultSort
	}

	return Params{Page: page, Size: size, Sort: sort}
}

// Overlay applies the page, size and sort present in the request on top of
// current. Absent or invalid values keep the current ones.
func Overlay(c echo.Context, current Params) Params {
	q := c.QueryParams()
	if q.Has("size") {
		if size, err := strconv.Atoi(q.Get("size")); err == nil && size > 0 {
			current.Size = min(size, MaxSize)
		}
	}
	if sort := strings.TrimSpace(q.Get("sort")); sort != "" {
		current.Sort = sort
	}
	if q.Has("page") {
		if page, err := strconv.Atoi(q.Get("page")); err == nil {
			current.Page = max(page, 0)
		}
	}
	return current
}

// Query encodes the params the way the backend expects them.
func (p Params) Query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("size", strconv.Itoa(p.Size))
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	return q
}

// Window returns the half-open slice bounds of the current page over a
// collection of total items. Both bounds are clamped to total, including
// for page indexes whose offset would not fit in an int.
func (p Params) Window(total int) (start, end int) {
	if total <= 0 || p.Size <= 0 || p.Page < 0 || p.Page > total/p.Size {
		return max(total, 0), max(total, 0)
	}
	start = p.Page * p.Size
	end = min(start+p.Size, total)
	return start, end
}

// TotalPages returns ceil(total/size).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Envelope is a server-paginated response.
type Envelope[T any] struct {
	Content          []T   `json:"content"`
	Number           int   `json:"number"`
	TotalPages       int   `json:"totalPages"`
	First            *bool `json:"first"`
	Last             *bool `json:"last"`
	NumberOfElements int   `json:"numberOfElements"`
	Size             int   `json:"size"`
	TotalElements    int   `json:"totalElements"`
}

// Info is the pager metadata shown next to a list.
type Info struct {
	Number           int
	TotalPages       int
	NumberOfElements int
	TotalElements    int
	First            bool
	Last             bool
}

// Compute derives pager metadata for a locally sliced collection.
func Compute(p Params, total int) Info {
	start, end := p.Window(total)
	return Info{
		Number:           p.Page,
		TotalPages:       TotalPages(total, p.Size),
		NumberOfElements: end - start,
		TotalElements:    total,
		First:            p.Page == 0,
		Last:             end >= total,
	}
}

// FromEnvelope copies pager metadata reported by the server. Missing
// first/last flags count as true so a partial envelope never enables paging.
func FromEnvelope[T any](env Envelope[T]) Info {
	n := env.NumberOfElements
	if n == 0 {
		n = len(env.Content)
	}
	return Info{
		Number:           env.Number,
		TotalPages:       env.TotalPages,
		NumberOfElements: n,
		TotalElements:    env.TotalElements,
		First:            flagOr(env.First, true),
		Last:             flagOr(env.Last, true),
	}
}

func flagOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// PrevDisabled reports whether the "previous" control must be disabled.
func (i Info) PrevDisabled() bool { return i.First }

// NextDisabled reports whether the "next" control must be disabled.
func (i Info) NextDisabled() bool { return i.Last }

// Caption renders "Page X of Y • Items on this page: N". An empty
// collection still reads as page 1 of 1.
func (i Info) Caption() string {
	total := i.TotalPages
	if total < 1 {
		total = 1
	}
	return fmt.Sprintf("Page %d of %d • Items on this page: %d", i.Number+1, total, i.NumberOfElements)
}
