package listsync

import (
	"slices"
	"strings"
	"time"
)

// SortUpcoming orders rows by their combined date and time, soonest first.
// The backend has no equivalent ordering.
const SortUpcoming = "next"

// Sort is a parsed "field,direction" token.
type Sort struct {
	Field string
	Asc   bool
}

// ParseSort splits a "field,direction" token. Only "asc" (any case) sorts
// ascending; any other or missing direction sorts descending.
func ParseSort(token string) Sort {
	field, dir, _ := strings.Cut(token, ",")
	return Sort{
		Field: strings.TrimSpace(field),
		Asc:   strings.EqualFold(strings.TrimSpace(dir), "asc"),
	}
}

func (s Sort) String() string {
	if s.Asc {
		return s.Field + ",asc"
	}
	return s.Field + ",desc"
}

// SortRows stable-sorts rows in place by the given token. SortUpcoming
// selects the date+time ordering.
func SortRows[T Row](rows []T, token string) {
	if token == "" {
		return
	}
	if token == SortUpcoming {
		SortUpcomingRows(rows)
		return
	}
	s := ParseSort(token)
	if s.Field == "" {
		return
	}
	slices.SortStableFunc(rows, func(a, b T) int {
		c := strings.Compare(strings.ToLower(a.Field(s.Field)), strings.ToLower(b.Field(s.Field)))
		if !s.Asc {
			c = -c
		}
		return c
	})
}

// SortUpcomingRows stable-sorts rows ascending by the instant formed from
// their "date" and "time" fields.
func SortUpcomingRows[T Row](rows []T) {
	slices.SortStableFunc(rows, func(a, b T) int {
		return Instant(a.Field("date"), a.Field("time")).Compare(Instant(b.Field("date"), b.Field("time")))
	})
}

var timeLayouts = []string{"15:04:05", "15:04"}

// Instant combines a calendar date and a wall-clock time. A missing time
// means midnight; a missing or unparsable date is the zero instant, which
// sorts before every real date.
func Instant(date, clock string) time.Time {
	date = strings.TrimSpace(date)
	if i := strings.IndexByte(date, 'T'); i >= 0 {
		date = date[:i]
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}
	}

	clock = strings.TrimSpace(clock)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, clock); err == nil {
			return d.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second)
		}
	}
	return d
}
