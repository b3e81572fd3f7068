package listsync

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Row is a normalized list item.
type Row interface {
	RowID() int64
	// RowName is the denormalized display name the name filter matches.
	RowName() string
	// Field returns the stringified value of a named field, "" if absent.
	Field(name string) string
}

// AllowSet restricts rows to those whose reference field points at one of a
// set of identifiers. An inactive set lets every row through.
type AllowSet struct {
	Field  string
	ids    map[int64]struct{}
	active bool
}

// NewAllowSet builds an active set over ids.
func NewAllowSet(field string, ids []int64) *AllowSet {
	s := &AllowSet{Field: field, ids: make(map[int64]struct{}, len(ids)), active: true}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Active reports whether the set filters anything.
func (s *AllowSet) Active() bool { return s != nil && s.active }

// Len returns the number of allowed ids.
func (s *AllowSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Contains reports whether id is allowed.
func (s *AllowSet) Contains(id int64) bool {
	if !s.Active() {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// Lookup resolves a secondary entity's natural key into identifiers.
type Lookup func(ctx context.Context) ([]int64, error)

// ResolveAllowSet runs lookup and turns its result into an allow-set on
// field. A failing lookup is not fatal: it is logged and an inactive set
// is returned so the filter is skipped.
func ResolveAllowSet(ctx context.Context, logger zerolog.Logger, field string, lookup Lookup) *AllowSet {
	ids, err := lookup(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("field", field).Msg("allow-set lookup failed, filter skipped")
		return &AllowSet{Field: field}
	}
	return NewAllowSet(field, ids)
}

// Filters narrows a list view.
type Filters struct {
	// Name is matched case-insensitively against RowName.
	Name string
	// ID is matched as a substring of the decimal identifier.
	ID string
	// Allow keeps only rows referencing an allowed identifier.
	Allow *AllowSet
	// Query carries entity-specific parameters forwarded to the server.
	Query url.Values
}

// Empty reports whether no client-side filter is set.
func (f Filters) Empty() bool {
	return strings.TrimSpace(f.Name) == "" && strings.TrimSpace(f.ID) == "" && !f.Allow.Active()
}

// Match reports whether row passes every filter.
func (f Filters) Match(row Row) bool {
	if name := strings.TrimSpace(f.Name); name != "" {
		if !strings.Contains(strings.ToLower(row.RowName()), strings.ToLower(name)) {
			return false
		}
	}
	if id := strings.TrimSpace(f.ID); id != "" {
		if !strings.Contains(strconv.FormatInt(row.RowID(), 10), id) {
			return false
		}
	}
	if f.Allow.Active() {
		ref, err := strconv.ParseInt(strings.TrimSpace(row.Field(f.Allow.Field)), 10, 64)
		if err != nil || !f.Allow.Contains(ref) {
			return false
		}
	}
	return true
}

// FilterRows returns the rows passing f, in order. The input is not modified.
func FilterRows[T Row](rows []T, f Filters) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
