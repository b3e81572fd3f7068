// Package form moves data between submitted HTML forms and plain values.
package form

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Values is a submitted form where blank fields are absent (nil).
type Values map[string]*string

// Serialize turns submitted form values into Values. Empty strings become
// nil; everything else is trimmed. Only the first value of a key is kept.
func Serialize(in url.Values) Values {
	out := make(Values, len(in))
	for k, vs := range in {
		if len(vs) == 0 {
			out[k] = nil
			continue
		}
		v := strings.TrimSpace(vs[0])
		if v == "" {
			out[k] = nil
			continue
		}
		out[k] = &v
	}
	return out
}

// String returns the value of key, or "" when absent.
func (v Values) String(key string) string {
	if p := v[key]; p != nil {
		return *p
	}
	return ""
}

// Ptr returns the value of key, or nil when absent.
func (v Values) Ptr(key string) *string {
	if p := v[key]; p != nil {
		s := *p
		return &s
	}
	return nil
}

// Bool reports whether key holds "true", "on" or "1".
func (v Values) Bool(key string) bool {
	switch strings.ToLower(v.String(key)) {
	case "true", "on", "1":
		return true
	}
	return false
}

// Int64 parses key as a positive identifier. Absent keys yield nil.
func (v Values) Int64(key string) (*int64, error) {
	s := v.String(key)
	if s == "" {
		return nil, nil
	}
	if !IsPositiveInt(s) {
		return nil, &ValidationError{Field: key, Message: "must be a positive integer"}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &ValidationError{Field: key, Message: "is out of range"}
	}
	return &n, nil
}

var digits = regexp.MustCompile(`^\d+$`)

// IsPositiveInt reports whether s (trimmed) is a string of digits greater
// than zero.
func IsPositiveInt(s string) bool {
	s = strings.TrimSpace(s)
	if !digits.MatchString(s) {
		return false
	}
	return strings.TrimLeft(s, "0") != ""
}

// Field is one input of a rendered form.
type Field struct {
	Name     string
	Label    string
	Type     string // text, date, time, email, number, select, textarea, hidden
	Value    string
	Options  []string
	Required bool
}

// Fill copies values into the matching fields. Date fields keep only the
// date part of an ISO timestamp; nil values clear the field.
func Fill(fields []Field, values map[string]any) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	for i := range out {
		v, ok := values[out[i].Name]
		if !ok {
			continue
		}
		s := stringify(v)
		if out[i].Type == "date" {
			if before, _, found := strings.Cut(s, "T"); found {
				s = before
			}
		}
		out[i].Value = s
	}
	return out
}

// ToMap flattens v through its JSON representation so its fields can be fed
// to Fill.
func ToMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("form: marshal: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("form: unmarshal: %w", err)
	}
	return out, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
