package operations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Schema is the JSON-Schema subset used to describe operation arguments.
// It marshals to a document that tool-calling model APIs accept as-is.
type Schema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

// Property describes one argument.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Format      string   `json:"format,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Maximum     *int     `json:"maximum,omitempty"`
	Default     any      `json:"default,omitempty"`

	// Trim strips surrounding whitespace before length checks.
	Trim bool `json:"-"`
}

// Supported Format values.
const (
	FormatUUID = "uuid"
	// FormatDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
	FormatDate = "date"
)

func intPtr(n int) *int { return &n }

// PropertyNames returns the property names in sorted order.
func (s Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsRequired reports whether name is listed in s.Required.
func (s Schema) IsRequired(name string) bool {
	return slices.Contains(s.Required, name)
}

// args holds validated argument values keyed by property name. Strings are
// string, integers are int and date-formatted strings are time.Time.
type args map[string]any

func (a args) str(k string) (string, bool) {
	v, ok := a[k].(string)
	return v, ok
}

func (a args) integer(k string, def int) int {
	if v, ok := a[k].(int); ok {
		return v
	}
	return def
}

func (a args) date(k string) (time.Time, bool) {
	v, ok := a[k].(time.Time)
	return v, ok
}

// validate decodes raw against s. The first failure is returned as a
// validation outcome naming the offending field. JSON nulls count as absent.
func (s Schema) validate(raw json.RawMessage) (args, *Outcome) {
	fields := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			o := Invalid("arguments", "arguments must be a JSON object")
			return nil, &o
		}
	}

	// Deterministic order so repeated calls report the same field.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := s.Properties[k]; !ok && !s.AdditionalProperties {
			o := Invalid(k, "unknown argument")
			return nil, &o
		}
	}

	out := args{}
	for _, name := range s.PropertyNames() {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if s.IsRequired(name) {
				o := Invalid(name, "is required")
				return nil, &o
			}
			continue
		}
		v, msg := s.Properties[name].check(raw)
		if msg != "" {
			o := Invalid(name, msg)
			return nil, &o
		}
		out[name] = v
	}
	return out, nil
}

func (p Property) check(raw json.RawMessage) (any, string) {
	switch p.Type {
	case "string":
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, "must be a string"
		}
		if p.Trim {
			v = strings.TrimSpace(v)
		}
		n := utf8.RuneCountInString(v)
		if p.MinLength != nil && n < *p.MinLength {
			if *p.MinLength == 1 {
				return nil, "must not be empty"
			}
			return nil, fmt.Sprintf("must be at least %d characters", *p.MinLength)
		}
		if p.MaxLength != nil && n > *p.MaxLength {
			return nil, fmt.Sprintf("must be at most %d characters", *p.MaxLength)
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, v) {
			return nil, "must be one of " + strings.Join(p.Enum, ", ")
		}
		switch p.Format {
		case FormatUUID:
			if _, err := uuid.Parse(v); err != nil {
				return nil, "must be a valid id"
			}
		case FormatDate:
			t, err := parseDate(v)
			if err != nil {
				return nil, "must be an RFC 3339 timestamp or a YYYY-MM-DD date"
			}
			return t, ""
		}
		return v, ""

	case "integer":
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, "must be an integer"
		}
		v := int(f)
		if p.Minimum != nil && v < *p.Minimum {
			return nil, fmt.Sprintf("must be at least %d", *p.Minimum)
		}
		if p.Maximum != nil && v > *p.Maximum {
			return nil, fmt.Sprintf("must be at most %d", *p.Maximum)
		}
		return v, ""
	}
	return nil, "unsupported type " + p.Type
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
