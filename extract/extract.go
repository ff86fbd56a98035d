// Package extract recovers a category → values mapping from raw model
// output. It never panics and never returns a nil mapping.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// ErrMalformed is wrapped by every Parse failure.
var ErrMalformed = errors.New("extract: malformed model output")

// Mapping is a branch's partial result: category name to ordered, unique
// values.
type Mapping map[string][]string

// Values returns the values for a category (nil if absent).
func (m Mapping) Values(category string) []string { return m[category] }

// Has reports whether category contains value.
func (m Mapping) Has(category, value string) bool {
	return slices.Contains(m[category], value)
}

// Clone returns a deep copy.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

const fence = "```"

// StripFence removes one enclosing Markdown code fence, including an
// optional language tag after the opening marker. Text without a leading
// fence is returned trimmed but otherwise unchanged.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	body, ok := strings.CutPrefix(s, fence)
	if !ok {
		return s
	}
	// Language tag runs up to the first newline or the JSON itself.
	if i := strings.IndexAny(body, "\n{["); i >= 0 {
		body = body[i:]
	} else {
		body = ""
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, fence)
	return strings.TrimSpace(body)
}

// Parse turns raw model text into a Mapping. On failure it returns an empty
// mapping and an error wrapping ErrMalformed.
func Parse(raw string) (Mapping, error) {
	text := StripFence(raw)
	if text == "" {
		return Mapping{}, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return Mapping{}, fmt.Errorf("%w: %v: %q", ErrMalformed, err, preview(text, 80))
	}
	if obj == nil {
		return Mapping{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	out := make(Mapping, len(obj))
	for category, rawVal := range obj {
		var items []json.RawMessage
		if err := json.Unmarshal(rawVal, &items); err != nil || items == nil {
			slog.Debug("extract: dropping non-list category", "category", category)
			continue
		}
		var values []string
		for _, item := range items {
			var v string
			if err := json.Unmarshal(item, &v); err != nil {
				continue
			}
			v = strings.TrimSpace(v)
			if v == "" || slices.Contains(values, v) {
				continue
			}
			values = append(values, v)
		}
		if len(values) > 0 {
			out[category] = values
		}
	}
	return out, nil
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
