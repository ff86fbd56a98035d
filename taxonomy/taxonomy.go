// Package taxonomy holds the static tag whitelist and validates
// fully-qualified tags against it.
//
// A tag is a "-"-joined path of 2 to 4 segments:
//
//	主体-<subject>
//	<subject>-<category>-<value>
//	<subject>-<marker>-<category>-<value>   (one nested group, e.g. 人像-服饰)
package taxonomy

import (
	"fmt"
	"slices"
	"strings"
)

// Delimiter joins tag segments.
const Delimiter = "-"

// Category is one attribute dimension with its allowed values.
type Category struct {
	Name   string
	Values []string
	// Abstain lists answers the model may give that are never emitted as
	// tags (e.g. "无水印").
	Abstain []string
	// Required marks the category as mandatory in the output schema.
	Required bool
	// Hint is a short definition rendered into the instruction text.
	Hint string
}

// Allows reports whether v is a whitelisted value.
func (c Category) Allows(v string) bool {
	return slices.Contains(c.Values, v)
}

// Choices returns every value the model may answer with, whitelisted
// values first.
func (c Category) Choices() []string {
	out := make([]string, 0, len(c.Values)+len(c.Abstain))
	out = append(out, c.Values...)
	return append(out, c.Abstain...)
}

// Group is a nested set of categories under a marker segment.
type Group struct {
	Marker     string
	Categories []Category
}

// Subject owns a set of direct categories and optional nested groups.
type Subject struct {
	Name       string
	Categories []Category
	Groups     []Group
}

// Registry is the immutable whitelist. Build it once with New and share it.
type Registry struct {
	version  string
	root     Category
	subjects []Subject
	index    map[string]*Subject
}

// New builds a registry. root is the subject classification category whose
// name is the first segment of every two-segment tag.
func New(version string, root Category, subjects ...Subject) (*Registry, error) {
	if root.Name == "" || len(root.Values) == 0 {
		return nil, fmt.Errorf("taxonomy: root category must have a name and values")
	}
	r := &Registry{
		version:  version,
		root:     root,
		subjects: subjects,
		index:    make(map[string]*Subject, len(subjects)),
	}
	for i := range r.subjects {
		s := &r.subjects[i]
		if s.Name == "" || s.Name == root.Name {
			return nil, fmt.Errorf("taxonomy: invalid subject name %q", s.Name)
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate subject %q", s.Name)
		}
		seen := make(map[string]bool)
		for _, c := range s.Categories {
			if seen[c.Name] {
				return nil, fmt.Errorf("taxonomy: duplicate category %s/%s", s.Name, c.Name)
			}
			seen[c.Name] = true
		}
		for _, g := range s.Groups {
			if seen[g.Marker] {
				return nil, fmt.Errorf("taxonomy: group marker %s/%s collides with a category", s.Name, g.Marker)
			}
			seen[g.Marker] = true
		}
		r.index[s.Name] = s
	}
	return r, nil
}

// Version identifies the whitelist revision.
func (r *Registry) Version() string { return r.version }

// Root returns the subject classification category.
func (r *Registry) Root() Category { return r.root }

// Subject looks up a subject by name.
func (r *Registry) Subject(name string) (Subject, bool) {
	s, ok := r.index[name]
	if !ok {
		return Subject{}, false
	}
	return *s, true
}

// Categories returns the categories addressed by a tag prefix: the root
// category for an empty path, a subject's direct categories for [subject],
// or a nested group's categories for [subject, marker].
func (r *Registry) Categories(path ...string) ([]Category, bool) {
	switch len(path) {
	case 0:
		return []Category{r.root}, true
	case 1:
		s, ok := r.index[path[0]]
		if !ok {
			return nil, false
		}
		return s.Categories, true
	case 2:
		s, ok := r.index[path[0]]
		if !ok {
			return nil, false
		}
		for _, g := range s.Groups {
			if g.Marker == path[1] {
				return g.Categories, true
			}
		}
	}
	return nil, false
}

// Valid reports whether tag is exactly a whitelisted path.
func (r *Registry) Valid(tag string) bool {
	seg := Split(tag)
	switch len(seg) {
	case 2:
		return seg[0] == r.root.Name && r.root.Allows(seg[1])
	case 3:
		s, ok := r.index[seg[0]]
		if !ok {
			return false
		}
		c, ok := findCategory(s.Categories, seg[1])
		return ok && c.Allows(seg[2])
	case 4:
		s, ok := r.index[seg[0]]
		if !ok {
			return false
		}
		for _, g := range s.Groups {
			if g.Marker != seg[1] {
				continue
			}
			c, ok := findCategory(g.Categories, seg[2])
			return ok && c.Allows(seg[3])
		}
		return false
	default:
		return false
	}
}

// Tags enumerates every valid tag in registry order.
func (r *Registry) Tags() []string {
	var out []string
	for _, v := range r.root.Values {
		out = append(out, Join(r.root.Name, v))
	}
	for _, s := range r.subjects {
		for _, c := range s.Categories {
			for _, v := range c.Values {
				out = append(out, Join(s.Name, c.Name, v))
			}
		}
		for _, g := range s.Groups {
			for _, c := range g.Categories {
				for _, v := range c.Values {
					out = append(out, Join(s.Name, g.Marker, c.Name, v))
				}
			}
		}
	}
	return out
}

// Join builds a tag from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, Delimiter)
}

// Split breaks a tag into segments.
func Split(tag string) []string {
	return strings.Split(tag, Delimiter)
}

func findCategory(cats []Category, name string) (Category, bool) {
	for _, c := range cats {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}
