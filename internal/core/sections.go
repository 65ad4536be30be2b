package core

import (
	"strconv"
	"strings"
)

// DefaultSectionDepth is the nesting limit used when SectionOptions.MaxDepth is unset.
const DefaultSectionDepth = 32

// SectionOptions controls BuildSections.
type SectionOptions struct {
	// MaxDepth is the deepest section level rendered as a section. Deeper
	// subtrees collapse into a single line holding their compact JSON.
	MaxDepth int
}

// Section is a titled group of entries.
type Section struct {
	Title   string
	Entries []SectionEntry
}

// SectionEntry is either a "key: value" line or a nested section.
type SectionEntry struct {
	Key     string
	Value   string
	Section *Section
}

// IsSection reports whether the entry is a nested section.
func (e SectionEntry) IsSection() bool {
	return e.Section != nil
}

// Line returns the entry rendered as "key: value", or the bare value for
// an entry without a key.
func (e SectionEntry) Line() string {
	if e.Key == "" {
		return e.Value
	}
	return e.Key + ": " + e.Value
}

// BuildSections turns a JSON object tree into the entries of a container:
// one titled section per top-level key whose value is an object, and one
// line per top-level scalar. A top-level value that is itself a scalar
// becomes a single keyless line. Inside a section an object value becomes a
// nested section titled by its key and anything else becomes a line.
//
// Arrays of scalars become one line with the items joined by ", ". Other
// arrays become sections keyed by index. Sections deeper than MaxDepth
// collapse to a line of compact JSON, so cyclic-looking or hostile input
// cannot recurse without bound.
func BuildSections(data any, opts SectionOptions) []SectionEntry {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultSectionDepth
	}

	members, ok := children(data)
	if !ok {
		return []SectionEntry{{Value: ToDisplayString(data)}}
	}

	b := sectionBuilder{maxDepth: maxDepth}
	entries := make([]SectionEntry, 0, len(members))
	for _, m := range members {
		entries = append(entries, b.entry(m.Key, m.Value, 1))
	}
	return entries
}

type sectionBuilder struct {
	maxDepth int
}

func (b sectionBuilder) entry(key string, v any, depth int) SectionEntry {
	if arr, ok := v.([]any); ok && allScalars(arr) {
		return SectionEntry{Key: key, Value: joinScalars(arr)}
	}

	members, ok := children(v)
	if !ok {
		return SectionEntry{Key: key, Value: ToDisplayString(v)}
	}
	if depth > b.maxDepth {
		return SectionEntry{Key: key, Value: ToDisplayString(v)}
	}

	sec := &Section{Title: key, Entries: make([]SectionEntry, 0, len(members))}
	for _, m := range members {
		sec.Entries = append(sec.Entries, b.entry(m.Key, m.Value, depth+1))
	}
	return SectionEntry{Key: key, Section: sec}
}

// children returns the members of an object, or of an array keyed by index.
func children(v any) ([]Member, bool) {
	switch t := v.(type) {
	case *Object:
		return t.Members(), true
	case []any:
		out := make([]Member, len(t))
		for i, item := range t {
			out[i] = Member{Key: strconv.Itoa(i), Value: item}
		}
		return out, true
	}
	return nil, false
}

func allScalars(arr []any) bool {
	for _, item := range arr {
		switch item.(type) {
		case *Object, []any:
			return false
		}
	}
	return true
}

func joinScalars(arr []any) string {
	parts := make([]string, len(arr))
	for i, item := range arr {
		parts[i] = ToDisplayString(item)
	}
	return strings.Join(parts, ", ")
}
