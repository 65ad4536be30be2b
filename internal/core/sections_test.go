package core

import (
	"strings"
	"testing"
)

// flatten renders entries as indented lines for compact comparison.
func flatten(entries []SectionEntry, indent string, out *[]string) {
	for _, e := range entries {
		if e.IsSection() {
			*out = append(*out, indent+"["+e.Section.Title+"]")
			flatten(e.Section.Entries, indent+"  ", out)
			continue
		}
		*out = append(*out, indent+e.Line())
	}
}

func renderSections(t *testing.T, input string, opts SectionOptions) string {
	t.Helper()
	entries := BuildSections(mustDecode(t, input), opts)
	var lines []string
	flatten(entries, "", &lines)
	return strings.Join(lines, "\n")
}

func TestBuildSections(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "nested object",
			input: `{"Section1":{"k1":"v1","sub":{"k2":2}}}`,
			want:  "[Section1]\n  k1: v1\n  [sub]\n    k2: 2",
		},
		{
			name:  "top-level scalars become lines",
			input: `{"uptime":3600,"Network":{"ip":"10.0.0.2"},"ok":true}`,
			want:  "uptime: 3600\n[Network]\n  ip: 10.0.0.2\nok: true",
		},
		{
			name:  "scalar arrays join on one line",
			input: `{"Bus":{"addresses":[8,21,"f1"],"empty":[]}}`,
			want:  "[Bus]\n  addresses: 8, 21, f1\n  empty: ",
		},
		{
			name:  "object arrays become indexed sections",
			input: `{"Bus":{"devices":[{"a":1},{"a":2}]}}`,
			want:  "[Bus]\n  [devices]\n    [0]\n      a: 1\n    [1]\n      a: 2",
		},
		{
			name:  "null and empty object",
			input: `{"last_error":null,"Empty":{}}`,
			want:  "last_error: null\n[Empty]",
		},
		{
			name:  "top-level array keyed by index",
			input: `[{"x":1},"y"]`,
			want:  "[0]\n  x: 1\n1: y",
		},
		{
			name:  "top-level scalar array keyed by index",
			input: `[8,"f1",null]`,
			want:  "0: 8\n1: f1\n2: null",
		},
		{
			name:  "empty array member",
			input: `{"devices":[]}`,
			want:  "devices: ",
		},
		{
			name:  "empty top-level array",
			input: `[]`,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderSections(t, tt.input, SectionOptions{})
			if got != tt.want {
				t.Errorf("BuildSections()\ngot:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestBuildSections_MaxDepth(t *testing.T) {
	input := `{"a":{"b":{"c":{"d":1}}}}`

	got := renderSections(t, input, SectionOptions{MaxDepth: 2})
	want := "[a]\n  [b]\n    c: {\"d\":1}"
	if got != want {
		t.Errorf("BuildSections(MaxDepth=2)\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildSections_DeepInputIsBounded(t *testing.T) {
	input := strings.Repeat(`{"n":`, 100) + "1" + strings.Repeat("}", 100)

	entries := BuildSections(mustDecode(t, input), SectionOptions{})

	depth := 0
	for e := entries[0]; e.IsSection(); e = e.Section.Entries[0] {
		depth++
	}
	if depth != DefaultSectionDepth {
		t.Errorf("section depth = %d, want %d", depth, DefaultSectionDepth)
	}
}

func TestBuildSections_TopLevelScalar(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: `"text"`, want: "text"},
		{input: `42`, want: "42"},
		{input: `null`, want: "null"},
		{input: `true`, want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := renderSections(t, tt.input, SectionOptions{}); got != tt.want {
				t.Errorf("BuildSections(%s) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
