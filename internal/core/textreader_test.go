package core

import (
	"bytes"
	"io"
	"testing"
)

func TestNewTextReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "plain UTF-8",
			input: []byte(`{"a":"ü"}`),
			want:  `{"a":"ü"}`,
		},
		{
			name:  "UTF-8 BOM removed",
			input: append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"a":1}`)...),
			want:  `{"a":1}`,
		},
		{
			name:  "UTF-16LE with BOM",
			input: []byte{0xFF, 0xFE, '[', 0, '1', 0, ']', 0},
			want:  `[1]`,
		},
		{
			name:  "invalid byte replaced",
			input: []byte{'"', 0xFF, '"'},
			want:  "\"�\"",
		},
		{
			name:  "empty",
			input: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewTextReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
