package format

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sample struct {
	ID        string    `json:"id"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Owners    []string  `json:"owners,omitempty"`
}

func TestYAMLFormatterUsesJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	payload := sample{ID: "abc", SizeBytes: 42, CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	if err := (YAMLFormatter{}).Write(&buf, payload); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"id: abc", "size_bytes: 42", "2024-01-02T03:04:05Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "owners") {
		t.Fatalf("expected omitted field to stay omitted:\n%s", out)
	}
}

func TestForName(t *testing.T) {
	tests := []struct {
		name    string
		want    Formatter
		wantErr bool
	}{
		{name: "", want: JSONFormatter{}},
		{name: "json", want: JSONFormatter{}},
		{name: "YAML", want: YAMLFormatter{}},
		{name: "yml", want: YAMLFormatter{}},
		{name: "xml", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ForName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ForName(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ForName(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("ForName(%q) = %T, want %T", tt.name, got, tt.want)
		}
	}
}
