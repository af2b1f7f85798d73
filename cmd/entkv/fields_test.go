package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseFilter(t *testing.T) {
	got, err := parseFilter([]string{"data=111", "name=alice", "ok=true", "quoted=\"42\"", "eq=a=b"})
	if err != nil {
		t.Fatalf("parseFilter() error: %v", err)
	}
	want := map[string]any{
		"data":   111.0,
		"name":   "alice",
		"ok":     true,
		"quoted": "42",
		"eq":     "a=b",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}

	if _, err := parseFilter([]string{"=x"}); err == nil {
		t.Error("parseFilter() expected error for empty key")
	}
	if got, _ := parseFilter(nil); got != nil {
		t.Errorf("parseFilter(nil) = %v, want nil", got)
	}
}

func TestParseFields(t *testing.T) {
	got, err := parseFields(`{"id":1,"seen":"2024-01-02T03:04:05Z","tags":["a"]}`, []string{"seen"})
	if err != nil {
		t.Fatalf("parseFields() error: %v", err)
	}
	want := map[string]any{
		"id":   1.0,
		"seen": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"tags": []any{"a"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name  string
		raw   string
		dates []string
	}{
		{"not an object", `[1,2]`, nil},
		{"invalid json", `{`, nil},
		{"date not a string", `{"at":1}`, []string{"at"}},
		{"bad date", `{"at":"yesterday"}`, []string{"at"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFields(tt.raw, tt.dates); err == nil {
				t.Error("parseFields() expected error")
			}
		})
	}
}
