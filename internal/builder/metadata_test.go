package builder

import (
	"strings"
	"testing"
)

func TestParseMetadata(t *testing.T) {
	meta, err := parseMetadata([]byte(`{
		"title": "SQL Injection Basics",
		"version": "2.1",
		"description": "Find and exploit an injectable login form.",
		"level": "Intermediate",
		"author": "lab-team"
	}`))
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if meta.Title != "SQL Injection Basics" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Version != "2.1" {
		t.Errorf("Version = %q, want 2.1", meta.Version)
	}
	if meta.Level != "intermediate" {
		t.Errorf("Level = %q, want intermediate", meta.Level)
	}
	if !strings.Contains(string(meta.Raw), `"author": "lab-team"`) {
		t.Error("Raw dropped unknown keys")
	}
}

func TestParseMetadataLevelCase(t *testing.T) {
	for _, level := range []string{"beginner", "Beginner", "BEGINNER", "bEgInNeR"} {
		meta, err := parseMetadata([]byte(`{"title":"t","description":"d","level":"` + level + `"}`))
		if err != nil {
			t.Errorf("level %q rejected: %v", level, err)
			continue
		}
		if meta.Level != "beginner" {
			t.Errorf("level %q normalized to %q, want beginner", level, meta.Level)
		}
	}
	for _, level := range []string{"", "expert", "easy", "beginner "} {
		if _, err := parseMetadata([]byte(`{"title":"t","description":"d","level":"` + level + `"}`)); err == nil {
			t.Errorf("level %q accepted, want error", level)
		}
	}
}

func TestParseMetadataVersionDefault(t *testing.T) {
	meta, err := parseMetadata([]byte(`{"title":"t","description":"d","level":"advanced"}`))
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if meta.Version != "latest" {
		t.Errorf("Version = %q, want latest", meta.Version)
	}
}

func TestParseMetadataRequiredFields(t *testing.T) {
	cases := map[string]string{
		"missing title":       `{"description":"d","level":"beginner"}`,
		"blank title":         `{"title":"   ","description":"d","level":"beginner"}`,
		"missing description": `{"title":"t","level":"beginner"}`,
		"not json":            `not json at all`,
	}
	for name, doc := range cases {
		if _, err := parseMetadata([]byte(doc)); err == nil {
			t.Errorf("%s: accepted, want error", name)
		}
	}
}

func TestImageTag(t *testing.T) {
	tests := []struct {
		title, version, want string
	}{
		{"SQL Injection Basics", "2.1", "training/sql-injection-basics:2.1"},
		{"XSS   Lab", "latest", "training/xss-lab:latest"},
		{"simple", "1.0", "training/simple:1.0"},
	}
	for _, tt := range tests {
		got := imageTag(Metadata{Title: tt.title, Version: tt.version})
		if got != tt.want {
			t.Errorf("imageTag(%q, %q) = %q, want %q", tt.title, tt.version, got, tt.want)
		}
	}
}
