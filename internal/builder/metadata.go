package builder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// legal difficulty levels, compared case-insensitively.
var levels = map[string]string{
	"beginner":     "beginner",
	"intermediate": "intermediate",
	"advanced":     "advanced",
}

// Metadata is the interpreted part of an exercise bundle's metadata.json.
// Raw keeps the whole document verbatim, unknown keys included.
type Metadata struct {
	Title       string
	Version     string
	Description string
	Level       string
	Raw         json.RawMessage
}

// parseMetadata validates the four interpreted fields of metadata.json.
// title and description are required, level must be one of the three legal
// values (any case), and version defaults to "latest".
func parseMetadata(data []byte) (Metadata, error) {
	var fields struct {
		Title       string `json:"title"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Level       string `json:"level"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return Metadata{}, fmt.Errorf("metadata.json is not a JSON object: %w", err)
	}

	if strings.TrimSpace(fields.Title) == "" {
		return Metadata{}, fmt.Errorf("metadata.json: title is required")
	}
	if fields.Description == "" {
		return Metadata{}, fmt.Errorf("metadata.json: description is required")
	}
	level, ok := levels[strings.ToLower(fields.Level)]
	if !ok {
		return Metadata{}, fmt.Errorf("metadata.json: level %q must be beginner, intermediate, or advanced", fields.Level)
	}
	version := fields.Version
	if version == "" {
		version = "latest"
	}

	return Metadata{
		Title:       fields.Title,
		Version:     version,
		Description: fields.Description,
		Level:       level,
		Raw:         json.RawMessage(data),
	}, nil
}

// slug lowercases a title and collapses whitespace runs into single hyphens.
func slug(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

// imageTag derives the catalog tag for a bundle: training/<slug>:<version>.
func imageTag(meta Metadata) string {
	return fmt.Sprintf("training/%s:%s", slug(meta.Title), meta.Version)
}
