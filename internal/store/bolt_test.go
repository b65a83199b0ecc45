package store

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, subject, exercise, subdomain string, created time.Time) ContainerRecord {
	return ContainerRecord{
		ContainerID:  id,
		ExerciseID:   exercise,
		Subject:      subject,
		Subdomain:    subdomain,
		Status:       StatusRunning,
		HostPort:     "32768",
		CreatedAt:    created,
		LastActivity: created,
	}
}
