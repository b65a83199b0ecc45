package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Container statuses. Transitions are monotone: a record never returns to
// running after leaving it, and completed is terminal.
const (
	StatusRunning   = "running"
	StatusStopped   = "stopped"
	StatusCompleted = "completed"
)

// ContainerRecord is the registry's view of one sandbox container.
type ContainerRecord struct {
	ContainerID  string    `json:"container_id"`
	ExerciseID   string    `json:"exercise_id"`
	Subject      string    `json:"subject"`
	Subdomain    string    `json:"subdomain"`
	Status       string    `json:"status"`
	HostPort     string    `json:"host_port"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// InsertContainer inserts a running record. Inside a single write
// transaction it enforces subdomain uniqueness and the one-running-container
// rule per (subject, exercise); two concurrent launches for the same pair
// therefore end with exactly one success and one ErrConflict.
func (s *Store) InsertContainer(rec ContainerRecord) error {
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal container record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		subs := tx.Bucket(bucketSubdomains)
		if subs.Get([]byte(rec.Subdomain)) != nil {
			return fmt.Errorf("subdomain %s already registered: %w", rec.Subdomain, ErrConflict)
		}
		running := tx.Bucket(bucketRunning)
		key := pairKey(rec.Subject, rec.ExerciseID)
		if running.Get(key) != nil {
			return fmt.Errorf("subject %s already has a running container for exercise %s: %w", rec.Subject, rec.ExerciseID, ErrConflict)
		}
		if err := subs.Put([]byte(rec.Subdomain), []byte(rec.ContainerID)); err != nil {
			return err
		}
		if err := running.Put(key, []byte(rec.ContainerID)); err != nil {
			return err
		}
		return tx.Bucket(bucketContainers).Put([]byte(rec.ContainerID), data)
	})
}

// SetContainerStatus moves a record out of running. Transitions back to
// running are rejected and a record already in a terminal state is left
// untouched, so a force-stop after completion keeps status completed.
// Returns the status the record holds after the call.
func (s *Store) SetContainerStatus(id, status string) (string, error) {
	if status == StatusRunning {
		return "", fmt.Errorf("cannot transition container %s back to running", id)
	}
	var final string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("container %s: %w", id, ErrNotFound)
		}
		var rec ContainerRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal container %s: %w", id, err)
		}
		if rec.Status != StatusRunning {
			final = rec.Status
			return nil
		}
		rec.Status = status
		final = status
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal container record: %w", err)
		}
		if err := tx.Bucket(bucketRunning).Delete(pairKey(rec.Subject, rec.ExerciseID)); err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	return final, err
}

// TouchContainerActivity persists a last-activity timestamp so idle state
// survives restarts.
func (s *Store) TouchContainerActivity(id string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("container %s: %w", id, ErrNotFound)
		}
		var rec ContainerRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal container %s: %w", id, err)
		}
		if at.Before(rec.LastActivity) {
			return nil // last writer wins, never move backwards
		}
		rec.LastActivity = at
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal container record: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

// GetContainer returns the record with the given container id.
func (s *Store) GetContainer(id string) (ContainerRecord, error) {
	var rec ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketContainers).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("container %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// GetBySubdomain returns the record bound to a subdomain regardless of
// status. The completion callback uses this.
func (s *Store) GetBySubdomain(subdomain string) (ContainerRecord, error) {
	var rec ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketSubdomains).Get([]byte(subdomain))
		if id == nil {
			return fmt.Errorf("subdomain %s: %w", subdomain, ErrNotFound)
		}
		v := tx.Bucket(bucketContainers).Get(id)
		if v == nil {
			return fmt.Errorf("subdomain %s: %w", subdomain, ErrNotFound)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// GetBySubdomainRunning returns the running record bound to a subdomain.
// Stale subdomains — stopped, completed, or never seen — are ErrNotFound so
// the proxy answers 404.
func (s *Store) GetBySubdomainRunning(subdomain string) (ContainerRecord, error) {
	rec, err := s.GetBySubdomain(subdomain)
	if err != nil {
		return ContainerRecord{}, err
	}
	if rec.Status != StatusRunning {
		return ContainerRecord{}, fmt.Errorf("subdomain %s not running: %w", subdomain, ErrNotFound)
	}
	return rec, nil
}

// GetBySubjectExerciseRunning returns the subject's running container for an
// exercise, or ErrNotFound.
func (s *Store) GetBySubjectExerciseRunning(subject, exercise string) (ContainerRecord, error) {
	var rec ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketRunning).Get(pairKey(subject, exercise))
		if id == nil {
			return fmt.Errorf("no running container for %s/%s: %w", subject, exercise, ErrNotFound)
		}
		v := tx.Bucket(bucketContainers).Get(id)
		if v == nil {
			return fmt.Errorf("no running container for %s/%s: %w", subject, exercise, ErrNotFound)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// ListRunningBySubject returns all running records owned by a subject.
func (s *Store) ListRunningBySubject(subject string) ([]ContainerRecord, error) {
	var records []ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(_, v []byte) error {
			var rec ContainerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if rec.Subject == subject && rec.Status == StatusRunning {
				records = append(records, rec)
			}
			return nil
		})
	})
	return records, err
}

// CountRunningBySubject counts the subject's running containers for the
// quota check.
func (s *Store) CountRunningBySubject(subject string) (int, error) {
	records, err := s.ListRunningBySubject(subject)
	return len(records), err
}

// ListRunningContainers returns every running record. Used by
// reconciliation and by activity seeding at boot.
func (s *Store) ListRunningContainers() ([]ContainerRecord, error) {
	var records []ContainerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(_, v []byte) error {
			var rec ContainerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if rec.Status == StatusRunning {
				records = append(records, rec)
			}
			return nil
		})
	})
	return records, err
}

// PurgeStoppedOlderThan deletes terminal records created before the cutoff,
// along with their subdomain bindings. Returns how many were removed.
func (s *Store) PurgeStoppedOlderThan(cutoff time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketContainers)
		subs := tx.Bucket(bucketSubdomains)

		var stale []ContainerRecord
		if err := b.ForEach(func(_, v []byte) error {
			var rec ContainerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if rec.Status != StatusRunning && rec.CreatedAt.Before(cutoff) {
				stale = append(stale, rec)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, rec := range stale {
			if err := subs.Delete([]byte(rec.Subdomain)); err != nil {
				return err
			}
			if err := b.Delete([]byte(rec.ContainerID)); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}
