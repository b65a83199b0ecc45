package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Progress statuses.
const (
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// Progress tracks a subject's attempts at one exercise.
type Progress struct {
	Subject     string     `json:"subject"`
	ExerciseID  string     `json:"exercise_id"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BumpProgressAttempt increments the attempt counter and marks the pair
// in_progress. A completed exercise stays completed; only the counter moves.
func (s *Store) BumpProgressAttempt(subject, exercise string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		key := pairKey(subject, exercise)

		p := Progress{Subject: subject, ExerciseID: exercise, Status: ProgressInProgress}
		if v := b.Get(key); v != nil {
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal progress %s: %w", key, err)
			}
		}
		p.Attempts++
		if p.Status != ProgressCompleted {
			p.Status = ProgressInProgress
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		return b.Put(key, data)
	})
}

// MarkProgressCompleted sets the pair to completed with a timestamp.
// Idempotent: a second call keeps the original completion time.
func (s *Store) MarkProgressCompleted(subject, exercise string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProgress)
		key := pairKey(subject, exercise)

		p := Progress{Subject: subject, ExerciseID: exercise}
		if v := b.Get(key); v != nil {
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal progress %s: %w", key, err)
			}
		}
		if p.Status == ProgressCompleted {
			return nil
		}
		p.Status = ProgressCompleted
		at = at.UTC()
		p.CompletedAt = &at
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}
		return b.Put(key, data)
	})
}

// GetProgress returns the progress for one subject and exercise.
func (s *Store) GetProgress(subject, exercise string) (Progress, error) {
	var p Progress
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProgress).Get(pairKey(subject, exercise))
		if v == nil {
			return fmt.Errorf("progress %s/%s: %w", subject, exercise, ErrNotFound)
		}
		return json.Unmarshal(v, &p)
	})
	return p, err
}

// ListProgressBySubject returns the subject's progress keyed by exercise id.
func (s *Store) ListProgressBySubject(subject string) (map[string]Progress, error) {
	result := make(map[string]Progress)
	prefix := []byte(subject + "::")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketProgress).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var p Progress
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			result[p.ExerciseID] = p
		}
		return nil
	})
	return result, err
}
