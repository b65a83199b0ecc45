package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Exercise is a catalog entry created by a successful image build.
// The image tag is immutable after creation; Metadata keeps the uploaded
// metadata.json verbatim, unknown keys included.
type Exercise struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Level       string          `json:"level"` // beginner, intermediate, advanced
	Version     string          `json:"version"`
	ImageTag    string          `json:"image_tag"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// InsertExercise adds a catalog entry. Returns ErrConflict when another
// exercise already owns the image tag.
func (s *Store) InsertExercise(ex Exercise) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exercise: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		tags := tx.Bucket(bucketExerciseTags)
		if tags.Get([]byte(ex.ImageTag)) != nil {
			return fmt.Errorf("image tag %s already in catalog: %w", ex.ImageTag, ErrConflict)
		}
		if err := tags.Put([]byte(ex.ImageTag), []byte(ex.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketExercises).Put([]byte(ex.ID), data)
	})
}

// GetExercise returns the exercise with the given id, or ErrNotFound.
func (s *Store) GetExercise(id string) (Exercise, error) {
	var ex Exercise
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketExercises).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("exercise %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &ex)
	})
	return ex, err
}

// ListExercises returns the whole catalog in insertion-key order.
func (s *Store) ListExercises() ([]Exercise, error) {
	var exercises []Exercise
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExercises).ForEach(func(_, v []byte) error {
			var ex Exercise
			if err := json.Unmarshal(v, &ex); err != nil {
				return nil // skip malformed rows
			}
			exercises = append(exercises, ex)
			return nil
		})
	})
	return exercises, err
}

// UpdateExerciseMetadata replaces the mutable fields of an exercise. The
// image tag cannot change.
func (s *Store) UpdateExerciseMetadata(id, title, description, level string, metadata json.RawMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExercises)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("exercise %s: %w", id, ErrNotFound)
		}
		var ex Exercise
		if err := json.Unmarshal(v, &ex); err != nil {
			return fmt.Errorf("unmarshal exercise %s: %w", id, err)
		}
		ex.Title = title
		ex.Description = description
		ex.Level = level
		ex.Metadata = metadata
		ex.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(ex)
		if err != nil {
			return fmt.Errorf("marshal exercise: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

// DeleteExercise removes a catalog entry and its tag index. Returns the
// removed exercise so the caller can delete the underlying image.
func (s *Store) DeleteExercise(id string) (Exercise, error) {
	var ex Exercise
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExercises)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("exercise %s: %w", id, ErrNotFound)
		}
		if err := json.Unmarshal(v, &ex); err != nil {
			return fmt.Errorf("unmarshal exercise %s: %w", id, err)
		}
		if err := tx.Bucket(bucketExerciseTags).Delete([]byte(ex.ImageTag)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
	return ex, err
}
