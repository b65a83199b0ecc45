// Package store persists the exercise catalog, the container registry, the
// event journal, and per-user progress in a single BoltDB database.
package store

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketExercises    = []byte("exercises")
	bucketExerciseTags = []byte("exercise_tags") // image tag -> exercise id
	bucketContainers   = []byte("containers")
	bucketSubdomains   = []byte("subdomains") // subdomain -> container id
	bucketRunning      = []byte("running")    // subject::exercise -> container id
	bucketJournal      = []byte("journal")
	bucketProgress     = []byte("progress") // subject::exercise -> Progress
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert would violate a uniqueness
// constraint (duplicate subdomain, duplicate image tag, or a second running
// container for the same subject and exercise).
var ErrConflict = errors.New("conflict")

// IsNotFound reports whether err is a store miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// Store wraps a BoltDB database for orchestrator persistence.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at the given path and ensures all
// required buckets exist. Failure here is fatal at startup.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketExercises, bucketExerciseTags, bucketContainers, bucketSubdomains, bucketRunning, bucketJournal, bucketProgress} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// pairKey builds the subject::exercise composite key used by the running
// index and the progress bucket.
func pairKey(subject, exercise string) []byte {
	return []byte(subject + "::" + exercise)
}
