package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Event kinds appended to the journal. The user.* kinds belong to the
// shared journal vocabulary but are written by the external session
// layer, not by this module.
const (
	EventUserLogin         = "user.login"
	EventUserLogout        = "user.logout"
	EventUserRegisterFail  = "user.register.failed"
	EventImageBuilt        = "image.built"
	EventImageDeleted      = "image.deleted"
	EventContainerCreated  = "container.created"
	EventContainerStopped  = "container.stopped"
	EventExerciseCompleted = "exercise.completed"
)

// Stop reasons carried in the attrs of container.stopped events.
// StopReasonShutdown is reserved: a graceful shutdown leaves sandboxes
// running, so nothing emits it today.
const (
	StopReasonUser     = "user"
	StopReasonAdmin    = "admin"
	StopReasonIdle     = "idle"
	StopReasonLifetime = "lifetime"
	StopReasonOrphan   = "orphan"
	StopReasonShutdown = "shutdown"
)

// maxJournalPage caps how many events a single read returns.
const maxJournalPage = 1000

// journalKeyLayout is a fixed-width timestamp format: unlike RFC3339Nano
// it never trims trailing zeros, so keys sort lexicographically in time
// order even within the same second.
const journalKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Event is one append-only journal entry.
type Event struct {
	Kind      string            `json:"kind"`
	Subject   string            `json:"subject,omitempty"`
	Target    string            `json:"target,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// AppendEvent writes an event to the journal. Keys combine the timestamp
// with the bucket sequence so concurrent writers never collide.
func (s *Store) AppendEvent(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJournal)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("%s::%016d", evt.Timestamp.UTC().Format(journalKeyLayout), seq))
		return b.Put(key, data)
	})
}

// ListEvents returns journal entries newest-first. page is zero-based;
// limit is clamped to 1000.
func (s *Store) ListEvents(limit, page int) ([]Event, error) {
	if limit <= 0 || limit > maxJournalPage {
		limit = maxJournalPage
	}
	if page < 0 {
		page = 0
	}
	skip := page * limit

	var events []Event
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJournal).Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			if skip > 0 {
				skip--
				continue
			}
			var evt Event
			if err := json.Unmarshal(v, &evt); err != nil {
				continue
			}
			events = append(events, evt)
		}
		return nil
	})
	return events, err
}
