// Package storage defines the persisted tier: one saved entry per event ID.
package storage

import (
	"fmt"
	"time"

	"xdao.co/nref/event"
)

// TimeFormat is the ISO-8601 layout used for Metadata.SavedAt.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Metadata records where and when an entry was saved.
type Metadata struct {
	SavedAt     string `json:"saved_at"`
	Relay       string `json:"relay"`
	OriginalRef string `json:"original_ref"`
}

// SavedTime parses SavedAt.
func (m Metadata) SavedTime() (time.Time, error) {
	t, err := time.Parse(TimeFormat, m.SavedAt)
	if err != nil {
		return time.Parse(time.RFC3339Nano, m.SavedAt)
	}
	return t, nil
}

// FormatTime renders t the way SavedAt is stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Entry is the on-disk form of a saved event.
type Entry struct {
	Event    event.Event `json:"event"`
	Metadata Metadata    `json:"metadata"`
}

// Validate checks that e can be stored under id.
func (e Entry) Validate(id event.ID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: zero id", event.ErrInvalidID)
	}
	if e.Event.ID != id {
		return fmt.Errorf("%w: entry holds %s, key is %s", ErrIDMismatch, e.Event.ID.Short(), id.Short())
	}
	return nil
}

// Store is the persisted tier.
//
// Contract:
//   - Exists, Read, Write and Delete address the same entry for a given id.
//   - Read MUST return ErrNotFound when the entry is absent.
//   - Write overwrites unconditionally; callers enforce overwrite policy.
//   - Delete reports whether an entry was removed and performs no mutation
//     when it was absent.
//   - List skips entries that cannot be parsed instead of failing.
type Store interface {
	Exists(id event.ID) (bool, error)
	Read(id event.ID) (*Entry, error)
	Write(id event.ID, entry Entry) error
	Delete(id event.ID) (bool, error)
	List() ([]Entry, error)
}
