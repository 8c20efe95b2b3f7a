package resolver

import (
	"fmt"

	"xdao.co/nref/event"
	"xdao.co/nref/storage"
)

type PersistStatus int

const (
	StatusSaved PersistStatus = iota + 1
	StatusOverwritten
	// StatusAlreadyExists means an entry was present and overwrite was off.
	// The stored entry is untouched.
	StatusAlreadyExists
)

func (s PersistStatus) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusOverwritten:
		return "overwritten"
	case StatusAlreadyExists:
		return "already exists"
	default:
		return "unknown"
	}
}

// Persist saves e under id, recording source as the relay it came from.
// With overwrite off an existing entry is left as is and StatusAlreadyExists
// is returned without error.
func (r *Resolver) Persist(e event.Event, source string, id event.ID, overwrite bool) (PersistStatus, error) {
	if e.ID != id {
		return 0, fmt.Errorf("%w: event %s saved as %s", storage.ErrIDMismatch, e.ID.Short(), id.Short())
	}
	exists, err := r.store.Exists(id)
	if err != nil {
		return 0, fmt.Errorf("resolver: persist %s: %w", id.Short(), err)
	}
	if exists && !overwrite {
		r.logger.Info("resolver: event already exists", "id", id.Short())
		return StatusAlreadyExists, nil
	}

	entry := storage.Entry{
		Event: e,
		Metadata: storage.Metadata{
			SavedAt:     storage.FormatTime(r.now()),
			Relay:       source,
			OriginalRef: id.String(),
		},
	}
	if err := r.store.Write(id, entry); err != nil {
		return 0, fmt.Errorf("resolver: persist %s: %w", id.Short(), err)
	}

	status := StatusSaved
	if exists {
		status = StatusOverwritten
	}
	r.logger.Info("resolver: event saved", "id", id.Short(), "relay", source, "status", status.String())
	r.notify(Change{ID: id, Kind: ChangeSaved})
	return status, nil
}

// Forget deletes the persisted entry for id and reports whether one existed.
// The memory tier is not touched, so a later resolution of id is still
// answered from cache.
func (r *Resolver) Forget(id event.ID) (bool, error) {
	removed, err := r.store.Delete(id)
	if err != nil {
		return false, fmt.Errorf("resolver: forget %s: %w", id.Short(), err)
	}
	if removed {
		r.logger.Info("resolver: event deleted", "id", id.Short())
		r.notify(Change{ID: id, Kind: ChangeForgotten})
	}
	return removed, nil
}

// Saved reports whether id has a persisted entry.
func (r *Resolver) Saved(id event.ID) (bool, error) {
	return r.store.Exists(id)
}

// List returns every persisted entry, newest first.
func (r *Resolver) List() ([]storage.Entry, error) {
	return r.store.List()
}
