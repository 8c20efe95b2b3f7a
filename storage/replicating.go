package storage

import (
	"fmt"

	"xdao.co/nref/event"
)

// NamedStore associates a Store with a stable name for error reporting.
type NamedStore struct {
	Name  string
	Store Store
}

// Replicating writes and deletes on every backend.
//
// Reads fall back in order. A Write that fails on one backend stops there and
// names it; backends earlier in the list keep the entry.
type Replicating struct {
	Backends []NamedStore
}

var _ Store = Replicating{}

func (r Replicating) stores() []Store {
	out := make([]Store, 0, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store != nil {
			out = append(out, b.Store)
		}
	}
	return out
}

func (r Replicating) Exists(id event.ID) (bool, error) {
	return Fallback{Stores: r.stores()}.Exists(id)
}

func (r Replicating) Read(id event.ID) (*Entry, error) {
	return readFirst(r.stores(), id)
}

func (r Replicating) Write(id event.ID, entry Entry) error {
	if len(r.Backends) == 0 {
		return errNoStores
	}
	if err := entry.Validate(id); err != nil {
		return err
	}
	for _, b := range r.Backends {
		if b.Store == nil {
			return fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		if err := b.Store.Write(id, entry); err != nil {
			return fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
	}
	return nil
}

// Delete removes id from every backend and reports whether any held it.
func (r Replicating) Delete(id event.ID) (bool, error) {
	if len(r.Backends) == 0 {
		return false, errNoStores
	}
	var removed bool
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		ok, err := b.Store.Delete(id)
		if err != nil {
			return removed, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		removed = removed || ok
	}
	return removed, nil
}

func (r Replicating) List() ([]Entry, error) {
	return listMerged(r.stores())
}
