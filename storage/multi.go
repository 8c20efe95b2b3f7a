package storage

import (
	"errors"
	"sort"

	"xdao.co/nref/event"
)

// Fallback reads across several stores in a fixed order.
//
// Lookup order is the slice order in Stores; callers MUST supply a fixed order.
// Write and Delete touch only the first store, the rest are read-only.
type Fallback struct {
	Stores []Store
}

var _ Store = Fallback{}

var errNoStores = errors.New("storage: no stores configured")

func (f Fallback) Exists(id event.ID) (bool, error) {
	for _, s := range f.Stores {
		ok, err := s.Exists(id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (f Fallback) Read(id event.ID) (*Entry, error) {
	return readFirst(f.Stores, id)
}

func (f Fallback) Write(id event.ID, entry Entry) error {
	if len(f.Stores) == 0 {
		return errNoStores
	}
	return f.Stores[0].Write(id, entry)
}

func (f Fallback) Delete(id event.ID) (bool, error) {
	if len(f.Stores) == 0 {
		return false, errNoStores
	}
	return f.Stores[0].Delete(id)
}

// List merges every store's entries. An id held by several stores is reported
// once, from the earliest store.
func (f Fallback) List() ([]Entry, error) {
	return listMerged(f.Stores)
}

func readFirst(stores []Store, id event.ID) (*Entry, error) {
	for _, s := range stores {
		e, err := s.Read(id)
		if err == nil {
			return e, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func listMerged(stores []Store) ([]Entry, error) {
	seen := map[event.ID]struct{}{}
	var out []Entry
	for _, s := range stores {
		entries, err := s.List()
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if _, dup := seen[e.Event.ID]; dup {
				continue
			}
			seen[e.Event.ID] = struct{}{}
			out = append(out, e)
		}
	}
	SortNewest(out)
	return out, nil
}

// SortNewest orders entries by saved time descending, ties broken by id.
// Entries whose SavedAt does not parse fall back to comparing the raw text.
func SortNewest(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Metadata, entries[j].Metadata
		ta, errA := a.SavedTime()
		tb, errB := b.SavedTime()
		switch {
		case errA == nil && errB == nil:
			if !ta.Equal(tb) {
				return ta.After(tb)
			}
		case a.SavedAt != b.SavedAt:
			return a.SavedAt > b.SavedAt
		}
		return entries[i].Event.ID.String() < entries[j].Event.ID.String()
	})
}
