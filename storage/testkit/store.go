package testkit

import (
	"errors"
	"testing"
	"time"

	"xdao.co/nref/event"
	"xdao.co/nref/event/eventtest"
	"xdao.co/nref/storage"
)

// NewStore constructs a fresh, empty Store for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

// Entry builds a storage entry for e saved from relay.
func Entry(e event.Event, relay string, savedAt time.Time) storage.Entry {
	return storage.Entry{
		Event: e,
		Metadata: storage.Metadata{
			SavedAt:     storage.FormatTime(savedAt),
			Relay:       relay,
			OriginalRef: e.ID.String(),
		},
	}
}

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("WriteReadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		e := eventtest.New(t, "round trip")
		want := Entry(e, "wss://relay.one", time.Unix(1700000000, 0))

		if err := s.Write(e.ID, want); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		ok, err := s.Exists(e.ID)
		if err != nil || !ok {
			t.Fatalf("Exists after Write: ok=%v err=%v", ok, err)
		}
		got, err := s.Read(e.ID)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got.Event.ID != e.ID || got.Event.Content != e.Content {
			t.Fatalf("Read event mismatch: %+v", got.Event)
		}
		if got.Metadata != want.Metadata {
			t.Fatalf("Read metadata mismatch: got %+v want %+v", got.Metadata, want.Metadata)
		}
	})

	t.Run("ReadMissing", func(t *testing.T) {
		s := newStore(t)
		e := eventtest.New(t, "missing")
		ok, err := s.Exists(e.ID)
		if err != nil || ok {
			t.Fatalf("Exists for missing: ok=%v err=%v", ok, err)
		}
		if _, err := s.Read(e.ID); !storage.IsNotFound(err) {
			t.Fatalf("Read missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("WriteOverwrites", func(t *testing.T) {
		s := newStore(t)
		e := eventtest.New(t, "overwrite")
		if err := s.Write(e.ID, Entry(e, "wss://first", time.Unix(1, 0))); err != nil {
			t.Fatalf("Write(1) failed: %v", err)
		}
		if err := s.Write(e.ID, Entry(e, "wss://second", time.Unix(2, 0))); err != nil {
			t.Fatalf("Write(2) failed: %v", err)
		}
		got, err := s.Read(e.ID)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got.Metadata.Relay != "wss://second" {
			t.Fatalf("expected overwritten relay, got %q", got.Metadata.Relay)
		}
	})

	t.Run("WriteRejectsMismatchedKey", func(t *testing.T) {
		s := newStore(t)
		a := eventtest.New(t, "a")
		b := eventtest.New(t, "b")
		err := s.Write(a.ID, Entry(b, "wss://x", time.Unix(1, 0)))
		if !errors.Is(err, storage.ErrIDMismatch) {
			t.Fatalf("Write mismatched: got %v want ErrIDMismatch", err)
		}
	})

	t.Run("DeleteSemantics", func(t *testing.T) {
		s := newStore(t)
		e := eventtest.New(t, "delete me")
		deleted, err := s.Delete(e.ID)
		if err != nil || deleted {
			t.Fatalf("Delete missing: deleted=%v err=%v", deleted, err)
		}
		if err := s.Write(e.ID, Entry(e, "wss://x", time.Unix(1, 0))); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		deleted, err = s.Delete(e.ID)
		if err != nil || !deleted {
			t.Fatalf("Delete existing: deleted=%v err=%v", deleted, err)
		}
		entries, err := s.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("List after delete: %d entries", len(entries))
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newStore(t)
		evs := eventtest.Many(t, 3)
		for i, e := range evs {
			if err := s.Write(e.ID, Entry(e, "wss://x", time.Unix(int64(100+i), 0))); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}
		entries, err := s.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("List: got %d entries want 3", len(entries))
		}
		for i, want := range []event.ID{evs[2].ID, evs[1].ID, evs[0].ID} {
			if entries[i].Event.ID != want {
				t.Fatalf("List[%d] = %s want %s", i, entries[i].Event.ID.Short(), want.Short())
			}
		}
	})
}
