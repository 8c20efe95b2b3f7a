package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"xdao.co/nref/event"
	"xdao.co/nref/event/eventtest"
	"xdao.co/nref/nip19"
	"xdao.co/nref/relay"
	"xdao.co/nref/relay/relaytest"
	"xdao.co/nref/storage"
	"xdao.co/nref/storage/localfs"
	"xdao.co/nref/storage/memstore"
)

const unit = 40 * time.Millisecond

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	r      *Resolver
	dialer *relaytest.Dialer
	store  storage.Store
	dir    string
}

func newHarness(t *testing.T, relays []string, scripts map[string]relaytest.Script) *harness {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "nostr", "events")
	store, err := localfs.New(dir, localfs.Options{})
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	d := relaytest.NewDialer(scripts)
	r, err := New(Options{
		Store:   store,
		Fetcher: &relay.Fetcher{Dialer: d, Timeout: 5 * unit},
		Relays:  RelayListFunc(func() []string { return relays }),
		Now:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{r: r, dialer: d, store: store, dir: dir}
}

func noteRef(t *testing.T, id event.ID) string {
	t.Helper()
	ref, err := nip19.EncodeNote(id)
	if err != nil {
		t.Fatalf("EncodeNote: %v", err)
	}
	return ref
}

func TestNewRequiresStoreAndFetcher(t *testing.T) {
	if _, err := New(Options{Fetcher: &relay.Fetcher{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Options{Store: memstore.New()}); err == nil {
		t.Fatalf("expected error without fetcher")
	}
}

func TestResolve_DecodeErrorTouchesNoTier(t *testing.T) {
	h := newHarness(t, []string{"wss://a"}, nil)
	_, err := h.r.Resolve(context.Background(), "note1notbech32")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("got %v want *DecodeError", err)
	}
	if !errors.Is(err, nip19.ErrInvalid) {
		t.Fatalf("DecodeError should wrap nip19.ErrInvalid")
	}
	if len(h.dialer.Calls()) != 0 {
		t.Fatalf("decode failure must not reach the network")
	}
}

func TestResolve_PersistedWinsOverCacheAndNetwork(t *testing.T) {
	e := eventtest.New(t, "persisted copy")
	h := newHarness(t, []string{"wss://a"}, map[string]relaytest.Script{
		"wss://a": {Events: []event.Event{e}},
	})
	h.r.Cache().Put(e)
	if _, err := h.r.Persist(e, "wss://saved-from", e.ID, false); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	out, err := h.r.Resolve(context.Background(), noteRef(t, e.ID))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Tier != TierPersisted || out.Source != "wss://saved-from" {
		t.Fatalf("got tier=%v source=%q", out.Tier, out.Source)
	}
	if len(h.dialer.Calls()) != 0 {
		t.Fatalf("persisted hit must not reach the network")
	}
}

func TestResolve_PersistedWithoutRelayLabelled(t *testing.T) {
	e := eventtest.New(t, "no relay recorded")
	h := newHarness(t, nil, nil)
	if _, err := h.r.Persist(e, "", e.ID, false); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	out, err := h.r.ResolveID(context.Background(), e.ID, nil)
	if err != nil {
		t.Fatalf("ResolveID: %v", err)
	}
	if out.Source != SourcePersisted {
		t.Fatalf("source = %q want %q", out.Source, SourcePersisted)
	}
}

func TestResolve_CacheServedWithoutNetwork(t *testing.T) {
	e := eventtest.New(t, "cached")
	h := newHarness(t, []string{"wss://a", "wss://b"}, nil)
	h.r.Cache().Put(e)

	out, err := h.r.Resolve(context.Background(), noteRef(t, e.ID))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Tier != TierCache || out.Source != SourceCache {
		t.Fatalf("got tier=%v source=%q", out.Tier, out.Source)
	}
	if len(h.dialer.Calls()) != 0 {
		t.Fatalf("cache hit performed network calls: %v", h.dialer.Calls())
	}
}

func TestResolve_HintsFirstThenEnabledDeduped(t *testing.T) {
	id := eventtest.New(t, "nowhere").ID
	h := newHarness(t, []string{"wss://c", "wss://h2", "wss://d"}, map[string]relaytest.Script{
		"wss://h1": {EOSE: true},
		"wss://h2": {EOSE: true},
		"wss://c":  {EOSE: true},
		"wss://d":  {EOSE: true},
	})
	ref, err := nip19.EncodeEvent(nip19.Pointer{ID: id, Relays: []string{"wss://h1", "wss://h2", "wss://h1"}})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	_, err = h.r.Resolve(context.Background(), ref)
	if !errors.Is(err, relay.ErrExhausted) {
		t.Fatalf("got %v want ErrExhausted", err)
	}
	want := "wss://h1,wss://h2,wss://c,wss://d"
	if got := strings.Join(h.dialer.Calls(), ","); got != want {
		t.Fatalf("relay order = %s want %s", got, want)
	}
}

func TestResolve_TimeoutThenSecondRelayThenCache(t *testing.T) {
	e := eventtest.New(t, "answered by B")
	h := newHarness(t, []string{"A", "B"}, map[string]relaytest.Script{
		"B": {Delay: unit, Events: []event.Event{e}},
	})
	ref := noteRef(t, e.ID)

	start := time.Now()
	out, err := h.r.Resolve(context.Background(), ref)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Source != "B" || out.Tier != TierNetwork || out.Event.ID != e.ID {
		t.Fatalf("got source=%q tier=%v", out.Source, out.Tier)
	}
	if elapsed < 6*unit || elapsed > 12*unit {
		t.Fatalf("elapsed %v, want about %v", elapsed, 6*unit)
	}

	start = time.Now()
	out, err = h.r.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if out.Source != SourceCache {
		t.Fatalf("second resolve source = %q want cache", out.Source)
	}
	if time.Since(start) > unit {
		t.Fatalf("cache hit took %v", time.Since(start))
	}
	if len(h.dialer.Calls()) != 2 {
		t.Fatalf("second resolve reached the network: %v", h.dialer.Calls())
	}
}

func TestResolve_ExhaustedIsBoundedAndNotCached(t *testing.T) {
	id := eventtest.New(t, "missing").ID
	h := newHarness(t, []string{"A", "B"}, nil)

	start := time.Now()
	_, err := h.r.ResolveID(context.Background(), id, nil)
	if !errors.Is(err, relay.ErrExhausted) {
		t.Fatalf("got %v want ErrExhausted", err)
	}
	if !strings.Contains(err.Error(), id.Short()) {
		t.Fatalf("error should carry the short id: %v", err)
	}
	if time.Since(start) > 14*unit {
		t.Fatalf("fetch exceeded its bound: %v", time.Since(start))
	}
	if h.r.Cache().Len() != 0 {
		t.Fatalf("a miss must not populate the cache")
	}
}

func TestResolve_StoreReadErrorFallsThrough(t *testing.T) {
	e := eventtest.New(t, "corrupt on disk")
	h := newHarness(t, nil, nil)
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.dir, e.ID.String()+".json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.r.Cache().Put(e)

	out, err := h.r.ResolveID(context.Background(), e.ID, nil)
	if err != nil {
		t.Fatalf("ResolveID: %v", err)
	}
	if out.Tier != TierCache {
		t.Fatalf("tier = %v want cache", out.Tier)
	}
}

func TestPersist_RoundTrip(t *testing.T) {
	e := eventtest.New(t, "round trip")
	h := newHarness(t, nil, nil)

	status, err := h.r.Persist(e, "wss://nos.lol", e.ID, false)
	if err != nil || status != StatusSaved {
		t.Fatalf("Persist = %v, %v", status, err)
	}
	out, err := h.r.ResolveID(context.Background(), e.ID, nil)
	if err != nil {
		t.Fatalf("ResolveID: %v", err)
	}
	if out.Source != "wss://nos.lol" || out.Event.Content != "round trip" {
		t.Fatalf("got %+v", out)
	}

	entry, err := h.store.Read(e.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if entry.Metadata.SavedAt != "2024-03-01T12:00:00.000Z" {
		t.Fatalf("saved_at = %q", entry.Metadata.SavedAt)
	}
	if entry.Metadata.OriginalRef != e.ID.String() {
		t.Fatalf("original_ref = %q", entry.Metadata.OriginalRef)
	}
}

func TestPersist_NoOverwriteKeepsFirst(t *testing.T) {
	e := eventtest.New(t, "first save")
	h := newHarness(t, nil, nil)

	if _, err := h.r.Persist(e, "B", e.ID, false); err != nil {
		t.Fatalf("Persist B: %v", err)
	}
	path := filepath.Join(h.dir, e.ID.String()+".json")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	h.r.now = func() time.Time { return fixedNow.Add(time.Hour) }
	status, err := h.r.Persist(e, "C", e.ID, false)
	if err != nil {
		t.Fatalf("Persist C: %v", err)
	}
	if status != StatusAlreadyExists {
		t.Fatalf("status = %v want already exists", status)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatalf("entry changed on disk")
	}
	entry, _ := h.store.Read(e.ID)
	if entry.Metadata.Relay != "B" {
		t.Fatalf("relay = %q want B", entry.Metadata.Relay)
	}
}

func TestPersist_OverwriteReplaces(t *testing.T) {
	e := eventtest.New(t, "overwrite")
	h := newHarness(t, nil, nil)
	if _, err := h.r.Persist(e, "B", e.ID, false); err != nil {
		t.Fatal(err)
	}
	status, err := h.r.Persist(e, "C", e.ID, true)
	if err != nil || status != StatusOverwritten {
		t.Fatalf("Persist = %v, %v", status, err)
	}
	entry, _ := h.store.Read(e.ID)
	if entry.Metadata.Relay != "C" {
		t.Fatalf("relay = %q want C", entry.Metadata.Relay)
	}
}

func TestPersist_RejectsMismatchedID(t *testing.T) {
	e := eventtest.New(t, "one")
	other := eventtest.New(t, "two")
	h := newHarness(t, nil, nil)
	if _, err := h.r.Persist(e, "B", other.ID, false); !errors.Is(err, storage.ErrIDMismatch) {
		t.Fatalf("got %v want ErrIDMismatch", err)
	}
}

func TestForget(t *testing.T) {
	e := eventtest.New(t, "to forget")
	h := newHarness(t, nil, nil)

	removed, err := h.r.Forget(e.ID)
	if err != nil || removed {
		t.Fatalf("Forget absent = %v, %v", removed, err)
	}
	if _, err := os.Stat(h.dir); !os.IsNotExist(err) {
		t.Fatalf("forgetting an absent entry created the store directory")
	}

	if _, err := h.r.Persist(e, "B", e.ID, false); err != nil {
		t.Fatal(err)
	}
	h.r.Cache().Put(e)
	removed, err = h.r.Forget(e.ID)
	if err != nil || !removed {
		t.Fatalf("Forget = %v, %v", removed, err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, e.ID.String()+".json")); !os.IsNotExist(err) {
		t.Fatalf("file still present")
	}
	list, err := h.r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("List still includes forgotten entry")
	}
	saved, _ := h.r.Saved(e.ID)
	if saved {
		t.Fatalf("Saved reports a forgotten entry")
	}

	out, err := h.r.ResolveID(context.Background(), e.ID, nil)
	if err != nil || out.Source != SourceCache {
		t.Fatalf("after forget: %v source=%q, want cache hit", err, out.Source)
	}
	if len(h.dialer.Calls()) != 0 {
		t.Fatalf("forgotten entry re-fetched from network")
	}
}

func TestSubscribeNotifiesMutations(t *testing.T) {
	e := eventtest.New(t, "watched")
	h := newHarness(t, nil, nil)

	var got []Change
	cancel := h.r.Subscribe(func(c Change) { got = append(got, c) })

	_, _ = h.r.Persist(e, "B", e.ID, false)
	_, _ = h.r.Persist(e, "C", e.ID, false) // already exists: no change
	_, _ = h.r.Forget(e.ID)
	_, _ = h.r.Forget(e.ID) // absent: no change
	cancel()
	_, _ = h.r.Persist(e, "B", e.ID, false)

	if len(got) != 2 || got[0].Kind != ChangeSaved || got[1].Kind != ChangeForgotten || got[0].ID != e.ID {
		t.Fatalf("changes = %+v", got)
	}
}

func TestShutdownClearsCache(t *testing.T) {
	e := eventtest.New(t, "volatile")
	h := newHarness(t, nil, nil)
	h.r.Cache().Put(e)
	h.r.Shutdown()
	if h.r.Cache().Len() != 0 {
		t.Fatalf("cache not cleared")
	}
}

// countingFetcher blocks every call until release is closed.
type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	e       event.Event
}

func (f *countingFetcher) Fetch(ctx context.Context, id event.ID, relays []string) (relay.Result, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return relay.Result{}, ctx.Err()
	}
	return relay.Result{Event: f.e, Relay: "wss://a"}, nil
}

func runConcurrent(t *testing.T, coalesce bool) int32 {
	t.Helper()
	e := eventtest.New(t, "popular")
	f := &countingFetcher{release: make(chan struct{}), e: e}
	r, err := New(Options{Store: memstore.New(), Fetcher: f, Coalesce: coalesce})
	if err != nil {
		t.Fatal(err)
	}

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.ResolveID(context.Background(), e.ID, nil)
			if err == nil && out.Event.ID != e.ID {
				err = errors.New("wrong event")
			}
			errs <- err
		}()
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		c := f.calls.Load()
		if (coalesce && c >= 1) || c == n || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ResolveID: %v", err)
		}
	}
	if r.Cache().Len() != 1 {
		t.Fatalf("cache len = %d", r.Cache().Len())
	}
	return f.calls.Load()
}

func TestConcurrentResolveWithoutCoalescing(t *testing.T) {
	if got := runConcurrent(t, false); got != 4 {
		t.Fatalf("fetch calls = %d want 4", got)
	}
}

func TestConcurrentResolveCoalesced(t *testing.T) {
	if got := runConcurrent(t, true); got != 1 {
		t.Fatalf("fetch calls = %d want 1", got)
	}
}

func TestCoalescedFetchSurvivesFirstCallerCancel(t *testing.T) {
	e := eventtest.New(t, "shared")
	f := &countingFetcher{release: make(chan struct{}), e: e}
	r, err := New(Options{Store: memstore.New(), Fetcher: f, Coalesce: true})
	if err != nil {
		t.Fatal(err)
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.ResolveID(ctxA, e.ID, []string{"wss://a"})
		errA <- err
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type result struct {
		out Outcome
		err error
	}
	resB := make(chan result, 1)
	go func() {
		out, err := r.ResolveID(context.Background(), e.ID, []string{"wss://a"})
		resB <- result{out, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("first caller err = %v want context.Canceled", err)
	}
	close(f.release)

	got := <-resB
	if got.err != nil {
		t.Fatalf("second caller err = %v", got.err)
	}
	if got.out.Event.ID != e.ID || got.out.Tier != TierNetwork {
		t.Fatalf("unexpected outcome %+v", got.out)
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d want 1", n)
	}
}

func TestDecodeErrorMessageIsShort(t *testing.T) {
	ref := "nostr:note1" + strings.Repeat("x", 60)
	err := &DecodeError{Ref: ref, Err: nip19.ErrInvalid}
	msg := err.Error()
	if strings.Contains(msg, ref) {
		t.Fatalf("message carries the full reference: %q", msg)
	}
	if !strings.Contains(msg, ref[:16]+"…") {
		t.Fatalf("message %q lacks the reference prefix", msg)
	}
	if err.Ref != ref {
		t.Fatalf("Ref field truncated")
	}
}
