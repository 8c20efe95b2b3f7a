// Package resolver turns event references into events.
//
// Resolution walks three tiers in a fixed order: the persisted store, the
// in-process cache, then the relay network. The first tier that has the event
// answers. Events fetched from the network are cached before they are
// returned; nothing is persisted unless the caller asks for it with Persist.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"xdao.co/nref/cache"
	"xdao.co/nref/event"
	"xdao.co/nref/nip19"
	"xdao.co/nref/relay"
	"xdao.co/nref/storage"
)

// Source labels for the non-network tiers.
const (
	SourcePersisted = "persisted"
	SourceCache     = "cache"
)

type Tier int

const (
	TierPersisted Tier = iota + 1
	TierCache
	TierNetwork
)

func (t Tier) String() string {
	switch t {
	case TierPersisted:
		return "persisted"
	case TierCache:
		return "cache"
	case TierNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Outcome is a successful resolution.
type Outcome struct {
	Event event.Event

	// Source is the relay URL that answered, the relay recorded in the
	// persisted entry (SourcePersisted when it recorded none), or SourceCache.
	Source string

	Tier Tier
}

// DecodeError reports a reference that could not be decoded. It is never
// worth retrying the same reference.
type DecodeError struct {
	Ref string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("resolver: cannot decode reference %q: %v", shortRef(e.Ref), e.Err)
}

// shortRef keeps user-facing messages to a recognisable prefix of ref.
func shortRef(ref string) string {
	const limit = 16
	if r := []rune(ref); len(r) > limit {
		return string(r[:limit]) + "…"
	}
	return ref
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Fetcher is the network tier. *relay.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, id event.ID, relays []string) (relay.Result, error)
}

// RelayList supplies the enabled relays, in configured order. It is consulted
// on every network resolution so configuration changes apply immediately.
type RelayList interface {
	EnabledRelays() []string
}

// RelayListFunc adapts a function to RelayList.
type RelayListFunc func() []string

func (f RelayListFunc) EnabledRelays() []string { return f() }

type Options struct {
	Store   storage.Store
	Fetcher Fetcher

	// Cache defaults to a fresh cache.New().
	Cache *cache.Cache

	// Relays may be nil, in which case only reference hints are tried.
	Relays RelayList

	// Now stamps persisted entries. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger

	// Coalesce makes overlapping network fetches of the same id share one
	// in-flight fetch. Off, concurrent resolutions of an uncached id each
	// query the network; the results are identical either way.
	Coalesce bool
}

var tracer = otel.Tracer("xdao.co/nref/resolver")

type Resolver struct {
	store   storage.Store
	cache   *cache.Cache
	fetcher Fetcher
	relays  RelayList
	now     func() time.Time
	logger  *slog.Logger

	coalesce bool
	inflight singleflight.Group

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

func New(opts Options) (*Resolver, error) {
	if opts.Store == nil {
		return nil, errors.New("resolver: store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("resolver: fetcher is required")
	}
	r := &Resolver{
		store:    opts.Store,
		cache:    opts.Cache,
		fetcher:  opts.Fetcher,
		relays:   opts.Relays,
		now:      opts.Now,
		logger:   opts.Logger,
		coalesce: opts.Coalesce,
		subs:     map[int]func(Change){},
	}
	if r.cache == nil {
		r.cache = cache.New()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r, nil
}

// Cache returns the memory tier.
func (r *Resolver) Cache() *cache.Cache { return r.cache }

// Resolve decodes ref and resolves the event it names. A reference that does
// not decode fails with *DecodeError before any tier is consulted; a network
// miss fails with an error wrapping relay.ErrExhausted.
func (r *Resolver) Resolve(ctx context.Context, ref string) (Outcome, error) {
	ptr, err := nip19.Decode(ref)
	if err != nil {
		return Outcome{}, &DecodeError{Ref: ref, Err: err}
	}
	return r.ResolveID(ctx, ptr.ID, ptr.Relays)
}

// ResolveID resolves id directly. hints are tried before the configured
// relays.
func (r *Resolver) ResolveID(ctx context.Context, id event.ID, hints []string) (out Outcome, err error) {
	ctx, span := tracer.Start(ctx, "resolver.resolve")
	span.SetAttributes(attribute.String("event.id", id.String()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("resolver.tier", out.Tier.String()))
		}
		span.End()
	}()

	if entry, ok := r.readPersisted(id); ok {
		source := entry.Metadata.Relay
		if source == "" {
			source = SourcePersisted
		}
		return Outcome{Event: entry.Event, Source: source, Tier: TierPersisted}, nil
	}

	if e, ok := r.cache.Get(id); ok {
		return Outcome{Event: e, Source: SourceCache, Tier: TierCache}, nil
	}

	res, err := r.fetch(ctx, id, r.candidates(hints))
	if err != nil {
		return Outcome{}, err
	}
	r.cache.Put(res.Event)
	return Outcome{Event: res.Event, Source: res.Relay, Tier: TierNetwork}, nil
}

func (r *Resolver) fetch(ctx context.Context, id event.ID, relays []string) (relay.Result, error) {
	if !r.coalesce {
		return r.fetcher.Fetch(ctx, id, relays)
	}
	// The shared fetch outlives any one caller; the per-relay timeout bounds it.
	ch := r.inflight.DoChan(id.String(), func() (any, error) {
		return r.fetcher.Fetch(context.WithoutCancel(ctx), id, relays)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("resolver: joined in-flight fetch", "id", id.Short())
		}
		if res.Err != nil {
			return relay.Result{}, res.Err
		}
		return res.Val.(relay.Result), nil
	case <-ctx.Done():
		return relay.Result{}, ctx.Err()
	}
}

// readPersisted treats every read failure as absence. Only unexpected
// failures are logged.
func (r *Resolver) readPersisted(id event.ID) (*storage.Entry, bool) {
	entry, err := r.store.Read(id)
	if err != nil {
		if !storage.IsNotFound(err) {
			r.logger.Warn("resolver: persisted read failed", "id", id.Short(), "err", err)
		}
		return nil, false
	}
	return entry, true
}

// candidates is hints followed by the enabled relays, first occurrence kept.
func (r *Resolver) candidates(hints []string) []string {
	var configured []string
	if r.relays != nil {
		configured = r.relays.EnabledRelays()
	}
	seen := make(map[string]bool, len(hints)+len(configured))
	out := make([]string, 0, len(hints)+len(configured))
	for _, list := range [][]string{hints, configured} {
		for _, u := range list {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// Shutdown clears the memory tier.
func (r *Resolver) Shutdown() {
	r.cache.Shutdown()
}
