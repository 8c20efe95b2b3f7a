// Package relay fetches events from relays: independently operated servers
// that may or may not hold a copy of a given event.
//
// Fetcher walks an ordered relay list one relay at a time. Each attempt opens a
// subscription filtered by event id and races the first matching event against
// a fixed timeout; whichever finishes first ends the attempt and the
// subscription is torn down before the next relay is tried.
package relay

import (
	"context"
	"errors"
	"fmt"

	"xdao.co/nref/event"
)

// ErrExhausted is returned when every candidate relay was tried without a
// match.
var ErrExhausted = errors.New("relay: event not found on any relay")

// EndpointError is a single relay's connection or subscription failure. It is
// logged and never terminal for a fetch.
type EndpointError struct {
	URL string
	Err error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.URL, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Subscription is an open id-filtered query against one relay.
//
// Events is closed when the relay signals end of stored events, when the
// subscription fails, or after Close. Err reports the failure, if any, once
// Events is closed. Close is synchronous: when it returns no further events
// are delivered.
type Subscription interface {
	Events() <-chan event.Event
	Err() error
	Close() error
}

// Dialer opens subscriptions.
type Dialer interface {
	Subscribe(ctx context.Context, url string, id event.ID) (Subscription, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, id event.ID) (Subscription, error)

func (f DialerFunc) Subscribe(ctx context.Context, url string, id event.ID) (Subscription, error) {
	return f(ctx, url, id)
}

// Verifier checks an event's signature. Signature checking is not done by
// this module; callers that need it plug a Verifier into the Fetcher.
type Verifier interface {
	Verify(e *event.Event) error
}

// Result is a successful fetch.
type Result struct {
	Event event.Event
	// Relay is the URL of the relay that answered.
	Relay string
}
