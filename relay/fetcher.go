package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"xdao.co/nref/event"
)

// DefaultTimeout bounds a single relay attempt.
const DefaultTimeout = 5 * time.Second

var (
	tracer        = otel.Tracer("xdao.co/nref/relay")
	discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Fetcher tries relays in order until one returns the requested event.
//
// Worst-case latency is len(relays) × Timeout: every relay attempt, dial
// included, runs under its own deadline.
type Fetcher struct {
	Dialer Dialer

	// Timeout applies per relay attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// Verifier, when set, must accept an event before it counts as a match.
	Verifier Verifier

	Logger *slog.Logger
}

// Fetch returns the first event matching id from relays, tried strictly in
// order. Relay failures advance to the next relay; only cancellation of ctx
// or exhaustion of the list ends the fetch with an error.
func (f *Fetcher) Fetch(ctx context.Context, id event.ID, relays []string) (Result, error) {
	if f.Dialer == nil {
		return Result{}, errors.New("relay: fetcher has no dialer")
	}
	log := f.logger()
	for _, url := range relays {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		ev, ok, err := f.fetchOne(ctx, id, url)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			log.Warn("relay: attempt failed", "relay", url, "id", id.Short(), "err", err)
			continue
		}
		if ok {
			log.Debug("relay: event found", "relay", url, "id", id.Short())
			return Result{Event: ev, Relay: url}, nil
		}
		log.Debug("relay: no match", "relay", url, "id", id.Short())
	}
	return Result{}, fmt.Errorf("%w: %s (%d relays tried)", ErrExhausted, id.Short(), len(relays))
}

// fetchOne runs a single relay attempt. It returns ok=false with a nil error
// when the relay had nothing before the deadline or end of stored events.
func (f *Fetcher) fetchOne(ctx context.Context, id event.ID, url string) (ev event.Event, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "relay.attempt")
	span.SetAttributes(attribute.String("relay.url", url), attribute.String("event.id", id.String()))
	defer func() {
		span.SetAttributes(attribute.Bool("relay.match", ok))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	sub, err := f.Dialer.Subscribe(attemptCtx, url, id)
	if err != nil {
		return event.Event{}, false, &EndpointError{URL: url, Err: err}
	}
	defer sub.Close()

	events := sub.Events()
	for {
		select {
		case <-attemptCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return event.Event{}, false, ctxErr
			}
			return event.Event{}, false, nil
		case got, open := <-events:
			if !open {
				if subErr := sub.Err(); subErr != nil {
					return event.Event{}, false, &EndpointError{URL: url, Err: subErr}
				}
				return event.Event{}, false, nil
			}
			if got.ID != id {
				continue
			}
			if err := got.CheckID(); err != nil {
				f.logger().Warn("relay: dropping event with bad id", "relay", url, "id", id.Short(), "err", err)
				continue
			}
			if f.Verifier != nil {
				if err := f.Verifier.Verify(&got); err != nil {
					f.logger().Warn("relay: dropping unverified event", "relay", url, "id", id.Short(), "err", err)
					continue
				}
			}
			return got, true, nil
		}
	}
}

func (f *Fetcher) timeout() time.Duration {
	if f.Timeout <= 0 {
		return DefaultTimeout
	}
	return f.Timeout
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return discardLogger
	}
	return f.Logger
}
