package grpcrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/nref/event"
	"xdao.co/nref/relay"
	"xdao.co/nref/storage"
)

// Client looks events up on one mirror.
type Client struct {
	cc     *grpc.ClientConn
	client MirrorClient

	// Timeout applies per RPC when non-zero, in addition to the caller's
	// context.
	Timeout time.Duration
}

type DialOptions struct {
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

// Dial creates a client for target (host:port). The connection is
// established lazily on the first RPC.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewMirrorClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Get fetches id from the mirror. A mirror that does not hold id yields
// storage.ErrNotFound.
func (c *Client) Get(ctx context.Context, id event.ID) (event.Event, error) {
	key, err := id.CID()
	if err != nil {
		return event.Event{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(key.String()))
	if err != nil {
		return event.Event{}, mapRPC(err)
	}
	var e event.Event
	if err := json.Unmarshal(reply.GetValue(), &e); err != nil {
		return event.Event{}, fmt.Errorf("grpcrelay: decode event: %w", err)
	}
	if e.ID != id {
		return event.Event{}, storage.ErrIDMismatch
	}
	return e, nil
}

func (c *Client) Has(ctx context.Context, id event.ID) (bool, error) {
	key, err := id.CID()
	if err != nil {
		return false, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(key.String()))
	if err != nil {
		return false, mapRPC(err)
	}
	return reply.GetValue(), nil
}

// Subscribe runs a single Get in the background and presents it as a
// subscription: the event, if the mirror has it, then end of stream.
func (c *Client) Subscribe(ctx context.Context, _ string, id event.ID) (relay.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{events: make(chan event.Event, 1), cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.events)
		e, err := c.Get(ctx, id)
		switch {
		case err == nil:
			s.events <- e
		case errors.Is(err, storage.ErrNotFound):
		default:
			s.err = err
		}
	}()
	return s, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

type subscription struct {
	events chan event.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
	err    error
}

func (s *subscription) Events() <-chan event.Event { return s.events }

// Err is only meaningful once Events is closed.
func (s *subscription) Err() error { return s.err }

func (s *subscription) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
