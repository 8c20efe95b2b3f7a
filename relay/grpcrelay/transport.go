package grpcrelay

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"xdao.co/nref/event"
	"xdao.co/nref/relay"
	"xdao.co/nref/relay/registry"
)

// Scheme is the relay URL scheme served by this package: grpc://host:port.
const Scheme = "grpc"

// Dialer subscribes to mirrors addressed by grpc:// URLs, keeping one client
// per host.
type Dialer struct {
	Options DialOptions

	mu      sync.Mutex
	clients map[string]*Client
}

var _ relay.Dialer = (*Dialer)(nil)

func (d *Dialer) Subscribe(ctx context.Context, rawURL string, id event.ID) (relay.Subscription, error) {
	target, err := targetOf(rawURL)
	if err != nil {
		return nil, err
	}
	c, err := d.client(target)
	if err != nil {
		return nil, err
	}
	return c.Subscribe(ctx, rawURL, id)
}

// Close releases every client opened by d.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for target, c := range d.clients {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(d.clients, target)
	}
	return first
}

func (d *Dialer) client(target string) (*Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.clients[target]; ok {
		return c, nil
	}
	c, err := Dial(target, d.Options)
	if err != nil {
		return nil, err
	}
	if d.clients == nil {
		d.clients = map[string]*Client{}
	}
	d.clients[target] = c
	return c, nil
}

func targetOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("grpcrelay: bad url %q: %w", rawURL, err)
	}
	if u.Scheme != Scheme {
		return "", fmt.Errorf("grpcrelay: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("grpcrelay: url %q has no host", rawURL)
	}
	return u.Host, nil
}

func init() {
	registry.MustRegister(registry.Transport{
		Name:        "grpc",
		Description: "gRPC mirror lookup (talks to an xdao-nrefd daemon)",
		Schemes:     []string{Scheme},
		Dialer:      &Dialer{},
	})
}
