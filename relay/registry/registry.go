// Package registry maps relay URL schemes to the transports that serve them.
//
// Transports register themselves in init():
//
//	registry.MustRegister(registry.Transport{ ... })
//
// A binary must import the transport package for registration to occur.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"xdao.co/nref/event"
	"xdao.co/nref/relay"
)

// Transport is a build-time plugin that can subscribe to relays of one or
// more URL schemes.
type Transport struct {
	Name        string
	Description string
	Schemes     []string
	Dialer      relay.Dialer
}

var (
	mu         sync.RWMutex
	transports = map[string]Transport{}
	bySchemes  = map[string]string{}
)

// Register registers a transport.
func Register(t Transport) error {
	if t.Name == "" {
		return fmt.Errorf("registry: transport name is required")
	}
	if len(t.Schemes) == 0 {
		return fmt.Errorf("registry: transport %q has no schemes", t.Name)
	}
	if t.Dialer == nil {
		return fmt.Errorf("registry: transport %q missing Dialer", t.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := transports[t.Name]; exists {
		return fmt.Errorf("registry: transport %q already registered", t.Name)
	}
	for _, s := range t.Schemes {
		if owner, taken := bySchemes[strings.ToLower(s)]; taken {
			return fmt.Errorf("registry: scheme %q already served by %q", s, owner)
		}
	}
	transports[t.Name] = t
	for _, s := range t.Schemes {
		bySchemes[strings.ToLower(s)] = t.Name
	}
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(t Transport) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// List returns registered transports sorted by name.
func List() []Transport {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Transport, 0, len(transports))
	for _, t := range transports {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns registered transport names, sorted.
func Names() []string {
	ts := List()
	n := make([]string, 0, len(ts))
	for _, t := range ts {
		n = append(n, t.Name)
	}
	return n
}

// Lookup returns the transport serving rawURL's scheme.
func Lookup(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Transport{}, fmt.Errorf("registry: bad relay url %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	mu.RLock()
	defer mu.RUnlock()
	name, ok := bySchemes[scheme]
	if !ok {
		return Transport{}, fmt.Errorf("registry: no transport for scheme %q", scheme)
	}
	return transports[name], nil
}

// Dialer returns a relay.Dialer that routes each subscription to the
// transport registered for the relay URL's scheme.
func Dialer() relay.Dialer {
	return relay.DialerFunc(func(ctx context.Context, rawURL string, id event.ID) (relay.Subscription, error) {
		t, err := Lookup(rawURL)
		if err != nil {
			return nil, err
		}
		return t.Dialer.Subscribe(ctx, rawURL, id)
	})
}

// unregister removes a transport. Tests use it to keep the global table clean.
func unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	t, ok := transports[name]
	if !ok {
		return
	}
	delete(transports, name)
	for _, s := range t.Schemes {
		delete(bySchemes, strings.ToLower(s))
	}
}
