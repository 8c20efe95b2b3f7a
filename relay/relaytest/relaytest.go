// Package relaytest provides a scripted relay.Dialer for tests.
package relaytest

import (
	"context"
	"sync"
	"time"

	"xdao.co/nref/event"
	"xdao.co/nref/relay"
)

// Script describes how a fake relay behaves for every subscription.
type Script struct {
	// DialErr fails Subscribe outright.
	DialErr error
	// Delay is waited before the first event is delivered.
	Delay time.Duration
	// Events are delivered in order after Delay.
	Events []event.Event
	// EOSE ends the subscription after Events; otherwise it stays open until
	// closed.
	EOSE bool
	// StreamErr ends the subscription with an error after Events.
	StreamErr error
}

// Dialer serves Scripts keyed by relay URL. URLs without a script hang until
// the subscription is closed.
type Dialer struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   []string
	open    int
}

func NewDialer(scripts map[string]Script) *Dialer {
	if scripts == nil {
		scripts = map[string]Script{}
	}
	return &Dialer{scripts: scripts}
}

var _ relay.Dialer = (*Dialer)(nil)

// Set replaces the script for url.
func (d *Dialer) Set(url string, s Script) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[url] = s
}

// Calls returns the relay URLs subscribed to, in order.
func (d *Dialer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Open returns the number of subscriptions not yet closed.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dialer) Subscribe(ctx context.Context, url string, id event.ID) (relay.Subscription, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	script := d.scripts[url]
	d.mu.Unlock()

	if script.DialErr != nil {
		return nil, script.DialErr
	}

	d.mu.Lock()
	d.open++
	d.mu.Unlock()

	s := &subscription{
		events: make(chan event.Event),
		done:   make(chan struct{}),
		onClose: func() {
			d.mu.Lock()
			d.open--
			d.mu.Unlock()
		},
	}
	s.wg.Add(1)
	go s.run(script)
	return s, nil
}

type subscription struct {
	events  chan event.Event
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	onClose func()

	mu  sync.Mutex
	err error
}

func (s *subscription) run(script Script) {
	defer s.wg.Done()
	defer close(s.events)

	if script.Delay > 0 {
		t := time.NewTimer(script.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.done:
			return
		}
	}
	for _, e := range script.Events {
		select {
		case s.events <- e:
		case <-s.done:
			return
		}
	}
	if script.StreamErr != nil {
		s.mu.Lock()
		s.err = script.StreamErr
		s.mu.Unlock()
		return
	}
	if script.EOSE {
		return
	}
	<-s.done
}

func (s *subscription) Events() <-chan event.Event { return s.events }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.onClose()
	})
	return nil
}
