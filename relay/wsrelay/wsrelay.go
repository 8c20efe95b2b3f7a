// Package wsrelay subscribes to Nostr relays over websockets using the
// NIP-01 message protocol.
//
// A subscription sends ["REQ", <sub>, {"ids":[<id>]}] and delivers every
// ["EVENT", <sub>, {...}] that follows. ["EOSE", <sub>] ends the stream
// cleanly; ["CLOSED", <sub>, <reason>] ends it with an error. Closing the
// subscription sends ["CLOSE", <sub>] before the connection is dropped.
package wsrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"xdao.co/nref/event"
	"xdao.co/nref/relay"
	"xdao.co/nref/relay/registry"
)

const (
	msgReq    = "REQ"
	msgClose  = "CLOSE"
	msgEvent  = "EVENT"
	msgEOSE   = "EOSE"
	msgClosed = "CLOSED"
	msgNotice = "NOTICE"

	closeWriteTimeout = time.Second
)

// Dialer opens NIP-01 subscriptions against ws:// and wss:// relays.
type Dialer struct {
	// Origin is sent in the handshake. Empty derives it from the relay URL.
	Origin string

	Logger *slog.Logger
}

var _ relay.Dialer = (*Dialer)(nil)

type filter struct {
	IDs []string `json:"ids"`
}

func (d *Dialer) Subscribe(ctx context.Context, rawURL string, id event.ID) (relay.Subscription, error) {
	origin := d.Origin
	if origin == "" {
		var err error
		if origin, err = originFor(rawURL); err != nil {
			return nil, err
		}
	}
	cfg, err := websocket.NewConfig(rawURL, origin)
	if err != nil {
		return nil, fmt.Errorf("wsrelay: %w", err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	subID := uuid.NewString()
	req, err := json.Marshal([]any{msgReq, subID, filter{IDs: []string{id.String()}}})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := websocket.Message.Send(conn, string(req)); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s := &subscription{
		conn:   conn,
		subID:  subID,
		url:    rawURL,
		logger: d.logger(),
		events: make(chan event.Event),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// logger falls back to slog.Default at dial time, so a default installed
// after registration still applies.
func (d *Dialer) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func originFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("wsrelay: bad url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "ws":
		return "http://" + u.Host, nil
	case "wss":
		return "https://" + u.Host, nil
	default:
		return "", fmt.Errorf("wsrelay: unsupported scheme %q", u.Scheme)
	}
}

type subscription struct {
	conn   *websocket.Conn
	subID  string
	url    string
	logger *slog.Logger

	events chan event.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

func (s *subscription) Events() <-chan event.Event { return s.events }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if msg, mErr := json.Marshal([]any{msgClose, s.subID}); mErr == nil {
			_ = s.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
			_ = websocket.Message.Send(s.conn, string(msg))
		}
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *subscription) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	seen := make(map[event.ID]bool)
	for {
		var raw string
		if err := websocket.Message.Receive(s.conn, &raw); err != nil {
			select {
			case <-s.done:
			default:
				s.setErr(err)
			}
			return
		}

		var msg []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil || len(msg) == 0 {
			s.logger.Debug("wsrelay: ignoring malformed message", "relay", s.url)
			continue
		}
		var kind string
		if err := json.Unmarshal(msg[0], &kind); err != nil {
			continue
		}

		switch kind {
		case msgEvent:
			if len(msg) < 3 || !s.ours(msg[1]) {
				continue
			}
			var e event.Event
			if err := json.Unmarshal(msg[2], &e); err != nil {
				s.logger.Debug("wsrelay: ignoring undecodable event", "relay", s.url, "err", err)
				continue
			}
			if seen[e.ID] {
				continue
			}
			// Only a copy whose content hashes to its id counts as delivered;
			// a forged copy must not shadow the genuine one.
			if e.CheckID() == nil {
				seen[e.ID] = true
			}
			select {
			case s.events <- e:
			case <-s.done:
				return
			}
		case msgEOSE:
			if len(msg) >= 2 && s.ours(msg[1]) {
				return
			}
		case msgClosed:
			if len(msg) < 2 || !s.ours(msg[1]) {
				continue
			}
			var reason string
			if len(msg) >= 3 {
				_ = json.Unmarshal(msg[2], &reason)
			}
			s.setErr(fmt.Errorf("wsrelay: subscription closed by relay: %s", reason))
			return
		case msgNotice:
			var notice string
			if len(msg) >= 2 {
				_ = json.Unmarshal(msg[1], &notice)
			}
			s.logger.Info("wsrelay: relay notice", "relay", s.url, "notice", notice)
		}
	}
}

func (s *subscription) ours(raw json.RawMessage) bool {
	var id string
	return json.Unmarshal(raw, &id) == nil && id == s.subID
}

func init() {
	registry.MustRegister(registry.Transport{
		Name:        "websocket",
		Description: "NIP-01 relay over websocket",
		Schemes:     []string{"ws", "wss"},
		Dialer:      &Dialer{},
	})
}
