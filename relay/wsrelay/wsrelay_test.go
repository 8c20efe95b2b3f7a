package wsrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"xdao.co/nref/event"
	"xdao.co/nref/event/eventtest"
	"xdao.co/nref/relay"
)

// fakeRelay answers each REQ with the stored events whose id was requested,
// followed by the message produced by tail.
type fakeRelay struct {
	events []event.Event
	tail   func(subID string) []any

	mu     sync.Mutex
	closed []string
}

func (f *fakeRelay) handler() websocket.Handler {
	return func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			var raw string
			if err := websocket.Message.Receive(conn, &raw); err != nil {
				return
			}
			var msg []json.RawMessage
			if err := json.Unmarshal([]byte(raw), &msg); err != nil || len(msg) < 2 {
				return
			}
			var kind, subID string
			_ = json.Unmarshal(msg[0], &kind)
			_ = json.Unmarshal(msg[1], &subID)

			switch kind {
			case "CLOSE":
				f.mu.Lock()
				f.closed = append(f.closed, subID)
				f.mu.Unlock()
				return
			case "REQ":
				var flt struct {
					IDs []string `json:"ids"`
				}
				if len(msg) > 2 {
					_ = json.Unmarshal(msg[2], &flt)
				}
				_ = websocket.JSON.Send(conn, []any{"NOTICE", "welcome"})
				_ = websocket.JSON.Send(conn, []any{"EVENT", "someone-else", f.events})
				for _, e := range f.events {
					for _, want := range flt.IDs {
						if e.ID.String() == want {
							// Relays may repeat an event; the client must dedupe.
							_ = websocket.JSON.Send(conn, []any{"EVENT", subID, e})
							_ = websocket.JSON.Send(conn, []any{"EVENT", subID, e})
						}
					}
				}
				if f.tail != nil {
					if m := f.tail(subID); m != nil {
						_ = websocket.JSON.Send(conn, m)
					}
				}
			}
		}
	}
}

func (f *fakeRelay) closedSubs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

func startRelay(t *testing.T, f *fakeRelay) string {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func eose(subID string) []any { return []any{"EOSE", subID} }

func TestSubscribe_DeliversMatchThenEOSE(t *testing.T) {
	e := eventtest.New(t, "over the wire")
	f := &fakeRelay{events: []event.Event{e}, tail: eose}
	url := startRelay(t, f)

	d := &Dialer{}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sub, err := d.Subscribe(ctx, url, e.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	var got []event.Event
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	if sub.Err() != nil {
		t.Fatalf("Err: %v", sub.Err())
	}
	if len(got) != 1 || got[0].ID != e.ID || got[0].Content != e.Content {
		t.Fatalf("got %d events, want exactly the requested one", len(got))
	}
	if err := got[0].CheckID(); err != nil {
		t.Fatalf("decoded event does not hash to its id: %v", err)
	}
}

func TestSubscribe_ClosedByRelay(t *testing.T) {
	f := &fakeRelay{tail: func(subID string) []any { return []any{"CLOSED", subID, "blocked: rate limited"} }}
	url := startRelay(t, f)

	sub, err := (&Dialer{}).Subscribe(context.Background(), url, eventtest.New(t, "x").ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	for range sub.Events() {
		t.Fatalf("no events expected")
	}
	if err := sub.Err(); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("Err = %v, want relay reason", err)
	}
}

func TestSubscribe_CloseSendsCLOSE(t *testing.T) {
	f := &fakeRelay{}
	url := startRelay(t, f)

	sub, err := (&Dialer{}).Subscribe(context.Background(), url, eventtest.New(t, "x").ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, open := <-sub.Events(); open {
		t.Fatalf("events channel should be closed after Close")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(f.closedSubs()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("relay never received CLOSE")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sub.Err() != nil {
		t.Fatalf("Close should not surface an error: %v", sub.Err())
	}
}

func TestFetcherOverWebsocket(t *testing.T) {
	e := eventtest.New(t, "second relay has it")
	silent := startRelay(t, &fakeRelay{})
	empty := startRelay(t, &fakeRelay{tail: eose})
	full := startRelay(t, &fakeRelay{events: []event.Event{e}, tail: eose})

	f := &relay.Fetcher{Dialer: &Dialer{}, Timeout: 300 * time.Millisecond}
	res, err := f.Fetch(context.Background(), e.ID, []string{silent, empty, full})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Relay != full {
		t.Fatalf("relay = %s want %s", res.Relay, full)
	}
}

func TestFetcher_ForgedCopyDoesNotShadowGenuine(t *testing.T) {
	e := eventtest.New(t, "genuine")
	forged := e
	forged.Content = "tampered"
	url := startRelay(t, &fakeRelay{events: []event.Event{forged, e}, tail: eose})

	f := &relay.Fetcher{Dialer: &Dialer{}, Timeout: time.Second}
	res, err := f.Fetch(context.Background(), e.ID, []string{url})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Event.Content != e.Content {
		t.Fatalf("content = %q want %q", res.Event.Content, e.Content)
	}
}

func TestSubscribe_UsesDefaultLoggerAtDialTime(t *testing.T) {
	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	url := startRelay(t, &fakeRelay{tail: eose})
	sub, err := (&Dialer{}).Subscribe(context.Background(), url, eventtest.New(t, "x").ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for range sub.Events() {
	}
	_ = sub.Close()
	if !strings.Contains(buf.String(), "welcome") {
		t.Fatalf("expected relay notice in default logger, got %q", buf.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSubscribe_DialFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	if _, err := (&Dialer{}).Subscribe(context.Background(), url, eventtest.New(t, "x").ID); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestOriginFor(t *testing.T) {
	cases := map[string]string{
		"ws://127.0.0.1:9000": "http://127.0.0.1:9000",
		"wss://nos.lol":       "https://nos.lol",
	}
	for in, want := range cases {
		got, err := originFor(in)
		if err != nil || got != want {
			t.Fatalf("originFor(%q) = %q, %v want %q", in, got, err, want)
		}
	}
	if _, err := originFor("https://nos.lol"); err == nil {
		t.Fatalf("expected error for non-websocket scheme")
	}
}
