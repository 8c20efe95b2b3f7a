package cache

import (
	"sync"
	"testing"

	"xdao.co/nref/event"
	"xdao.co/nref/event/eventtest"
)

func TestPutGet(t *testing.T) {
	c := New()
	e := eventtest.New(t, "cached")
	if _, ok := c.Get(e.ID); ok {
		t.Fatalf("unexpected hit on empty cache")
	}
	c.Put(e)
	got, ok := c.Get(e.ID)
	if !ok || got.Content != "cached" {
		t.Fatalf("Get after Put: ok=%v content=%q", ok, got.Content)
	}
}

func TestFirstPutWins(t *testing.T) {
	c := New()
	e := eventtest.New(t, "first")
	other := e
	other.Content = "second"
	c.Put(e)
	c.Put(other)
	got, _ := c.Get(e.ID)
	if got.Content != "first" {
		t.Fatalf("content = %q, want first copy", got.Content)
	}
}

func TestPutIgnoresZeroID(t *testing.T) {
	c := New()
	c.Put(event.Event{Content: "no id"})
	if c.Len() != 0 {
		t.Fatalf("zero-id event was cached")
	}
}

func TestShutdownClears(t *testing.T) {
	c := New()
	for _, e := range eventtest.Many(t, 3) {
		c.Put(e)
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d want 3", c.Len())
	}
	c.Shutdown()
	if c.Len() != 0 {
		t.Fatalf("Len after Shutdown = %d", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	evs := eventtest.Many(t, 16)
	var wg sync.WaitGroup
	for _, e := range evs {
		wg.Add(1)
		go func(e event.Event) {
			defer wg.Done()
			c.Put(e)
			c.Get(e.ID)
		}(e)
	}
	wg.Wait()
	if c.Len() != len(evs) {
		t.Fatalf("Len = %d want %d", c.Len(), len(evs))
	}
}
