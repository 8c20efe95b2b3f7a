// Package eventtest builds well-formed events for tests.
package eventtest

import (
	"fmt"
	"testing"

	"xdao.co/nref/event"
)

const testPubKey = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"

// New returns a text note with a correct content-derived ID.
func New(t testing.TB, content string) event.Event {
	t.Helper()
	e := event.Event{
		PubKey:    testPubKey,
		CreatedAt: 1700000000,
		Kind:      event.KindTextNote,
		Tags:      []event.Tag{},
		Content:   content,
	}
	return Seal(t, e)
}

// Seal computes and sets e.ID.
func Seal(t testing.TB, e event.Event) event.Event {
	t.Helper()
	id, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	e.ID = id
	return e
}

// Many returns n distinct notes.
func Many(t testing.TB, n int) []event.Event {
	t.Helper()
	out := make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, New(t, fmt.Sprintf("note %d", i)))
	}
	return out
}
