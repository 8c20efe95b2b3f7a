package event

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func sampleEvent() Event {
	return Event{
		PubKey:    "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		CreatedAt: 1700000000,
		Kind:      KindTextNote,
		Tags:      []Tag{{"e", "abc"}, {"p", "def", "wss://nos.lol"}},
		Content:   "line one\n\"quoted\" <b>&</b>\ttab",
	}
}

func TestSerializeCanonicalForm(t *testing.T) {
	e := sampleEvent()
	want := `[0,"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",1700000000,1,[["e","abc"],["p","def","wss://nos.lol"]],"line one\n\"quoted\" <b>&</b>\ttab"]`
	if got := string(e.Serialize()); got != want {
		t.Fatalf("serialize mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestSerializeEmptyTags(t *testing.T) {
	e := Event{PubKey: "aa", CreatedAt: 1, Kind: 0}
	want := `[0,"aa",1,0,[],""]`
	if got := string(e.Serialize()); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestSerializeControlCharacters(t *testing.T) {
	e := Event{PubKey: "aa", Content: "\x01\b\f\r"}
	want := `[0,"aa",0,0,[],"\u0001\b\f\r"]`
	if got := string(e.Serialize()); got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestComputeIDIsSHA256OfSerialization(t *testing.T) {
	e := sampleEvent()
	id, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	if id != ID(sha256.Sum256(e.Serialize())) {
		t.Fatalf("id mismatch")
	}
}

func TestCheckID(t *testing.T) {
	e := sampleEvent()
	id, err := e.ComputeID()
	if err != nil {
		t.Fatalf("ComputeID: %v", err)
	}
	e.ID = id
	if err := e.CheckID(); err != nil {
		t.Fatalf("CheckID: %v", err)
	}

	e.Content = "tampered"
	if err := e.CheckID(); !errors.Is(err, ErrIDMismatch) {
		t.Fatalf("CheckID after tamper: got %v want ErrIDMismatch", err)
	}
}

func TestJSONUsesHexID(t *testing.T) {
	e := sampleEvent()
	e.ID, _ = e.ComputeID()

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("Unmarshal raw: %v", err)
	}
	if raw["id"] != e.ID.String() {
		t.Fatalf("id field = %v want %s", raw["id"], e.ID)
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != e.ID || back.Content != e.Content || len(back.Tags) != 2 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestParseID(t *testing.T) {
	if _, err := ParseID("abc"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("short id: got %v", err)
	}
	if _, err := ParseID(strings.Repeat("z", 64)); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("non-hex id: got %v", err)
	}
	s := "5c83da77af1dec6d7289834998ad7aafbd9e2191396d75ec3cc27f5a77226f36"
	id, err := ParseID(s)
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if id.String() != s || id.Short() != "5c83da77" {
		t.Fatalf("unexpected rendering %s / %s", id, id.Short())
	}
}

func TestIDCIDRoundTrip(t *testing.T) {
	id := ID(sha256.Sum256([]byte("x")))
	c, err := id.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	back, err := IDFromCID(c)
	if err != nil {
		t.Fatalf("IDFromCID: %v", err)
	}
	if back != id {
		t.Fatalf("round trip mismatch")
	}
}
