package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xdao.co/nref/settingsdb"
)

func openKV(t *testing.T) *settingsdb.DB {
	t.Helper()
	db, err := settingsdb.Open(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("settingsdb.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func urls(s Settings) string {
	var out []string
	for _, r := range s.Relays {
		out = append(out, r.URL)
	}
	return strings.Join(out, ",")
}

func TestDefaults(t *testing.T) {
	s := Defaults()
	if s.SaveFolder != "nostr/events" || s.OverwriteExisting || !s.RenderNostrLinks {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.WebClientURLTemplate != "https://njump.me/{ref}" || s.MyPubkey != "" {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if got := strings.Join(s.EnabledRelays(), ","); got != "wss://nfrelay.app,wss://nos.lol,wss://x.kojira.io" {
		t.Fatalf("enabled relays = %s", got)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadWithoutStoredSettings(t *testing.T) {
	s, err := Load(context.Background(), openKV(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if urls(s) != urls(Defaults()) {
		t.Fatalf("expected defaults, got %s", urls(s))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()
	s := Defaults()
	s.SaveFolder = "archive"
	s.OverwriteExisting = true
	if err := s.SetRelayEnabled("wss://nos.lol", false); err != nil {
		t.Fatal(err)
	}
	if err := Save(ctx, kv, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(ctx, kv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SaveFolder != "archive" || !got.OverwriteExisting {
		t.Fatalf("got %+v", got)
	}
	if strings.Join(got.EnabledRelays(), ",") != "wss://nfrelay.app,wss://x.kojira.io" {
		t.Fatalf("enabled = %v", got.EnabledRelays())
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	kv := openKV(t)
	ctx := context.Background()
	if err := kv.Save(ctx, Key, map[string]any{"saveFolder": "elsewhere"}); err != nil {
		t.Fatal(err)
	}
	s, err := Load(ctx, kv)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SaveFolder != "elsewhere" || !s.RenderNostrLinks || urls(s) != urls(Defaults()) {
		t.Fatalf("got %+v", s)
	}
}

func TestRelayListEditing(t *testing.T) {
	s := Defaults()
	if err := s.AddRelay("wss://relay.example"); err != nil {
		t.Fatalf("AddRelay: %v", err)
	}
	if err := s.AddRelay("wss://nos.lol"); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := s.AddRelay("not a url"); err == nil {
		t.Fatalf("expected invalid url error")
	}

	if err := s.MoveRelay("wss://relay.example", -2); err != nil {
		t.Fatal(err)
	}
	if want := "wss://nfrelay.app,wss://relay.example,wss://nos.lol,wss://x.kojira.io"; urls(s) != want {
		t.Fatalf("after move up: %s", urls(s))
	}
	if err := s.MoveRelay("wss://nfrelay.app", 10); err != nil {
		t.Fatal(err)
	}
	if want := "wss://relay.example,wss://nos.lol,wss://x.kojira.io,wss://nfrelay.app"; urls(s) != want {
		t.Fatalf("after move down: %s", urls(s))
	}
	if err := s.MoveRelay("wss://relay.example", -1); err != nil {
		t.Fatal(err)
	}
	if urls(s)[:len("wss://relay.example")] != "wss://relay.example" {
		t.Fatalf("move past the top should clamp: %s", urls(s))
	}

	if err := s.RemoveRelay("wss://nos.lol"); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveRelay("wss://nos.lol"); err == nil {
		t.Fatalf("expected error removing absent relay")
	}
	if err := s.SetRelayEnabled("wss://absent", true); err == nil {
		t.Fatalf("expected error for absent relay")
	}
	if want := "wss://relay.example,wss://x.kojira.io,wss://nfrelay.app"; urls(s) != want {
		t.Fatalf("after remove: %s", urls(s))
	}
}

func TestValidate(t *testing.T) {
	s := Defaults()
	s.SaveFolder = " "
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for empty saveFolder")
	}
	s = Defaults()
	s.Relays = append(s.Relays, Relay{URL: "wss://nos.lol"})
	if err := s.Validate(); err == nil {
		t.Fatalf("expected duplicate relay error")
	}
	if err := Save(context.Background(), openKV(t), s); err == nil {
		t.Fatalf("Save should refuse invalid settings")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NREF_SAVE_FOLDER", "from-env")
	t.Setenv("NREF_RELAYS", "wss://a.example,wss://b.example")
	t.Setenv("NREF_OVERWRITE", "true")
	t.Setenv("NREF_FETCH_TIMEOUT", "750ms")

	e, err := ParseEnv()
	if err != nil {
		t.Fatalf("ParseEnv: %v", err)
	}
	if e.FetchTimeout != 750*time.Millisecond {
		t.Fatalf("timeout = %v", e.FetchTimeout)
	}
	s := e.Apply(Defaults())
	if s.SaveFolder != "from-env" || !s.OverwriteExisting {
		t.Fatalf("got %+v", s)
	}
	if strings.Join(s.EnabledRelays(), ",") != "wss://a.example,wss://b.example" {
		t.Fatalf("relays = %v", s.EnabledRelays())
	}
}

func TestEnvUnsetLeavesSettings(t *testing.T) {
	e := Env{}
	s := e.Apply(Defaults())
	if urls(s) != urls(Defaults()) || s.OverwriteExisting {
		t.Fatalf("empty env changed settings: %+v", s)
	}
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("NREF_OVERWRITE", "maybe")
	_, err := ParseEnv()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}
