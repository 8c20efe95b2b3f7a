// Package config holds user settings: where events are saved, which relays
// are queried and in what order, and rendering preferences.
//
// Settings are stored as one JSON document under the key "settings" in a
// KV store (see settingsdb). Stored values are decoded over Defaults, so a
// field missing from the stored document keeps its default.
//
// Example:
//
//	{
//	  "saveFolder": "nostr/events",
//	  "relays": [
//	    {"url": "wss://nos.lol", "enabled": true},
//	    {"url": "grpc://127.0.0.1:7700", "enabled": false}
//	  ],
//	  "overwriteExisting": false,
//	  "renderNostrLinks": true,
//	  "webClientUrlTemplate": "https://njump.me/{ref}",
//	  "myPubkey": ""
//	}
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Key is the KV key settings are stored under.
const Key = "settings"

const (
	DefaultSaveFolder  = "nostr/events"
	DefaultWebTemplate = "https://njump.me/{ref}"
)

// DefaultRelays seeds a fresh configuration. All are enabled.
var DefaultRelays = []string{
	"wss://nfrelay.app",
	"wss://nos.lol",
	"wss://x.kojira.io",
}

type Relay struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type Settings struct {
	SaveFolder           string  `json:"saveFolder"`
	Relays               []Relay `json:"relays"`
	OverwriteExisting    bool    `json:"overwriteExisting"`
	RenderNostrLinks     bool    `json:"renderNostrLinks"`
	WebClientURLTemplate string  `json:"webClientUrlTemplate"`
	MyPubkey             string  `json:"myPubkey"`
}

// KV is the generic settings mechanism. *settingsdb.DB satisfies it.
type KV interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

func Defaults() Settings {
	s := Settings{
		SaveFolder:           DefaultSaveFolder,
		RenderNostrLinks:     true,
		WebClientURLTemplate: DefaultWebTemplate,
	}
	for _, u := range DefaultRelays {
		s.Relays = append(s.Relays, Relay{URL: u, Enabled: true})
	}
	return s
}

// Load returns the stored settings, or Defaults when none were saved.
func Load(ctx context.Context, kv KV) (Settings, error) {
	s := Defaults()
	if _, err := kv.Load(ctx, Key, &s); err != nil {
		return Defaults(), err
	}
	return s, s.Validate()
}

// Save validates and stores s.
func Save(ctx context.Context, kv KV, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return kv.Save(ctx, Key, s)
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.SaveFolder) == "" {
		return errors.New("config: saveFolder is required")
	}
	seen := make(map[string]struct{}, len(s.Relays))
	for _, r := range s.Relays {
		if err := validateRelayURL(r.URL); err != nil {
			return err
		}
		if _, ok := seen[r.URL]; ok {
			return fmt.Errorf("config: duplicate relay %q", r.URL)
		}
		seen[r.URL] = struct{}{}
	}
	return nil
}

// EnabledRelays returns the URLs of enabled relays in configured order.
func (s Settings) EnabledRelays() []string {
	out := make([]string, 0, len(s.Relays))
	for _, r := range s.Relays {
		if r.Enabled {
			out = append(out, r.URL)
		}
	}
	return out
}

func (s Settings) indexOf(u string) int {
	for i, r := range s.Relays {
		if r.URL == u {
			return i
		}
	}
	return -1
}

// AddRelay appends an enabled relay.
func (s *Settings) AddRelay(u string) error {
	u = strings.TrimSpace(u)
	if err := validateRelayURL(u); err != nil {
		return err
	}
	if s.indexOf(u) >= 0 {
		return fmt.Errorf("config: relay %q already configured", u)
	}
	s.Relays = append(s.Relays, Relay{URL: u, Enabled: true})
	return nil
}

func (s *Settings) RemoveRelay(u string) error {
	i := s.indexOf(u)
	if i < 0 {
		return fmt.Errorf("config: relay %q not configured", u)
	}
	s.Relays = append(s.Relays[:i], s.Relays[i+1:]...)
	return nil
}

func (s *Settings) SetRelayEnabled(u string, enabled bool) error {
	i := s.indexOf(u)
	if i < 0 {
		return fmt.Errorf("config: relay %q not configured", u)
	}
	s.Relays[i].Enabled = enabled
	return nil
}

// MoveRelay shifts a relay by delta positions (negative moves it earlier),
// clamped to the ends of the list.
func (s *Settings) MoveRelay(u string, delta int) error {
	i := s.indexOf(u)
	if i < 0 {
		return fmt.Errorf("config: relay %q not configured", u)
	}
	j := i + delta
	if j < 0 {
		j = 0
	}
	if j > len(s.Relays)-1 {
		j = len(s.Relays) - 1
	}
	r := s.Relays[i]
	if j < i {
		copy(s.Relays[j+1:i+1], s.Relays[j:i])
	} else {
		copy(s.Relays[i:j], s.Relays[i+1:j+1])
	}
	s.Relays[j] = r
	return nil
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: invalid relay url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: relay url %q needs a scheme and host", raw)
	}
	return nil
}
