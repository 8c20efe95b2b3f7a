// Package contacts maps public keys to display names.
//
// The mapping is flat: hex pubkey to name, persisted as one JSON object under
// the "contacts" key of the settings KV. Names come from manual edits or from
// importing a kind-3 contact list (petnames) or a JSON object.
package contacts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"xdao.co/nref/config"
	"xdao.co/nref/event"
	"xdao.co/nref/nip19"
)

// Key is the KV key the mapping is stored under.
const Key = "contacts"

var ErrInvalidPubkey = errors.New("contacts: invalid pubkey")

type Contact struct {
	Pubkey string `json:"pubkey"`
	Name   string `json:"name"`
}

type Book struct {
	mu    sync.RWMutex
	names map[string]string
}

func New() *Book {
	return &Book{names: map[string]string{}}
}

// Load reads the stored mapping. A KV without contacts yields an empty book.
func Load(ctx context.Context, kv config.KV) (*Book, error) {
	m := map[string]string{}
	if _, err := kv.Load(ctx, Key, &m); err != nil {
		return nil, err
	}
	b := New()
	for k, v := range m {
		pk, err := Normalize(k)
		if err != nil {
			continue
		}
		b.names[pk] = v
	}
	return b, nil
}

func (b *Book) Save(ctx context.Context, kv config.KV) error {
	b.mu.RLock()
	m := make(map[string]string, len(b.names))
	for k, v := range b.names {
		m[k] = v
	}
	b.mu.RUnlock()
	return kv.Save(ctx, Key, m)
}

// Normalize accepts a 64-char hex pubkey or an npub and returns lowercase hex.
func Normalize(pubkey string) (string, error) {
	pubkey = strings.TrimSpace(pubkey)
	if strings.HasPrefix(strings.TrimPrefix(strings.ToLower(pubkey), nip19.URIPrefix), "npub1") {
		pk, err := nip19.DecodePubkey(pubkey)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
		}
		return pk, nil
	}
	if len(pubkey) != 64 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPubkey, pubkey)
	}
	if _, err := hex.DecodeString(pubkey); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPubkey, pubkey)
	}
	return strings.ToLower(pubkey), nil
}

func (b *Book) Set(pubkey, name string) error {
	pk, err := Normalize(pubkey)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("contacts: name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names[pk] = name
	return nil
}

// Remove reports whether pubkey had a name.
func (b *Book) Remove(pubkey string) (bool, error) {
	pk, err := Normalize(pubkey)
	if err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.names[pk]
	delete(b.names, pk)
	return ok, nil
}

func (b *Book) Name(pubkey string) (string, bool) {
	pk, err := Normalize(pubkey)
	if err != nil {
		return "", false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.names[pk]
	return n, ok
}

// Label is the contact's name, or an abbreviated npub for strangers.
func (b *Book) Label(pubkey string) string {
	if n, ok := b.Name(pubkey); ok {
		return n
	}
	npub, err := nip19.EncodePubkey(pubkey)
	if err != nil {
		return pubkey
	}
	return npub[:12] + "…" + npub[len(npub)-4:]
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.names)
}

// All returns every contact sorted by name, then pubkey.
func (b *Book) All() []Contact {
	b.mu.RLock()
	out := make([]Contact, 0, len(b.names))
	for k, v := range b.names {
		out = append(out, Contact{Pubkey: k, Name: v})
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Pubkey < out[j].Pubkey
	})
	return out
}

// ImportEvent merges the petnames of a kind-3 contact list. Entries are
// ["p", <pubkey>, <relay>, <petname>]; entries without a petname or with a
// malformed pubkey are skipped. It returns the number of names set.
func (b *Book) ImportEvent(e event.Event) (int, error) {
	if e.Kind != event.KindContactList {
		return 0, fmt.Errorf("contacts: event kind %d is not a contact list", e.Kind)
	}
	n := 0
	for _, tag := range e.Tags {
		if len(tag) < 4 || tag[0] != "p" {
			continue
		}
		if err := b.Set(tag[1], tag[3]); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

// ImportJSON merges a JSON object of pubkey (hex or npub) to name.
func (b *Book) ImportJSON(r io.Reader) (int, error) {
	m := map[string]string{}
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return 0, fmt.Errorf("contacts: decode: %w", err)
	}
	n := 0
	for k, v := range m {
		if err := b.Set(k, v); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
