package model

import (
	"encoding/json"

	"xdao.co/nref/config"
)

type ResolveRequest struct {
	Ref string `json:"ref"`
}

type ResolveResponse struct {
	ID     string `json:"id"`
	CID    string `json:"cid"`
	Source string `json:"source"`
	Tier   string `json:"tier"`
	Saved  bool   `json:"saved"`
	// Event is the event in its NIP-01 JSON form.
	Event json.RawMessage `json:"event"`
}

type PersistRequest struct {
	Ref       string `json:"ref"`
	Overwrite bool   `json:"overwrite"`
}

type PersistResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Notice string `json:"notice"`
}

type ForgetResponse struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// SavedEntry summarizes one persisted entry for list views.
type SavedEntry struct {
	ID          string `json:"id"`
	SavedAt     string `json:"savedAt"`
	Relay       string `json:"relay"`
	OriginalRef string `json:"originalRef"`
	Kind        int    `json:"kind"`
	Author      string `json:"author"`
	CreatedAt   int64  `json:"createdAt"`
	Preview     string `json:"preview"`
}

type Relay struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

func RelaysFrom(in []config.Relay) []Relay {
	out := make([]Relay, 0, len(in))
	for _, r := range in {
		out = append(out, Relay{URL: r.URL, Enabled: r.Enabled})
	}
	return out
}

type Contact struct {
	Pubkey string `json:"pubkey"`
	Npub   string `json:"npub"`
	Name   string `json:"name"`
}

type ScanMatch struct {
	Ref   string `json:"ref"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}
