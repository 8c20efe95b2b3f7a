package model

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"xdao.co/nref/document"
	"xdao.co/nref/event"
	"xdao.co/nref/nip19"
	"xdao.co/nref/resolver"
	"xdao.co/nref/storage"
)

// previewRunes bounds SavedEntry.Preview.
const previewRunes = 80

// Resolve runs req through r. Failures are returned as *CodedError.
func Resolve(ctx context.Context, r *resolver.Resolver, req ResolveRequest) (*ResolveResponse, error) {
	if strings.TrimSpace(req.Ref) == "" {
		return nil, NewError(ErrInvalidRequest, "ref is required")
	}
	out, err := r.Resolve(ctx, req.Ref)
	if err != nil {
		return nil, FromError(err)
	}
	return FromOutcome(r, out)
}

// FromOutcome projects a resolution outcome.
func FromOutcome(r *resolver.Resolver, out resolver.Outcome) (*ResolveResponse, error) {
	raw, err := json.Marshal(out.Event)
	if err != nil {
		return nil, NewError(ErrInternal, err.Error())
	}
	c, err := out.Event.ID.CID()
	if err != nil {
		return nil, NewError(ErrInternal, err.Error())
	}
	saved := out.Tier == resolver.TierPersisted
	if !saved {
		saved, _ = r.Saved(out.Event.ID)
	}
	return &ResolveResponse{
		ID:     out.Event.ID.String(),
		CID:    c.String(),
		Source: out.Source,
		Tier:   out.Tier.String(),
		Saved:  saved,
		Event:  raw,
	}, nil
}

// Persist resolves req.Ref and saves the result.
func Persist(ctx context.Context, r *resolver.Resolver, req PersistRequest) (*PersistResponse, error) {
	if strings.TrimSpace(req.Ref) == "" {
		return nil, NewError(ErrInvalidRequest, "ref is required")
	}
	out, err := r.Resolve(ctx, req.Ref)
	if err != nil {
		return nil, FromError(err)
	}
	id := out.Event.ID
	status, err := r.Persist(out.Event, out.Source, id, req.Overwrite)
	if err != nil {
		return nil, FromError(err)
	}
	return &PersistResponse{ID: id.String(), Status: status.String(), Notice: document.Notice(status, id)}, nil
}

// Forget deletes the persisted entry named by ref.
func Forget(r *resolver.Resolver, ref string) (*ForgetResponse, error) {
	id, err := ParseRef(ref)
	if err != nil {
		return nil, FromError(err)
	}
	removed, err := r.Forget(id)
	if err != nil {
		return nil, FromError(err)
	}
	return &ForgetResponse{ID: id.String(), Removed: removed}, nil
}

// ParseRef accepts a note1/nevent1 reference or a 64-char hex id.
func ParseRef(ref string) (event.ID, error) {
	if id, err := event.ParseID(ref); err == nil {
		return id, nil
	}
	ptr, err := nip19.Decode(ref)
	if err != nil {
		return event.ID{}, &resolver.DecodeError{Ref: ref, Err: err}
	}
	return ptr.ID, nil
}

func SavedEntryFrom(e storage.Entry) SavedEntry {
	return SavedEntry{
		ID:          e.Event.ID.String(),
		SavedAt:     e.Metadata.SavedAt,
		Relay:       e.Metadata.Relay,
		OriginalRef: e.Metadata.OriginalRef,
		Kind:        e.Event.Kind,
		Author:      e.Event.PubKey,
		CreatedAt:   e.Event.CreatedAt,
		Preview:     preview(e.Event.Content),
	}
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes-1]) + "…"
}
