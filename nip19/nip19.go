// Package nip19 decodes and encodes the bech32 references users paste into
// documents: note1… (bare event id) and nevent1… (event id plus relay hints,
// author and kind). npub1… is supported for the contact list.
package nip19

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"xdao.co/nref/event"
)

// URIPrefix is the optional NIP-21 scheme prefix.
const URIPrefix = "nostr:"

const (
	hrpNote   = "note"
	hrpEvent  = "nevent"
	hrpPubkey = "npub"
)

const (
	tlvSpecial = 0
	tlvRelay   = 1
	tlvAuthor  = 2
	tlvKind    = 3
)

var ErrInvalid = errors.New("nip19: invalid reference")

// Pointer is the decoded form of a reference.
type Pointer struct {
	ID event.ID
	// Relays are hints embedded in the reference, in their encoded order.
	Relays []string
	// Author is the hex pubkey, when the reference carries one.
	Author string
	// Kind is set when the reference carries one.
	Kind *int
}

// Decode decodes a note1 or nevent1 reference, with or without the nostr:
// prefix.
func Decode(ref string) (Pointer, error) {
	hrp, data, err := decodeBech32(ref)
	if err != nil {
		return Pointer{}, err
	}
	switch hrp {
	case hrpNote:
		if len(data) != event.IDSize {
			return Pointer{}, fmt.Errorf("%w: note payload is %d bytes", ErrInvalid, len(data))
		}
		var p Pointer
		copy(p.ID[:], data)
		return p, nil
	case hrpEvent:
		return decodeEventTLV(data)
	default:
		return Pointer{}, fmt.Errorf("%w: unsupported prefix %q", ErrInvalid, hrp)
	}
}

// DecodePubkey decodes an npub1 reference into a hex pubkey.
func DecodePubkey(ref string) (string, error) {
	hrp, data, err := decodeBech32(ref)
	if err != nil {
		return "", err
	}
	if hrp != hrpPubkey {
		return "", fmt.Errorf("%w: expected npub, got %q", ErrInvalid, hrp)
	}
	if len(data) != 32 {
		return "", fmt.Errorf("%w: npub payload is %d bytes", ErrInvalid, len(data))
	}
	return hex.EncodeToString(data), nil
}

// EncodeNote encodes a bare event id.
func EncodeNote(id event.ID) (string, error) {
	return encodeBech32(hrpNote, id[:])
}

// EncodeEvent encodes a pointer as nevent1.
func EncodeEvent(p Pointer) (string, error) {
	buf := make([]byte, 0, 2+event.IDSize+len(p.Relays)*32)
	buf = appendTLV(buf, tlvSpecial, p.ID[:])
	for _, r := range p.Relays {
		if len(r) > 255 {
			return "", fmt.Errorf("%w: relay hint longer than 255 bytes", ErrInvalid)
		}
		buf = appendTLV(buf, tlvRelay, []byte(r))
	}
	if p.Author != "" {
		author, err := hex.DecodeString(p.Author)
		if err != nil || len(author) != 32 {
			return "", fmt.Errorf("%w: author must be 32-byte hex", ErrInvalid)
		}
		buf = appendTLV(buf, tlvAuthor, author)
	}
	if p.Kind != nil {
		var k [4]byte
		binary.BigEndian.PutUint32(k[:], uint32(*p.Kind))
		buf = appendTLV(buf, tlvKind, k[:])
	}
	return encodeBech32(hrpEvent, buf)
}

// EncodePubkey encodes a hex pubkey as npub1.
func EncodePubkey(pubkey string) (string, error) {
	b, err := hex.DecodeString(pubkey)
	if err != nil || len(b) != 32 {
		return "", fmt.Errorf("%w: pubkey must be 32-byte hex", ErrInvalid)
	}
	return encodeBech32(hrpPubkey, b)
}

func decodeBech32(ref string) (string, []byte, error) {
	s := strings.TrimSpace(ref)
	if len(s) >= len(URIPrefix) && strings.EqualFold(s[:len(URIPrefix)], URIPrefix) {
		s = s[len(URIPrefix):]
	}
	if s == "" {
		return "", nil, fmt.Errorf("%w: empty", ErrInvalid)
	}
	// nevent strings routinely exceed the 90-character BIP-173 limit.
	hrp, five, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	data, err := bech32.ConvertBits(five, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return strings.ToLower(hrp), data, nil
}

func encodeBech32(hrp string, data []byte) (string, error) {
	five, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(hrp, five)
}

func decodeEventTLV(data []byte) (Pointer, error) {
	var p Pointer
	var haveID bool
	for len(data) > 0 {
		if len(data) < 2 {
			return Pointer{}, fmt.Errorf("%w: truncated tlv header", ErrInvalid)
		}
		typ, n := data[0], int(data[1])
		if len(data) < 2+n {
			return Pointer{}, fmt.Errorf("%w: truncated tlv value (type %d)", ErrInvalid, typ)
		}
		v := data[2 : 2+n]
		data = data[2+n:]

		switch typ {
		case tlvSpecial:
			if n != event.IDSize {
				return Pointer{}, fmt.Errorf("%w: event id is %d bytes", ErrInvalid, n)
			}
			copy(p.ID[:], v)
			haveID = true
		case tlvRelay:
			p.Relays = append(p.Relays, string(v))
		case tlvAuthor:
			if n != 32 {
				return Pointer{}, fmt.Errorf("%w: author is %d bytes", ErrInvalid, n)
			}
			p.Author = hex.EncodeToString(v)
		case tlvKind:
			if n != 4 {
				return Pointer{}, fmt.Errorf("%w: kind is %d bytes", ErrInvalid, n)
			}
			k := int(binary.BigEndian.Uint32(v))
			p.Kind = &k
		default:
			// Unknown TLV types are skipped per NIP-19.
		}
	}
	if !haveID {
		return Pointer{}, fmt.Errorf("%w: nevent without event id", ErrInvalid)
	}
	return p, nil
}

func appendTLV(buf []byte, typ byte, v []byte) []byte {
	buf = append(buf, typ, byte(len(v)))
	return append(buf, v...)
}
