package event

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"xdao.co/nref/cidutil"
)

var ErrIDMismatch = errors.New("event: id does not match content")

// Kinds referenced by this module.
const (
	KindTextNote    = 1
	KindContactList = 3
)

// Tag is a single event tag, e.g. ["p", <pubkey>, <relay>, <petname>].
type Tag []string

// Event is a NIP-01 event. Events are immutable once resolved; callers must
// not modify the slices of an event they did not construct.
type Event struct {
	ID        ID     `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Serialize returns the canonical byte form the ID is computed from:
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
func (e *Event) Serialize() []byte {
	var b bytes.Buffer
	b.Grow(64 + len(e.Content))
	b.WriteString(`[0,`)
	writeString(&b, e.PubKey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(e.Kind))
	b.WriteString(`,[`)
	for i, tag := range e.Tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(&b, v)
		}
		b.WriteByte(']')
	}
	b.WriteString(`],`)
	writeString(&b, e.Content)
	b.WriteByte(']')
	return b.Bytes()
}

// ComputeID hashes the canonical serialization.
func (e *Event) ComputeID() (ID, error) {
	d, err := cidutil.SHA256(e.Serialize())
	if err != nil {
		return ID{}, err
	}
	return ID(d), nil
}

// CheckID reports ErrIDMismatch when the stated ID is not the content address
// of the event.
func (e *Event) CheckID() error {
	got, err := e.ComputeID()
	if err != nil {
		return err
	}
	if got != e.ID {
		return fmt.Errorf("%w: stated %s computed %s", ErrIDMismatch, e.ID.Short(), got.Short())
	}
	return nil
}

// TagValues returns the first value of every tag named name.
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}

// writeString emits a JSON string escaped the NIP-01 way: only the
// characters JSON requires are escaped, everything else is written verbatim.
func writeString(b *bytes.Buffer, s string) {
	const hexDigits = "0123456789abcdef"
	b.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				b.WriteString(`�`)
			} else {
				b.WriteString(s[i : i+size])
			}
			i += size
			continue
		}
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if c < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hexDigits[c>>4])
				b.WriteByte(hexDigits[c&0xf])
			} else {
				b.WriteByte(c)
			}
		}
		i++
	}
	b.WriteByte('"')
}
