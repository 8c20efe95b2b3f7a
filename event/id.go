package event

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/nref/cidutil"
)

// IDSize is the length of an event ID in bytes.
const IDSize = cidutil.DigestSize

var ErrInvalidID = errors.New("event: invalid id")

// ID is the content address of an event.
type ID [IDSize]byte

// ParseID parses a 64-character hex event ID.
func ParseID(s string) (ID, error) {
	var id ID
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(IDSize) {
		return id, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidID, hex.EncodedLen(IDSize), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

func (id ID) String() string { return hex.EncodeToString(id[:]) }

// Short is the prefix used in user-visible notices.
func (id ID) Short() string { return id.String()[:8] }

func (id ID) IsZero() bool { return id == ID{} }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CID renders the ID as a CIDv1 (raw codec, sha2-256 multihash).
func (id ID) CID() (cid.Cid, error) {
	return cidutil.FromDigest(id)
}

// IDFromCID is the inverse of ID.CID.
func IDFromCID(c cid.Cid) (ID, error) {
	d, err := cidutil.Digest(c)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return ID(d), nil
}
