package cidutil

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// DigestSize is the length of a sha2-256 digest in bytes.
const DigestSize = 32

var ErrNotSHA256 = errors.New("cidutil: cid is not a raw sha2-256 cid")

// SHA256 returns the sha2-256 digest of data, computed through multihash so
// the digest and its CID rendering always agree.
func SHA256(data []byte) ([DigestSize]byte, error) {
	var out [DigestSize]byte
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return out, err
	}
	dec, err := multihash.Decode(sum)
	if err != nil {
		return out, err
	}
	if len(dec.Digest) != DigestSize {
		return out, fmt.Errorf("cidutil: unexpected digest length %d", len(dec.Digest))
	}
	copy(out[:], dec.Digest)
	return out, nil
}

// FromDigest wraps an existing sha2-256 digest into a CIDv1 with the "raw"
// multicodec. No hashing happens here: the digest is the content address.
func FromDigest(digest [DigestSize]byte) (cid.Cid, error) {
	mh, err := multihash.Encode(digest[:], multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Digest extracts the sha2-256 digest carried by a raw CIDv1.
func Digest(id cid.Cid) ([DigestSize]byte, error) {
	var out [DigestSize]byte
	if !id.Defined() {
		return out, ErrNotSHA256
	}
	pref := id.Prefix()
	if pref.Codec != cid.Raw || pref.MhType != multihash.SHA2_256 {
		return out, ErrNotSHA256
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return out, err
	}
	if len(dec.Digest) != DigestSize {
		return out, ErrNotSHA256
	}
	copy(out[:], dec.Digest)
	return out, nil
}
