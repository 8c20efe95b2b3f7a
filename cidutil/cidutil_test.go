package cidutil

import (
	"crypto/sha256"
	"testing"

	"github.com/ipfs/go-cid"
)

func TestSHA256MatchesStdlib(t *testing.T) {
	data := []byte("hello, nref")
	got, err := SHA256(data)
	if err != nil {
		t.Fatalf("SHA256: %v", err)
	}
	if got != sha256.Sum256(data) {
		t.Fatalf("digest mismatch")
	}
}

func TestDigestRoundTrip(t *testing.T) {
	digest := sha256.Sum256([]byte("record"))
	id, err := FromDigest(digest)
	if err != nil {
		t.Fatalf("FromDigest: %v", err)
	}
	if id.Version() != 1 || id.Type() != cid.Raw {
		t.Fatalf("unexpected cid prefix: %v", id.Prefix())
	}

	parsed, err := cid.Decode(id.String())
	if err != nil {
		t.Fatalf("cid.Decode: %v", err)
	}
	back, err := Digest(parsed)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if back != digest {
		t.Fatalf("digest round trip mismatch")
	}
}

func TestDigestRejectsUndef(t *testing.T) {
	if _, err := Digest(cid.Undef); err != ErrNotSHA256 {
		t.Fatalf("got %v want ErrNotSHA256", err)
	}
}
