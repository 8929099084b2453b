package crypto

import (
	"strings"
	"testing"
)

func TestDigestHelpers(t *testing.T) {
	data := []byte("test payload")
	if len(DigestBytes(data)) != 32 {
		t.Fatalf("expected 32 byte digest")
	}
	hexDigest := DigestHex(data)
	if len(hexDigest) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(hexDigest))
	}
	if DigestWithPrefix(data) != "sha256:"+hexDigest {
		t.Fatalf("unexpected prefixed digest: %s", DigestWithPrefix(data))
	}
}

func TestChainHashMatchesConcatenation(t *testing.T) {
	prev := DigestHex([]byte("previous"))
	record := []byte(`{"a":1}`)
	want := DigestHex([]byte(prev + string(record)))
	if got := ChainHash(prev, record); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if ChainHash("", record) == ChainHash(prev, record) {
		t.Fatalf("expected previous hash to change the result")
	}
}

func TestNewTokenAndCompare(t *testing.T) {
	a, err := NewToken(DefaultTokenBytes)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	b, err := NewToken(DefaultTokenBytes)
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if len(a) != DefaultTokenBytes*2 || strings.Trim(a, "0123456789abcdef") != "" {
		t.Fatalf("unexpected token shape: %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct tokens")
	}
	if !TokensEqual(a, a) {
		t.Fatalf("expected token to match itself")
	}
	if TokensEqual(a, b) || TokensEqual(a, "") || TokensEqual("", "") {
		t.Fatalf("expected mismatches")
	}
	if _, err := NewToken(8); err != ErrTokenSize {
		t.Fatalf("expected ErrTokenSize, got %v", err)
	}
}
