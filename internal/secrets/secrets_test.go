package secrets

import (
	"errors"
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	s := NewSealer("test-key")

	sealed, err := s.Seal("shared_secret")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if strings.Contains(sealed, "shared_secret") {
		t.Fatalf("sealed value leaks plaintext: %q", sealed)
	}

	plain, err := s.Open(sealed)
	if err != nil || plain != "shared_secret" {
		t.Fatalf("Open = (%q, %v), want shared_secret", plain, err)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	s := NewSealer("test-key")
	a, _ := s.Seal("x")
	b, _ := s.Seal("x")
	if a == b {
		t.Fatalf("two seals of the same value are identical")
	}
}

func TestOpenWrongKey(t *testing.T) {
	sealed, _ := NewSealer("one").Seal("secret")
	if _, err := NewSealer("two").Open(sealed); !errors.Is(err, ErrUnsealFailed) {
		t.Fatalf("Open with wrong key = %v, want ErrUnsealFailed", err)
	}
}

func TestOpenLegacyPlaintext(t *testing.T) {
	plain, err := NewSealer("k").Open("legacy-secret")
	if err != nil || plain != "legacy-secret" {
		t.Fatalf("Open legacy = (%q, %v)", plain, err)
	}
}
