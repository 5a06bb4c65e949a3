// Package secrets seals OAuth consumer secrets before they reach the store.
// Secrets must stay recoverable for HMAC signing, so they are encrypted
// with NaCl secretbox rather than hashed.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize    = 24
	sealedPrefix = "sb1:"
)

var ErrUnsealFailed = errors.New("secrets: unable to open sealed value")

type Sealer struct {
	key [32]byte
}

func NewSealer(secretKey string) *Sealer {
	s := &Sealer{}
	s.key = sha256.Sum256([]byte("orthobox/secrets:" + secretKey))
	return s
}

func (s *Sealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values without the sealed prefix were written before
// sealing was enabled and are returned unchanged.
func (s *Sealer) Open(sealed string) (string, error) {
	if len(sealed) < len(sealedPrefix) || sealed[:len(sealedPrefix)] != sealedPrefix {
		return sealed, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed[len(sealedPrefix):])
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealFailed
	}
	return string(plain), nil
}
