// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of the at-rest encryption master key.
const KeySize = 32

// hkdfInfoBlob is the HKDF info prefix for per-blob key derivation.
// The blob's locator string is appended, so every object is sealed
// under its own key and ciphertext cannot be swapped between paths.
// Changing this invalidates all existing ciphertext.
var hkdfInfoBlob = []byte("docmill.artifact.blob.v1:")

// deriveBlobKey derives the per-blob AEAD key from the master key and
// the blob's locator.
func deriveBlobKey(masterKey []byte, loc Locator) ([]byte, error) {
	info := append(append([]byte{}, hkdfInfoBlob...), loc.String()...)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("artifact: deriving blob key: %w", err)
	}
	return key, nil
}

// sealBlob encrypts plaintext with XChaCha20-Poly1305 under a key
// derived for loc. Layout: nonce || ciphertext. The caller prepends
// the format version byte and passes it as AAD so a tampered version
// byte fails authentication.
func sealBlob(masterKey []byte, loc Locator, plaintext, aad []byte) ([]byte, error) {
	key, err := deriveBlobKey(masterKey, loc)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("artifact: aead init: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("artifact: nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// openBlob reverses sealBlob.
func openBlob(masterKey []byte, loc Locator, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("artifact: sealed blob truncated")
	}
	key, err := deriveBlobKey(masterKey, loc)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("artifact: aead init: %w", err)
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], aad)
	if err != nil {
		return nil, fmt.Errorf("artifact: opening sealed blob: %w", err)
	}
	return plaintext, nil
}
