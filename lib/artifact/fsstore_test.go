// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, masterKey []byte) *FSStore {
	t.Helper()
	store, err := NewFSStore(FSStoreConfig{
		Root:      t.TempDir(),
		MasterKey: masterKey,
		Logger:    testLogger(t),
	})
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	return store
}

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating master key: %v", err)
	}
	return key
}

// --- Round trips ---

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	// Content picked to exercise every compression path: repetitive
	// text (zstd shrinks it), repetitive binary (lz4 shrinks it), and
	// random bytes (incompressible, downgraded to none).
	incompressible := make([]byte, 4096)
	if _, err := rand.Read(incompressible); err != nil {
		t.Fatalf("generating random content: %v", err)
	}

	tests := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{"text zstd", "text/plain; charset=utf-8", bytes.Repeat([]byte("the quick brown fox "), 200)},
		{"json zstd", "application/json", bytes.Repeat([]byte(`{"k":"v"},`), 300)},
		{"binary lz4", "application/pdf", bytes.Repeat([]byte{0x25, 0x50, 0x44, 0x46, 0x00}, 500)},
		{"incompressible", "application/pdf", incompressible},
		{"empty", "application/pdf", nil},
	}

	for _, masterKey := range [][]byte{nil, testMasterKey(t)} {
		store := newTestStore(t, masterKey)
		for _, tt := range tests {
			name := tt.name
			if masterKey != nil {
				name += " encrypted"
			}
			t.Run(name, func(t *testing.T) {
				loc := Locator{Container: "docs", ObjectPath: tt.name + "/blob.bin"}
				if err := store.Put(ctx, loc, tt.data, tt.contentType); err != nil {
					t.Fatalf("Put: %v", err)
				}

				got, err := store.Get(ctx, loc)
				if err != nil {
					t.Fatalf("Get: %v", err)
				}
				if !bytes.Equal(got, tt.data) {
					t.Fatalf("Get returned %d bytes, want %d", len(got), len(tt.data))
				}

				info, err := store.Stat(ctx, loc)
				if err != nil {
					t.Fatalf("Stat: %v", err)
				}
				if info.Size != int64(len(tt.data)) {
					t.Fatalf("Stat size = %d, want %d", info.Size, len(tt.data))
				}
			})
		}
	}
}

func TestFSStoreEncryptedOnDisk(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, testMasterKey(t))

	plaintext := bytes.Repeat([]byte("confidential payroll figures "), 100)
	loc := Locator{Container: "docs", ObjectPath: "sealed/doc.pdf"}
	if err := store.Put(ctx, loc, plaintext, "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(store.root, "docs", "sealed", "doc.pdf"))
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	if raw[0] != blobVersionSealed {
		t.Fatalf("blob version = %d, want %d", raw[0], blobVersionSealed)
	}
	if bytes.Contains(raw, []byte("confidential")) {
		t.Fatal("plaintext visible in sealed blob")
	}
}

// --- Failure modes ---

func TestFSStoreImmutable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	loc := Locator{Container: "docs", ObjectPath: "a/b.pdf"}
	if err := store.Put(ctx, loc, []byte("first"), "application/pdf"); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	err := store.Put(ctx, loc, []byte("second"), "application/pdf")
	if err == nil {
		t.Fatal("second Put to the same locator succeeded")
	}
	if !strings.Contains(err.Error(), "immutable") {
		t.Fatalf("second Put error = %v, want immutability refusal", err)
	}

	// The original content is untouched.
	got, err := store.Get(ctx, loc)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("Get = %q, want %q", got, "first")
	}
}

func TestFSStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	loc := Locator{Container: "docs", ObjectPath: "missing/blob.pdf"}
	if _, err := store.Get(ctx, loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := store.Stat(ctx, loc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat error = %v, want ErrNotFound", err)
	}
}

func TestFSStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	loc := Locator{Container: "docs", ObjectPath: "../escape.pdf"}
	if err := store.Put(ctx, loc, []byte("x"), "application/pdf"); err == nil {
		t.Fatal("Put with parent reference succeeded")
	}
}

func TestFSStoreSealedNeedsKey(t *testing.T) {
	ctx := context.Background()
	key := testMasterKey(t)

	root := t.TempDir()
	sealed, err := NewFSStore(FSStoreConfig{Root: root, MasterKey: key, Logger: testLogger(t)})
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	loc := Locator{Container: "docs", ObjectPath: "k/doc.pdf"}
	if err := sealed.Put(ctx, loc, []byte("secret"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A keyless store over the same root can stat but not read.
	plain, err := NewFSStore(FSStoreConfig{Root: root, Logger: testLogger(t)})
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if _, err := plain.Stat(ctx, loc); err != nil {
		t.Fatalf("Stat without key: %v", err)
	}
	if _, err := plain.Get(ctx, loc); err == nil {
		t.Fatal("Get without key succeeded on a sealed blob")
	}

	// A store with a different key fails authentication.
	otherKey := testMasterKey(t)
	other, err := NewFSStore(FSStoreConfig{Root: root, MasterKey: otherKey, Logger: testLogger(t)})
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if _, err := other.Get(ctx, loc); err == nil {
		t.Fatal("Get with wrong key succeeded on a sealed blob")
	}
}

func TestFSStoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, nil)

	loc := Locator{Container: "docs", ObjectPath: "c/doc.pdf"}
	data := bytes.Repeat([]byte("stable content "), 100)
	if err := store.Put(ctx, loc, data, "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	path := filepath.Join(store.root, "docs", "c", "doc.pdf")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading blob file: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("writing corrupted blob: %v", err)
	}

	if _, err := store.Get(ctx, loc); err == nil {
		t.Fatal("Get succeeded on a corrupted blob")
	}
}

// --- Key checks ---

func TestNewFSStoreRejectsBadKey(t *testing.T) {
	_, err := NewFSStore(FSStoreConfig{
		Root:      t.TempDir(),
		MasterKey: []byte("short"),
		Logger:    testLogger(t),
	})
	if err == nil {
		t.Fatal("NewFSStore accepted a short master key")
	}
}

// --- Compression selection ---

func TestChooseCompression(t *testing.T) {
	tests := []struct {
		contentType string
		want        CompressionTag
	}{
		{"text/plain", CompressionZstd},
		{"text/csv; charset=utf-8", CompressionZstd},
		{"application/json", CompressionZstd},
		{"application/xml", CompressionZstd},
		{"application/pdf", CompressionLZ4},
		{"image/png", CompressionLZ4},
		{"application/octet-stream", CompressionLZ4},
		{"", CompressionLZ4},
	}
	for _, tt := range tests {
		if got := chooseCompression(tt.contentType); got != tt.want {
			t.Errorf("chooseCompression(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
