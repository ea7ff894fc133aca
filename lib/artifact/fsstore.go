// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Blob format version bytes. The version leads every stored file and
// selects the layout of the rest.
const (
	// blobVersionPlain: version, 8-byte original size, compression
	// tag, 32-byte BLAKE3 checksum of the original content, payload.
	blobVersionPlain byte = 0x01

	// blobVersionSealed: version, 8-byte original size, then an
	// XChaCha20-Poly1305 sealed box over (tag, checksum, payload)
	// with the 9 header bytes as AAD.
	blobVersionSealed byte = 0x02
)

const blobHeaderSize = 1 + 8

// FSStoreConfig configures a filesystem-backed Store.
type FSStoreConfig struct {
	// Root is the directory blobs live under, as
	// {root}/{container}/{object_path}. Required.
	Root string

	// MasterKey, if non-nil, enables at-rest encryption of every
	// blob. Must be exactly KeySize bytes.
	MasterKey []byte

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// FSStore keeps blobs as individual files under a root directory.
// Content is compressed (tag chosen by content type, downgraded when
// the data does not shrink), checksummed with BLAKE3, and optionally
// sealed with a per-blob key derived from the master key.
type FSStore struct {
	root      string
	masterKey []byte
	logger    *slog.Logger
}

// NewFSStore creates the store and its root directory.
func NewFSStore(cfg FSStoreConfig) (*FSStore, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("artifact: FSStore Root is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("artifact: FSStore Logger is required")
	}
	if cfg.MasterKey != nil && len(cfg.MasterKey) != KeySize {
		return nil, fmt.Errorf("artifact: master key must be %d bytes, got %d", KeySize, len(cfg.MasterKey))
	}
	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, fmt.Errorf("artifact: creating store root: %w", err)
	}
	return &FSStore{root: cfg.Root, masterKey: cfg.MasterKey, logger: cfg.Logger}, nil
}

func (s *FSStore) blobPath(loc Locator) string {
	return filepath.Join(s.root, loc.Container, filepath.FromSlash(loc.ObjectPath))
}

// Put writes data under loc. Locators are write-once: a second Put to
// the same locator fails.
func (s *FSStore) Put(ctx context.Context, loc Locator, data []byte, contentType string) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	path := s.blobPath(loc)
	if _, err := os.Lstat(path); err == nil {
		return fmt.Errorf("artifact: %s already exists (artifacts are immutable)", loc)
	}

	checksum := blake3.Sum256(data)
	payload, tag, err := compress(data, chooseCompression(contentType))
	if err != nil {
		return err
	}

	header := make([]byte, blobHeaderSize)
	binary.LittleEndian.PutUint64(header[1:], uint64(len(data)))

	inner := make([]byte, 0, 1+len(checksum)+len(payload))
	inner = append(inner, byte(tag))
	inner = append(inner, checksum[:]...)
	inner = append(inner, payload...)

	var blob []byte
	if s.masterKey != nil {
		header[0] = blobVersionSealed
		sealed, err := sealBlob(s.masterKey, loc, inner, header)
		if err != nil {
			return err
		}
		blob = append(header, sealed...)
	} else {
		header[0] = blobVersionPlain
		blob = append(header, inner...)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("artifact: creating %s: %w", dir, err)
	}

	// Write to a temp file in the target directory and rename, so a
	// crash never leaves a partial blob at the final path.
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("artifact: temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: writing %s: %w", loc, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: closing %s: %w", loc, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("artifact: publishing %s: %w", loc, err)
	}

	s.logger.Info("artifact stored",
		"locator", loc.String(),
		"size", len(data),
		"stored_size", len(blob),
		"compression", tag.String(),
		"encrypted", s.masterKey != nil,
	)
	return nil
}

// Get returns the original content stored at loc. The BLAKE3 checksum
// recorded at Put time is verified before returning.
func (s *FSStore) Get(ctx context.Context, loc Locator) ([]byte, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.blobPath(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact: reading %s: %w", loc, err)
	}
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("artifact: %s: blob truncated", loc)
	}

	header := blob[:blobHeaderSize]
	size := binary.LittleEndian.Uint64(header[1:])

	var inner []byte
	switch header[0] {
	case blobVersionPlain:
		inner = blob[blobHeaderSize:]
	case blobVersionSealed:
		if s.masterKey == nil {
			return nil, fmt.Errorf("artifact: %s is encrypted but no master key is configured", loc)
		}
		inner, err = openBlob(s.masterKey, loc, blob[blobHeaderSize:], header)
		if err != nil {
			return nil, fmt.Errorf("artifact: %s: %w", loc, err)
		}
	default:
		return nil, fmt.Errorf("artifact: %s: unknown blob version %d", loc, header[0])
	}

	if len(inner) < 1+32 {
		return nil, fmt.Errorf("artifact: %s: blob truncated", loc)
	}
	tag := CompressionTag(inner[0])
	var checksum [32]byte
	copy(checksum[:], inner[1:33])

	data, err := decompress(inner[33:], tag)
	if err != nil {
		return nil, fmt.Errorf("artifact: %s: %w", loc, err)
	}
	if uint64(len(data)) != size {
		return nil, fmt.Errorf("artifact: %s: size mismatch (header %d, content %d)", loc, size, len(data))
	}
	if got := blake3.Sum256(data); !bytes.Equal(got[:], checksum[:]) {
		return nil, fmt.Errorf("artifact: %s: checksum mismatch", loc)
	}
	return data, nil
}

// Stat reports the original content size without decompressing the
// payload.
func (s *FSStore) Stat(ctx context.Context, loc Locator) (BlobInfo, error) {
	if err := loc.Validate(); err != nil {
		return BlobInfo{}, err
	}

	f, err := os.Open(s.blobPath(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return BlobInfo{}, ErrNotFound
		}
		return BlobInfo{}, fmt.Errorf("artifact: statting %s: %w", loc, err)
	}
	defer f.Close()

	header := make([]byte, blobHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return BlobInfo{}, fmt.Errorf("artifact: statting %s: %w", loc, err)
	}
	return BlobInfo{Size: int64(binary.LittleEndian.Uint64(header[1:]))}, nil
}
