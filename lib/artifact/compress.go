// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression applied to a stored blob.
// The tag is stored in the blob header (1 byte); these values are
// format constants; changing them breaks existing stores.
type CompressionTag uint8

const (
	// CompressionNone marks uncompressed data. Used when compression
	// does not pay: PDFs with already-deflated streams, images.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 marks LZ4 block compression. The default for
	// binary content: cheap to decode, modest ratios.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd marks zstd compression. Chosen for text-like
	// content types where the better ratio is worth the CPU.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

var zstdEncoder *zstd.Encoder
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("artifact: zstd encoder init: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("artifact: zstd decoder init: " + err.Error())
	}
}

// chooseCompression picks a tag for content about to be stored.
// Text-like content compresses well under zstd; everything else gets
// LZ4, downgraded to none when the data does not shrink (compress
// verifies this).
func chooseCompression(contentType string) CompressionTag {
	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(mediaType)

	if strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json" ||
		mediaType == "application/xml" {
		return CompressionZstd
	}
	return CompressionLZ4
}

// compress encodes data under the given tag. The payload begins with
// the original length as an 8-byte little-endian prefix so fixed-size
// buffers can be handed to the block decoders. Falls back to
// CompressionNone when the compressed form is not smaller; returns
// the tag actually used.
func compress(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	switch tag {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionLZ4:
		dst := make([]byte, 8+lz4.CompressBlockBound(len(data)))
		binary.LittleEndian.PutUint64(dst, uint64(len(data)))
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(data, dst[8:])
		if err != nil {
			return nil, 0, fmt.Errorf("artifact: lz4 compress: %w", err)
		}
		if n == 0 || 8+n >= len(data) {
			// Incompressible.
			return data, CompressionNone, nil
		}
		return dst[:8+n], CompressionLZ4, nil

	case CompressionZstd:
		dst := make([]byte, 8, 8+len(data))
		binary.LittleEndian.PutUint64(dst, uint64(len(data)))
		dst = zstdEncoder.EncodeAll(data, dst)
		if len(dst) >= len(data) {
			return data, CompressionNone, nil
		}
		return dst, CompressionZstd, nil

	default:
		return nil, 0, fmt.Errorf("artifact: unknown compression tag %d", tag)
	}
}

// decompress reverses compress for the given tag.
func decompress(payload []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return payload, nil

	case CompressionLZ4:
		if len(payload) < 8 {
			return nil, fmt.Errorf("artifact: lz4 payload truncated")
		}
		size := binary.LittleEndian.Uint64(payload)
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(payload[8:], dst)
		if err != nil {
			return nil, fmt.Errorf("artifact: lz4 decompress: %w", err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("artifact: lz4 decompress: got %d bytes, header says %d", n, size)
		}
		return dst, nil

	case CompressionZstd:
		if len(payload) < 8 {
			return nil, fmt.Errorf("artifact: zstd payload truncated")
		}
		size := binary.LittleEndian.Uint64(payload)
		dst, err := zstdDecoder.DecodeAll(payload[8:], make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("artifact: zstd decompress: %w", err)
		}
		if uint64(len(dst)) != size {
			return nil, fmt.Errorf("artifact: zstd decompress: got %d bytes, header says %d", len(dst), size)
		}
		return dst, nil

	default:
		return nil, fmt.Errorf("artifact: unknown compression tag %d", tag)
	}
}
