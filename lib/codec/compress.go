// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to an encoded payload.
// Tags are stored in blob headers (1 byte). These values are format
// constants: changing them breaks compatibility with published blobs.
type Compression uint8

const (
	// CompressionNone stores the payload as-is.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression. Fast to decode, which
	// matters because remote geometry is applied inside a frame.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level. Smaller blobs for
	// large level geometry at higher CPU cost.
	CompressionZstd Compression = 2
)

// String returns the configuration name of a compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression tag from its configuration name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// ErrIncompressible is returned internally when compressed output is not
// smaller than the input. Compress handles it by falling back to
// CompressionNone, so callers only see it from compressWith.
var ErrIncompressible = errors.New("data is incompressible")

// Compress compresses data with the preferred algorithm. The returned tag
// is the algorithm actually used: CompressionNone when the data does not
// shrink. Output is deterministic for a given input and tag.
func Compress(data []byte, preferred Compression) ([]byte, Compression, error) {
	packed, err := compressWith(data, preferred)
	if errors.Is(err, ErrIncompressible) {
		return data, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return packed, preferred, nil
}

// Decompress reverses Compress. uncompressedSize must equal the original
// length exactly; a mismatch is an error.
func Decompress(packed []byte, tag Compression, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(packed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(packed), uncompressedSize)
		}
		return packed, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(packed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		if uncompressedSize < 0 || uncompressedSize > MaxDecodedSize {
			return nil, fmt.Errorf("zstd decompress: size %d exceeds limit %d", uncompressedSize, MaxDecodedSize)
		}
		// A frame that declares its content size is checked before any
		// output is produced.
		var header zstd.Header
		if err := header.Decode(packed); err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if header.HasFCS && header.FrameContentSize != uint64(uncompressedSize) {
			return nil, fmt.Errorf("zstd decompress: frame holds %d bytes, expected %d",
				header.FrameContentSize, uncompressedSize)
		}
		result, err := zstdDecoder.DecodeAll(packed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

func compressWith(data []byte, tag Compression) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock returns 0 for incompressible input.
		if written == 0 || written >= len(data) {
			return nil, ErrIncompressible
		}
		return destination[:written], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, ErrIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag %d", tag)
	}
}

// MaxDecodedSize bounds the output of Decompress.
const MaxDecodedSize = 256 << 20

// zstd.Encoder and zstd.Decoder are safe for concurrent use and
// expensive to create, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(MaxDecodedSize),
	)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}
