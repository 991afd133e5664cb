package artifact

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the framing algorithm for encoded artifacts.
type Compression uint8

const (
	// CompressionNone stores the payload uncompressed.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses Zstd block compression (better ratio).
	CompressionZstd Compression = 2
)

// Frame layout: [magic:4]["version":1][compression:1][uncompressedSize:u32][data].
const frameHeaderSize = 4 + 1 + 1 + 4

// ZSTD encoder/decoder pools for efficiency.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// frame wraps payload with the artifact header and optional compression.
func frame(payload []byte, compression Compression) ([]byte, error) {
	var data []byte
	switch compression {
	case CompressionNone:
		data = payload
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		var c lz4.Compressor
		n, err := c.CompressBlock(payload, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(payload) {
			// Incompressible: fall back to raw storage.
			compression = CompressionNone
			data = payload
		} else {
			data = buf[:n]
		}
	case CompressionZstd:
		enc := getZstdEncoder()
		data = enc.EncodeAll(payload, nil)
		zstdEncoderPool.Put(enc)
		if len(data) >= len(payload) {
			compression = CompressionNone
			data = payload
		}
	default:
		return nil, fmt.Errorf("artifact: unknown compression %d", compression)
	}

	out := make([]byte, 0, frameHeaderSize+len(data))
	out = append(out, magic...)
	out = append(out, formatVersion, byte(compression))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, data...)

	return out, nil
}

// deframe validates the header and returns the decompressed payload.
func deframe(data []byte) ([]byte, error) {
	if len(data) < frameHeaderSize {
		return nil, errTruncated
	}
	if string(data[:4]) != magic {
		return nil, fmt.Errorf("artifact: bad magic %q", data[:4])
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("artifact: unsupported format version %d", data[4])
	}

	compression := Compression(data[5])
	size := binary.LittleEndian.Uint32(data[6:10])
	body := data[frameHeaderSize:]

	switch compression {
	case CompressionNone:
		if uint32(len(body)) != size {
			return nil, errTruncated
		}
		return body, nil
	case CompressionLZ4:
		payload := make([]byte, size)
		n, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return nil, err
		}
		if uint32(n) != size {
			return nil, errTruncated
		}
		return payload, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		payload, err := dec.DecodeAll(body, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, err
		}
		if uint32(len(payload)) != size {
			return nil, errTruncated
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("artifact: unknown compression %d", compression)
	}
}
