// Package artifact packs compression results into compact self-describing
// blobs and persists them through pluggable stores.
//
// A quantized artifact carries bit-packed grid levels plus fp16 scales and
// uint8 zero-points per derivation group. A pruned artifact carries the
// zeroed-position bitmap. Blobs can be framed with LZ4 or Zstd compression.
package artifact

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/x448/float16"

	"github.com/hupe1980/layerpress/codec"
)

// Mode identifies the compression policy an artifact was produced by.
type Mode uint8

const (
	// ModeQuantized marks grid-quantized weights.
	ModeQuantized Mode = 0
	// ModePruned marks magnitude-pruned weights.
	ModePruned Mode = 1
)

const (
	magic         = "LPA1"
	formatVersion = 1
)

// Artifact is the packed result of one layer compression session.
type Artifact struct {
	Layer string
	Mode  Mode
	Rows  int
	Cols  int

	// Quantized mode.
	Bits       int
	GroupWidth int  // columns per parameter group (== Cols for per-channel)
	PerTensor  bool // single parameter set for the whole matrix
	Scales     []float32
	Zeros      []uint8
	Packed     []byte // bit-packed grid levels, row-major

	// Pruned mode.
	Mask *roaring.Bitmap

	// Err is the curvature-weighted squared reconstruction error.
	Err float64
}

// PackQuantized builds a quantized artifact from a derived spec and the
// recorded grid levels (row-major, rows*cols entries).
func PackQuantized(layer string, rows, cols int, spec *codec.Spec, levels []uint8, errMetric float64) (*Artifact, error) {
	if len(levels) != rows*cols {
		return nil, fmt.Errorf("artifact: %d levels for %dx%d matrix", len(levels), rows, cols)
	}

	params := spec.ParamsSlice()
	scales := make([]float32, len(params))
	zeros := make([]uint8, len(params))
	for i, p := range params {
		scales[i] = p.Scale
		zeros[i] = uint8(p.Zero)
	}

	return &Artifact{
		Layer:      layer,
		Mode:       ModeQuantized,
		Rows:       rows,
		Cols:       cols,
		Bits:       spec.Bits(),
		GroupWidth: spec.GroupWidth(),
		PerTensor:  !spec.Grouping().IsPerGroup() && spec.NumParams() == 1,
		Scales:     scales,
		Zeros:      zeros,
		Packed:     packBits(levels, spec.Bits()),
		Err:        errMetric,
	}, nil
}

// PackPruned builds a pruned artifact from the zeroed-position bitmap.
func PackPruned(layer string, rows, cols int, mask *roaring.Bitmap, errMetric float64) *Artifact {
	return &Artifact{
		Layer: layer,
		Mode:  ModePruned,
		Rows:  rows,
		Cols:  cols,
		Mask:  mask,
		Err:   errMetric,
	}
}

// Level returns the grid level of element (r, c) of a quantized artifact.
func (a *Artifact) Level(r, c int) uint8 {
	return unpackBit(a.Packed, r*a.Cols+c, a.Bits)
}

// ValueAt reconstructs the real value of element (r, c) of a quantized
// artifact from its grid level and group parameters.
func (a *Artifact) ValueAt(r, c int) float32 {
	scale, zero := a.paramsAt(r, c)
	return float32(int32(a.Level(r, c))-int32(zero)) * scale
}

func (a *Artifact) paramsAt(r, c int) (float32, uint8) {
	if a.PerTensor {
		return a.Scales[0], a.Zeros[0]
	}
	groupsPerRow := (a.Cols + a.GroupWidth - 1) / a.GroupWidth
	idx := r*groupsPerRow + c/a.GroupWidth
	return a.Scales[idx], a.Zeros[idx]
}

// Pruned reports whether element (r, c) of a pruned artifact was zeroed.
func (a *Artifact) Pruned(r, c int) bool {
	return a.Mask != nil && a.Mask.Contains(uint32(r*a.Cols+c))
}

// Encode serializes the artifact with the given payload compression.
func (a *Artifact) Encode(compression Compression) ([]byte, error) {
	var payload bytes.Buffer

	writeString(&payload, a.Layer)
	payload.WriteByte(byte(a.Mode))
	writeUint32(&payload, uint32(a.Rows))
	writeUint32(&payload, uint32(a.Cols))
	writeFloat64(&payload, a.Err)

	switch a.Mode {
	case ModeQuantized:
		payload.WriteByte(byte(a.Bits))
		flags := byte(0)
		if a.PerTensor {
			flags |= 1
		}
		payload.WriteByte(flags)
		writeUint32(&payload, uint32(a.GroupWidth))
		writeUint32(&payload, uint32(len(a.Scales)))
		for i, s := range a.Scales {
			writeUint16(&payload, float16.Fromfloat32(s).Bits())
			payload.WriteByte(a.Zeros[i])
		}
		writeUint32(&payload, uint32(len(a.Packed)))
		payload.Write(a.Packed)
	case ModePruned:
		maskBytes, err := a.Mask.MarshalBinary()
		if err != nil {
			return nil, err
		}
		writeUint32(&payload, uint32(len(maskBytes)))
		payload.Write(maskBytes)
	default:
		return nil, fmt.Errorf("artifact: unknown mode %d", a.Mode)
	}

	return frame(payload.Bytes(), compression)
}

// Decode deserializes an encoded artifact.
func Decode(data []byte) (*Artifact, error) {
	payload, err := deframe(data)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(payload)
	a := &Artifact{}

	if a.Layer, err = readString(r); err != nil {
		return nil, err
	}
	mode, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	a.Mode = Mode(mode)

	rows, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	cols, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	a.Rows, a.Cols = int(rows), int(cols)

	if a.Err, err = readFloat64(r); err != nil {
		return nil, err
	}

	switch a.Mode {
	case ModeQuantized:
		bits, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		a.Bits = int(bits)
		flags, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		a.PerTensor = flags&1 != 0
		gw, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		a.GroupWidth = int(gw)
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		a.Scales = make([]float32, n)
		a.Zeros = make([]uint8, n)
		for i := range a.Scales {
			bits16, err := readUint16(r)
			if err != nil {
				return nil, err
			}
			a.Scales[i] = float16.Frombits(bits16).Float32()
			if a.Zeros[i], err = r.ReadByte(); err != nil {
				return nil, err
			}
		}
		packedLen, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		a.Packed = make([]byte, packedLen)
		if _, err := io.ReadFull(r, a.Packed); err != nil {
			return nil, err
		}
	case ModePruned:
		maskLen, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		maskBytes := make([]byte, maskLen)
		if _, err := io.ReadFull(r, maskBytes); err != nil {
			return nil, err
		}
		a.Mask = roaring.New()
		if err := a.Mask.UnmarshalBinary(maskBytes); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("artifact: unknown mode %d", a.Mode)
	}

	return a, nil
}

// packBits packs levels into a little-endian bitstream of bits per level.
func packBits(levels []uint8, bits int) []byte {
	out := make([]byte, (len(levels)*bits+7)/8)
	var acc uint32
	var nbits, pos int
	for _, lvl := range levels {
		acc |= uint32(lvl) << nbits
		nbits += bits
		for nbits >= 8 {
			out[pos] = byte(acc)
			acc >>= 8
			nbits -= 8
			pos++
		}
	}
	if nbits > 0 {
		out[pos] = byte(acc)
	}
	return out
}

// unpackBit extracts the idx-th level from a packed bitstream.
func unpackBit(packed []byte, idx, bits int) uint8 {
	bitPos := idx * bits
	bytePos := bitPos / 8
	shift := bitPos % 8

	v := uint32(packed[bytePos]) >> shift
	if shift+bits > 8 {
		v |= uint32(packed[bytePos+1]) << (8 - shift)
	}
	return uint8(v & (1<<bits - 1))
}

var errTruncated = errors.New("artifact: truncated payload")

func writeString(buf *bytes.Buffer, s string) {
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errTruncated
	}
	return string(b), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, errTruncated
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}
