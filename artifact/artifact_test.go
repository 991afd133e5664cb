package artifact

import (
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/layerpress/codec"
	"github.com/hupe1980/layerpress/core"
)

func quantizedFixture(t *testing.T) (*Artifact, *core.Matrix, *codec.Spec) {
	t.Helper()

	w := core.NewMatrixFrom(2, 4, []float32{
		-1.0, 0.25, 0.5, 1.0,
		-2.0, 0.0, 1.5, 2.0,
	})

	spec, err := codec.Derive(w, 4, codec.PerChannel())
	require.NoError(t, err)

	levels := make([]uint8, 8)
	for r := 0; r < 2; r++ {
		for c := 0; c < 4; c++ {
			levels[r*4+c] = spec.Encode(w.At(r, c), spec.Params(r, c))
		}
	}

	art, err := PackQuantized("model.layers.0.mlp", 2, 4, spec, levels, 0.0125)
	require.NoError(t, err)

	return art, w, spec
}

func TestPackQuantized_Fields(t *testing.T) {
	art, _, spec := quantizedFixture(t)

	assert.Equal(t, ModeQuantized, art.Mode)
	assert.Equal(t, 2, art.Rows)
	assert.Equal(t, 4, art.Cols)
	assert.Equal(t, 4, art.Bits)
	assert.False(t, art.PerTensor)
	assert.Len(t, art.Scales, spec.NumParams())

	// 8 levels x 4 bits = 4 bytes.
	assert.Len(t, art.Packed, 4)
}

func TestPackQuantized_LevelCountMismatch(t *testing.T) {
	w := core.NewMatrixFrom(1, 2, []float32{0, 1})
	spec, err := codec.Derive(w, 4, codec.PerTensor())
	require.NoError(t, err)

	_, err = PackQuantized("l", 1, 2, spec, []uint8{1}, 0)
	require.Error(t, err)
}

func TestArtifact_ValueAt(t *testing.T) {
	art, w, spec := quantizedFixture(t)

	// Reconstructed values match the grid round trip, up to the fp16
	// precision the scales are stored at.
	for r := 0; r < 2; r++ {
		for c := 0; c < 4; c++ {
			want := spec.Quantize(w.At(r, c), spec.Params(r, c))
			got := art.ValueAt(r, c)
			assert.InDelta(t, want, got, math.Abs(float64(want))*1e-3+1e-3, "element (%d,%d)", r, c)
		}
	}
}

func TestArtifact_EncodeDecode(t *testing.T) {
	art, _, _ := quantizedFixture(t)

	for _, compression := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		data, err := art.Encode(compression)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)

		assert.Equal(t, art.Layer, got.Layer)
		assert.Equal(t, art.Mode, got.Mode)
		assert.Equal(t, art.Rows, got.Rows)
		assert.Equal(t, art.Cols, got.Cols)
		assert.Equal(t, art.Bits, got.Bits)
		assert.Equal(t, art.GroupWidth, got.GroupWidth)
		assert.Equal(t, art.Zeros, got.Zeros)
		assert.Equal(t, art.Packed, got.Packed)
		assert.Equal(t, art.Err, got.Err)

		for r := 0; r < art.Rows; r++ {
			for c := 0; c < art.Cols; c++ {
				assert.Equal(t, art.Level(r, c), got.Level(r, c))
			}
		}
	}
}

func TestArtifact_EncodeDecode_Pruned(t *testing.T) {
	mask := roaring.New()
	mask.AddMany([]uint32{0, 3, 5, 7})

	art := PackPruned("model.layers.1.attn", 2, 4, mask, 0.5)

	data, err := art.Encode(CompressionZstd)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, ModePruned, got.Mode)
	assert.Equal(t, art.Layer, got.Layer)
	require.NotNil(t, got.Mask)
	assert.True(t, got.Mask.Equals(mask))

	assert.True(t, got.Pruned(0, 0))
	assert.True(t, got.Pruned(0, 3))
	assert.False(t, got.Pruned(0, 1))
	assert.True(t, got.Pruned(1, 1)) // flat index 5
}

func TestDecode_BadInput(t *testing.T) {
	_, err := Decode([]byte("nope"))
	require.Error(t, err)

	_, err = Decode([]byte("XXXX\x01\x00\x00\x00\x00\x00"))
	require.Error(t, err, "bad magic")

	art, _, _ := quantizedFixture(t)
	data, err := art.Encode(CompressionNone)
	require.NoError(t, err)

	_, err = Decode(data[:len(data)-3])
	require.Error(t, err, "truncated body")

	data[4] = 99
	_, err = Decode(data)
	require.Error(t, err, "unsupported version")
}

func TestPackBits_CrossByteBoundary(t *testing.T) {
	// 3-bit levels straddle byte boundaries.
	levels := []uint8{7, 0, 5, 2, 1, 6, 3, 4}
	packed := packBits(levels, 3)

	require.Len(t, packed, 3) // 24 bits

	for i, want := range levels {
		assert.Equal(t, want, unpackBit(packed, i, 3), "level %d", i)
	}
}

func TestFrame_IncompressibleFallsBackToRaw(t *testing.T) {
	// Tiny high-entropy payloads do not compress; the frame must degrade to
	// raw storage and still round-trip.
	payload := []byte{0x8f, 0x13, 0xa7, 0x42}

	for _, compression := range []Compression{CompressionLZ4, CompressionZstd} {
		framed, err := frame(payload, compression)
		require.NoError(t, err)

		assert.Equal(t, byte(CompressionNone), framed[5])

		got, err := deframe(framed)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}
