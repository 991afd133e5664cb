// Package codec maps real-valued weights onto fixed quantization grids.
//
// A Spec holds the affine grid parameters (scale, zero-point) derived from
// observed weight statistics. Derivation supports per-tensor, per-channel and
// per-group parameter sharing. Encode/Decode implement the lossy round trip:
// Decode(Encode(x)) is idempotent under re-application.
package codec

import (
	"fmt"
	"math"

	"github.com/hupe1980/layerpress/core"
)

const (
	// MinBits is the smallest supported bit width.
	MinBits = 2
	// MaxBits is the largest supported bit width (levels fit in uint8).
	MaxBits = 8
)

// Params holds the affine mapping for one derivation group.
// A real value x maps to grid level round(x/Scale) + Zero.
type Params struct {
	Scale float32
	Zero  int32
}

// Spec holds the quantization grid for one weight matrix.
// It is immutable after Derive, except that per-group specs are re-derived
// group by group as the compressor corrects weights (see RederiveColumns).
type Spec struct {
	bits       int
	maxLevel   int32
	grouping   Grouping
	rows, cols int
	groupWidth int
	params     []Params // per-tensor: 1 entry; otherwise rows*groupsPerRow
}

// Derive computes grid parameters for w from observed min/max statistics.
func Derive(w *core.Matrix, bits int, g Grouping) (*Spec, error) {
	if bits < MinBits || bits > MaxBits {
		return nil, fmt.Errorf("codec: bit width %d outside supported range [%d,%d]", bits, MinBits, MaxBits)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	s := &Spec{
		bits:       bits,
		maxLevel:   int32(1)<<bits - 1,
		grouping:   g,
		rows:       w.Rows(),
		cols:       w.Cols(),
		groupWidth: g.groupWidth(w.Cols()),
	}

	if g.mode == groupPerTensor {
		minV, maxV := minMax(w.Data())
		s.params = []Params{deriveParams(minV, maxV, s.maxLevel)}
		return s, nil
	}

	groupsPerRow := s.groupsPerRow()
	s.params = make([]Params, s.rows*groupsPerRow)
	for r := 0; r < s.rows; r++ {
		row := w.Row(r)
		for g := 0; g < groupsPerRow; g++ {
			start := g * s.groupWidth
			end := min(start+s.groupWidth, s.cols)
			minV, maxV := minMax(row[start:end])
			s.params[r*groupsPerRow+g] = deriveParams(minV, maxV, s.maxLevel)
		}
	}

	return s, nil
}

// deriveParams builds the affine mapping for the observed [minV, maxV] range:
// scale = (max-min)/maxLevel, zero = round(-min/scale) clamped to the grid.
func deriveParams(minV, maxV float32, maxLevel int32) Params {
	// Degenerate range: widen so the scale stays positive.
	if minV == maxV {
		maxV = minV + 1
	}

	scale := (maxV - minV) / float32(maxLevel)
	zero := int32(math.Round(float64(-minV / scale)))
	if zero < 0 {
		zero = 0
	} else if zero > maxLevel {
		zero = maxLevel
	}

	return Params{Scale: scale, Zero: zero}
}

// Bits returns the configured bit width.
func (s *Spec) Bits() int { return s.bits }

// Grouping returns the configured parameter grouping.
func (s *Spec) Grouping() Grouping { return s.grouping }

// MaxLevel returns the highest representable grid level (2^bits - 1).
func (s *Spec) MaxLevel() uint8 { return uint8(s.maxLevel) }

// GroupWidth returns the number of columns sharing one parameter set.
func (s *Spec) GroupWidth() int { return s.groupWidth }

// NumParams returns the number of stored parameter sets.
func (s *Spec) NumParams() int { return len(s.params) }

func (s *Spec) groupsPerRow() int {
	return (s.cols + s.groupWidth - 1) / s.groupWidth
}

// Params returns the parameter set governing element (row, col).
func (s *Spec) Params(row, col int) Params {
	if s.grouping.mode == groupPerTensor {
		return s.params[0]
	}
	return s.params[row*s.groupsPerRow()+col/s.groupWidth]
}

// ParamsSlice returns the raw parameter sets in derivation order
// (row-major, one per group). Used by artifact packing.
func (s *Spec) ParamsSlice() []Params { return s.params }

// Encode rounds x to the nearest representable level and clamps to the grid.
func (s *Spec) Encode(x float32, p Params) uint8 {
	level := int32(math.Round(float64(x/p.Scale))) + p.Zero
	if level < 0 {
		level = 0
	} else if level > s.maxLevel {
		level = s.maxLevel
	}
	return uint8(level)
}

// Decode maps a grid level back to a real value.
func (s *Spec) Decode(level uint8, p Params) float32 {
	return float32(int32(level)-p.Zero) * p.Scale
}

// Quantize is the lossy round trip Decode(Encode(x)).
func (s *Spec) Quantize(x float32, p Params) float32 {
	return s.Decode(s.Encode(x, p), p)
}

// RederiveColumns refreshes the parameters of the group covering columns
// [start, end) from the current values of w, for every row. Only meaningful
// for per-group specs: the compressor calls this at group boundaries so each
// group's grid reflects the error-corrected weights.
func (s *Spec) RederiveColumns(w *core.Matrix, start, end int) {
	if !s.grouping.IsPerGroup() {
		return
	}
	if end > s.cols {
		end = s.cols
	}

	group := start / s.groupWidth
	groupsPerRow := s.groupsPerRow()
	for r := 0; r < s.rows; r++ {
		row := w.Row(r)
		minV, maxV := minMax(row[start:end])
		s.params[r*groupsPerRow+group] = deriveParams(minV, maxV, s.maxLevel)
	}
}

func minMax(v []float32) (minV, maxV float32) {
	minV = math.MaxFloat32
	maxV = -math.MaxFloat32
	for _, x := range v {
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}
	return minV, maxV
}
