package obq

import (
	"github.com/hupe1980/layerpress/codec"
	"github.com/hupe1980/layerpress/core"
)

// Quantizer is the grid-quantization Codec. It records the integer grid level
// of every weight for artifact packing, and re-derives per-group parameters
// at group boundaries from the error-corrected weights.
type Quantizer struct {
	spec      *codec.Spec
	w         *core.Matrix
	levels    []uint8
	cols      int
	groupEnd  int // next group boundary, cols if grouping is not per-group
	perGroup  bool
	groupSize int
}

// NewQuantizer creates a quantization codec over the working matrix w.
// The spec must have been derived from the same matrix.
func NewQuantizer(spec *codec.Spec, w *core.Matrix) *Quantizer {
	q := &Quantizer{
		spec:   spec,
		w:      w,
		levels: make([]uint8, w.Rows()*w.Cols()),
		cols:   w.Cols(),
	}
	if spec.Grouping().IsPerGroup() {
		q.perGroup = true
		q.groupSize = spec.GroupWidth()
		q.groupEnd = q.groupSize
	} else {
		q.groupEnd = w.Cols()
	}
	return q
}

// Compress implements Codec: encode column j onto the grid and decode back.
func (q *Quantizer) Compress(out, col []float32, j int, _ float64) {
	if q.perGroup && j >= q.groupEnd {
		// Entering a new group: its grid must reflect the corrected weights.
		q.spec.RederiveColumns(q.w, j, j+q.groupSize)
		q.groupEnd = j + q.groupSize
	}

	for r := range col {
		p := q.spec.Params(r, j)
		lvl := q.spec.Encode(col[r], p)
		q.levels[r*q.cols+j] = lvl
		out[r] = q.spec.Decode(lvl, p)
	}
}

// Levels returns the recorded grid levels, row-major, one per weight.
func (q *Quantizer) Levels() []uint8 { return q.levels }

// Spec returns the quantization spec, including any re-derived group
// parameters.
func (q *Quantizer) Spec() *codec.Spec { return q.spec }
