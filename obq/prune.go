package obq

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Pruner is the sparsification Codec. Per column it zeroes the lowest-ranked
// fraction of entries by the saliency w^2/d and leaves the survivors
// numerically exact. Zeroed positions are recorded in a roaring bitmap over
// row-major flat indices.
type Pruner struct {
	ratio    float64
	cols     int
	mask     *roaring.Bitmap
	order    []int
	saliency []float64
}

// NewPruner creates a pruning codec that zeroes ratio of each column.
// ratio must be in [0, 1).
func NewPruner(ratio float64, rows, cols int) *Pruner {
	return &Pruner{
		ratio:    ratio,
		cols:     cols,
		mask:     roaring.New(),
		order:    make([]int, rows),
		saliency: make([]float64, rows),
	}
}

// Compress implements Codec: keep the top entries of column j, zero the rest.
func (p *Pruner) Compress(out, col []float32, j int, d float64) {
	copy(out, col)

	k := int(math.Round(p.ratio * float64(len(col))))
	if k <= 0 {
		return
	}

	for r, v := range col {
		p.order[r] = r
		p.saliency[r] = float64(v) * float64(v) / d
	}
	sort.Slice(p.order, func(a, b int) bool {
		return p.saliency[p.order[a]] < p.saliency[p.order[b]]
	})

	for i := 0; i < k; i++ {
		r := p.order[i]
		out[r] = 0
		p.mask.Add(uint32(r*p.cols + j))
	}
}

// Mask returns the zeroed positions as row-major flat indices.
func (p *Pruner) Mask() *roaring.Bitmap { return p.mask }

// PrunedCount returns the number of weights set to zero so far.
func (p *Pruner) PrunedCount() uint64 { return p.mask.GetCardinality() }
