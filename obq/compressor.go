// Package obq implements greedy column-wise weight compression with
// second-order error compensation (the OBQ/OBC family of algorithms).
//
// Columns are processed in index order. Each column is mapped to its
// compressed representation by a Codec, and the rounding error - scaled by
// the local curvature sensitivity - is propagated to all not-yet-processed
// columns so they can absorb it. Processing is blocked for cache efficiency;
// the blocked formulation is algebraically equivalent to column-at-a-time.
package obq

import (
	"fmt"

	"github.com/hupe1980/layerpress/core"
	"github.com/hupe1980/layerpress/hessian"
	"github.com/hupe1980/layerpress/internal/math32"
)

// Codec maps one weight column to its compressed representation.
//
// Compress writes the compressed form of col into out. col holds the current
// (error-corrected) column values, j is the column index and d the
// corresponding diagonal entry of the curvature inverse. Implementations are
// the quantization grid (Quantizer) and magnitude pruning (Pruner); the
// propagation math is shared.
type Codec interface {
	Compress(out, col []float32, j int, d float64)
}

// Result summarizes one compression pass.
type Result struct {
	// Err is the cumulative curvature-weighted squared error
	// sum((w - w^)^2 / d_jj) over all live columns.
	Err float64

	// Cols is the number of columns processed.
	Cols int

	// DeadCols is the number of columns compressed without compensation.
	DeadCols int
}

// Compress rewrites w in place with the codec's representation of every
// column, compensating rounding error via the curvature inverse.
//
// The matrix shape is never changed. Columns marked dead in inv are
// compressed independently with zero propagated error.
func Compress(w *core.Matrix, inv *hessian.Inverse, cdc Codec, blockSize int) (*Result, error) {
	rows, cols := w.Rows(), w.Cols()
	if inv.Dim() != cols {
		return nil, fmt.Errorf("obq: curvature inverse dim %d does not match %d weight columns", inv.Dim(), cols)
	}
	if blockSize < 1 {
		blockSize = 1
	}
	if blockSize > cols {
		blockSize = cols
	}

	colBuf := make([]float32, rows)
	outBuf := make([]float32, rows)
	scaled := make([]float32, rows*blockSize) // per-block scaled errors, rows x blockWidth
	hrows := make([][]float32, blockSize)     // float32 copies of the block's inverse rows
	for i := range hrows {
		hrows[i] = make([]float32, cols)
	}

	res := &Result{Cols: cols}

	for bStart := 0; bStart < cols; bStart += blockSize {
		bEnd := min(bStart+blockSize, cols)
		bw := bEnd - bStart

		for j := bStart; j < bEnd; j++ {
			jb := j - bStart
			d := inv.Diag(j)

			w.Col(colBuf, j)
			cdc.Compress(outBuf, colBuf, j, d)
			w.SetCol(j, outBuf)

			if inv.IsDead(j) {
				// No curvature signal: compress standalone, propagate nothing.
				for r := 0; r < rows; r++ {
					scaled[r*bw+jb] = 0
				}
				res.DeadCols++
				continue
			}

			inv.RowTo(hrows[jb], j)
			invD := 1.0 / d

			var colErr float64
			for r := 0; r < rows; r++ {
				raw := float64(colBuf[r] - outBuf[r])
				e := raw * invD
				scaled[r*bw+jb] = float32(e)
				colErr += raw * e
			}
			res.Err += colErr

			// Propagate to the unprocessed columns of this block.
			if j+1 < bEnd {
				hj := hrows[jb]
				for r := 0; r < rows; r++ {
					e := scaled[r*bw+jb]
					if e == 0 {
						continue
					}
					row := w.Row(r)
					math32.Axpy(-e, hj[j+1:bEnd], row[j+1:bEnd])
				}
			}
		}

		// Propagate the whole block's error to the remaining columns once.
		if bEnd == cols {
			continue
		}
		for jb := 0; jb < bw; jb++ {
			hj := hrows[jb]
			for r := 0; r < rows; r++ {
				e := scaled[r*bw+jb]
				if e == 0 {
					continue
				}
				row := w.Row(r)
				math32.Axpy(-e, hj[bEnd:], row[bEnd:])
			}
		}
	}

	return res, nil
}
