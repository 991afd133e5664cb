// Package hessian accumulates layer-input curvature statistics and produces
// the damped curvature inverse used for compression error compensation.
package hessian

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hupe1980/layerpress/core"
)

// ErrInsufficientCalibration is returned by Finalize when no calibration
// batches were accumulated.
//
// This is a hessian-layer sentinel; the layerpress package may translate it
// into its public error contract.
var ErrInsufficientCalibration = errors.New("no calibration batches accumulated")

// ErrShapeMismatch indicates a calibration batch whose width does not match
// the accumulator dimension.
type ErrShapeMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrShapeMismatch) Error() string {
	return fmt.Sprintf("batch width mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Accumulator incrementally builds the curvature matrix H ~ 2*E[x xT] from a
// stream of calibration batches. Accumulation is a running average, so batch
// order only matters up to floating-point rounding.
//
// One Accumulator belongs to exactly one layer compression session and must
// not be shared across goroutines.
type Accumulator struct {
	dim int
	n   int // activation rows accumulated so far
	h   *mat.SymDense
}

// NewAccumulator creates an accumulator for activation vectors of width dim.
func NewAccumulator(dim int) *Accumulator {
	return &Accumulator{
		dim: dim,
		h:   mat.NewSymDense(dim, nil),
	}
}

// Dim returns the activation width.
func (a *Accumulator) Dim() int { return a.dim }

// Samples returns the number of activation rows accumulated so far.
func (a *Accumulator) Samples() int { return a.n }

// Accumulate folds one calibration batch (samples x dim) into the running
// average: H <- H*(n/(n+m)) + (XT X)*(2/(n+m)).
//
// The factor 2 matches the convention that H approximates the Hessian of a
// squared-error objective rather than a plain second moment.
func (a *Accumulator) Accumulate(batch *core.Matrix) error {
	if batch.Cols() != a.dim {
		return &ErrShapeMismatch{Expected: a.dim, Actual: batch.Cols()}
	}

	m := batch.Rows()
	if m == 0 {
		return nil
	}

	x := denseFrom(batch)
	total := float64(a.n + m)

	if a.n > 0 {
		a.h.ScaleSym(float64(a.n)/total, a.h)
	}
	a.h.SymRankK(a.h, 2.0/total, x.T())
	a.n += m

	return nil
}

// Finalize returns the accumulated curvature matrix.
// The accumulator must not be used afterwards.
func (a *Accumulator) Finalize() (*Curvature, error) {
	if a.n == 0 {
		return nil, ErrInsufficientCalibration
	}

	c := &Curvature{
		sym:     a.h,
		samples: a.n,
	}
	a.h = nil

	return c, nil
}

// Curvature is the finalized (dim x dim) symmetric curvature matrix of one
// layer compression session.
type Curvature struct {
	sym     *mat.SymDense
	samples int
}

// Dim returns the matrix dimension.
func (c *Curvature) Dim() int {
	n, _ := c.sym.Dims()
	return n
}

// Samples returns the number of activation rows the matrix was built from.
func (c *Curvature) Samples() int { return c.samples }

// At returns H[i,j].
func (c *Curvature) At(i, j int) float64 {
	return c.sym.At(i, j)
}

// denseFrom converts a float32 batch into a float64 gonum matrix.
func denseFrom(batch *core.Matrix) *mat.Dense {
	rows, cols := batch.Rows(), batch.Cols()
	data := make([]float64, rows*cols)
	src := batch.Data()
	for i, v := range src {
		data[i] = float64(v)
	}
	return mat.NewDense(rows, cols, data)
}
