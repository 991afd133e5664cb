package hessian

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
)

// retryDampingFactor scales the damping for the single factorization retry.
const retryDampingFactor = 10.0

// ErrSingularMatrix indicates that the curvature matrix could not be
// Cholesky-factorized even after the damping retry.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrSingularMatrix struct {
	Damping float64
	cause   error
}

func (e *ErrSingularMatrix) Error() string {
	return fmt.Sprintf("curvature matrix not positive definite (damping %g)", e.Damping)
}

func (e *ErrSingularMatrix) Unwrap() error { return e.cause }

// Inverse is the damped curvature inverse of one layer compression session.
// Its diagonal entries are strictly positive.
type Inverse struct {
	inv     *mat.SymDense
	dead    *roaring.Bitmap
	dim     int
	damping float64 // effective damping after any retry
}

// Solve damps and inverts the curvature matrix via Cholesky factorization.
//
// Every diagonal entry receives damping*mean(diag(H)). Columns whose
// pre-damping diagonal is zero or negative carry no calibration signal; they
// are isolated (diagonal reset to 1.0, couplings cleared) and reported via
// Dead, so the compressor quantizes them without error compensation.
//
// If factorization fails, Solve retries once with 10x damping and then
// returns *ErrSingularMatrix.
func Solve(c *Curvature, damping float64) (*Inverse, error) {
	dim := c.Dim()
	dead := roaring.New()

	var meanDiag float64
	for j := 0; j < dim; j++ {
		d := c.sym.At(j, j)
		if d <= 0 {
			dead.Add(uint32(j))
			continue
		}
		meanDiag += d
	}
	if live := dim - int(dead.GetCardinality()); live > 0 {
		meanDiag /= float64(live)
	} else {
		meanDiag = 1.0
	}

	inv, err := factorize(c, damping*meanDiag, dead)
	if err != nil {
		inv, err = factorize(c, damping*retryDampingFactor*meanDiag, dead)
		if err != nil {
			return nil, &ErrSingularMatrix{Damping: damping * retryDampingFactor, cause: err}
		}
		damping *= retryDampingFactor
	}

	return &Inverse{
		inv:     inv,
		dead:    dead,
		dim:     dim,
		damping: damping,
	}, nil
}

// factorize builds the damped matrix, isolates dead columns and returns its
// Cholesky inverse.
func factorize(c *Curvature, diagBoost float64, dead *roaring.Bitmap) (*mat.SymDense, error) {
	dim := c.Dim()

	damped := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			if dead.Contains(uint32(i)) || dead.Contains(uint32(j)) {
				continue
			}
			damped.SetSym(i, j, c.sym.At(i, j))
		}
		if dead.Contains(uint32(i)) {
			damped.SetSym(i, i, 1.0)
		} else {
			damped.SetSym(i, i, c.sym.At(i, i)+diagBoost)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(damped); !ok {
		return nil, fmt.Errorf("cholesky factorization failed (dim %d)", dim)
	}

	inv := mat.NewSymDense(dim, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, err
	}

	return inv, nil
}

// Dim returns the matrix dimension.
func (v *Inverse) Dim() int { return v.dim }

// Damping returns the effective damping used for the successful factorization.
func (v *Inverse) Damping() float64 { return v.damping }

// At returns Hinv[i,j].
func (v *Inverse) At(i, j int) float64 {
	return v.inv.At(i, j)
}

// Diag returns the diagonal entry Hinv[j,j]. Strictly positive.
func (v *Inverse) Diag(j int) float64 {
	return v.inv.At(j, j)
}

// RowTo fills dst (length Dim) with row j of the inverse as float32, for the
// float32 propagation hot path.
func (v *Inverse) RowTo(dst []float32, j int) {
	for k := 0; k < v.dim; k++ {
		dst[k] = float32(v.inv.At(j, k))
	}
}

// IsDead reports whether column j carried no calibration signal.
func (v *Inverse) IsDead(j int) bool {
	return v.dead.Contains(uint32(j))
}

// Dead returns the set of dead columns. The caller must not mutate it.
func (v *Inverse) Dead() *roaring.Bitmap {
	return v.dead
}
