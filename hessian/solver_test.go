package hessian

import (
	"errors"
	"math"
	"testing"

	"github.com/hupe1980/layerpress/core"
)

func curvatureFrom(t *testing.T, rows, cols int, data []float32) *Curvature {
	t.Helper()

	acc := NewAccumulator(cols)
	if err := acc.Accumulate(core.NewMatrixFrom(rows, cols, data)); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	c, err := acc.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	return c
}

func TestSolve_DiagonalCurvature(t *testing.T) {
	// X = 2x2 identity gives H = diag(1,1); damped H = diag(1+d, 1+d).
	c := curvatureFrom(t, 2, 2, []float32{
		1, 0,
		0, 1,
	})

	inv, err := Solve(c, 0.01)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if inv.Dim() != 2 {
		t.Fatalf("Expected dim 2, got %d", inv.Dim())
	}
	if inv.Damping() != 0.01 {
		t.Errorf("Expected damping 0.01, got %g", inv.Damping())
	}
	if inv.Dead().GetCardinality() != 0 {
		t.Errorf("Expected no dead columns, got %d", inv.Dead().GetCardinality())
	}

	want := 1.0 / 1.01
	for j := 0; j < 2; j++ {
		if got := inv.Diag(j); math.Abs(got-want) > 1e-12 {
			t.Errorf("Diag(%d): expected %g, got %g", j, want, got)
		}
	}
	if got := inv.At(0, 1); math.Abs(got) > 1e-12 {
		t.Errorf("Expected zero off-diagonal, got %g", got)
	}
}

func TestSolve_DiagPositive(t *testing.T) {
	c := curvatureFrom(t, 3, 3, []float32{
		1, 0.5, -0.25,
		-0.5, 2, 1,
		0.25, -1, 0.5,
	})

	inv, err := Solve(c, 0.01)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	for j := 0; j < 3; j++ {
		if inv.Diag(j) <= 0 {
			t.Errorf("Diag(%d) must be strictly positive, got %g", j, inv.Diag(j))
		}
	}
}

func TestSolve_DeadColumnIsolated(t *testing.T) {
	// Column 1 never sees any signal.
	c := curvatureFrom(t, 2, 3, []float32{
		1, 0, 2,
		3, 0, 1,
	})

	inv, err := Solve(c, 0.01)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if !inv.IsDead(1) {
		t.Fatal("Expected column 1 to be dead")
	}
	if inv.IsDead(0) || inv.IsDead(2) {
		t.Error("Live columns reported as dead")
	}
	if inv.Dead().GetCardinality() != 1 {
		t.Errorf("Expected 1 dead column, got %d", inv.Dead().GetCardinality())
	}

	// Dead columns are isolated: unit diagonal, no coupling to live columns.
	if got := inv.Diag(1); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("Expected unit diagonal for dead column, got %g", got)
	}
	for _, k := range []int{0, 2} {
		if got := inv.At(1, k); math.Abs(got) > 1e-12 {
			t.Errorf("Expected zero coupling Hinv[1,%d], got %g", k, got)
		}
	}
}

func TestSolve_AllDeadColumns(t *testing.T) {
	// All-zero calibration: every column is dead, the inverse is identity.
	c := curvatureFrom(t, 2, 2, []float32{0, 0, 0, 0})

	inv, err := Solve(c, 0.01)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if inv.Dead().GetCardinality() != 2 {
		t.Fatalf("Expected 2 dead columns, got %d", inv.Dead().GetCardinality())
	}
	for j := 0; j < 2; j++ {
		if got := inv.Diag(j); math.Abs(got-1.0) > 1e-12 {
			t.Errorf("Diag(%d): expected 1.0, got %g", j, got)
		}
	}
}

func TestSolve_SingularMatrix(t *testing.T) {
	// NaN in the calibration stream poisons the curvature; the factorization
	// fails for any damping and the error names the retried damping.
	c := curvatureFrom(t, 2, 2, []float32{
		1, float32(math.NaN()),
		0, 1,
	})

	_, err := Solve(c, 0.01)
	if err == nil {
		t.Fatal("Expected singular matrix error")
	}

	var sg *ErrSingularMatrix
	if !errors.As(err, &sg) {
		t.Fatalf("Expected *ErrSingularMatrix, got %T", err)
	}
	if math.Abs(sg.Damping-0.1) > 1e-12 {
		t.Errorf("Expected retried damping 0.1, got %g", sg.Damping)
	}
	if errors.Unwrap(sg) == nil {
		t.Error("Expected a wrapped cause")
	}
}

func TestInverse_RowTo(t *testing.T) {
	c := curvatureFrom(t, 2, 2, []float32{
		1, 0,
		0, 2,
	})

	inv, err := Solve(c, 0.01)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	row := make([]float32, 2)
	inv.RowTo(row, 0)
	for k := 0; k < 2; k++ {
		if math.Abs(float64(row[k])-inv.At(0, k)) > 1e-6 {
			t.Errorf("row[%d]: expected %g, got %g", k, inv.At(0, k), row[k])
		}
	}
}
