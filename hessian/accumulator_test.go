package hessian

import (
	"errors"
	"math"
	"testing"

	"github.com/hupe1980/layerpress/core"
)

func batchFrom(rows, cols int, data []float32) *core.Matrix {
	return core.NewMatrixFrom(rows, cols, data)
}

func TestAccumulator_SingleBatch(t *testing.T) {
	// Two samples of width 2: X = [[1,0],[0,2]].
	// H = (2/2) * XT X = [[1,0],[0,4]].
	acc := NewAccumulator(2)
	err := acc.Accumulate(batchFrom(2, 2, []float32{
		1, 0,
		0, 2,
	}))
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}

	c, err := acc.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if c.Samples() != 2 {
		t.Errorf("Expected 2 samples, got %d", c.Samples())
	}

	want := [2][2]float64{{1, 0}, {0, 4}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if got := c.At(i, j); math.Abs(got-want[i][j]) > 1e-9 {
				t.Errorf("H[%d,%d]: expected %f, got %f", i, j, want[i][j], got)
			}
		}
	}
}

func TestAccumulator_RunningAverage(t *testing.T) {
	// Accumulating one batch of 4 rows must equal accumulating the same rows
	// as two batches of 2, up to rounding.
	data := []float32{
		1, -2, 0.5,
		0, 3, 1,
		-1, 0.25, 2,
		2, 1, -0.5,
	}

	whole := NewAccumulator(3)
	if err := whole.Accumulate(batchFrom(4, 3, data)); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	cWhole, err := whole.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	split := NewAccumulator(3)
	if err := split.Accumulate(batchFrom(2, 3, data[:6])); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if err := split.Accumulate(batchFrom(2, 3, data[6:])); err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	cSplit, err := split.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a, b := cWhole.At(i, j), cSplit.At(i, j)
			if math.Abs(a-b) > 1e-9*math.Max(1, math.Abs(a)) {
				t.Errorf("H[%d,%d]: whole %g vs split %g", i, j, a, b)
			}
		}
	}
}

func TestAccumulator_BatchOrderIndependent(t *testing.T) {
	b1 := []float32{1, 2, 3, 4}    // 2x2
	b2 := []float32{-1, 0.5, 2, 1} // 2x2

	fwd := NewAccumulator(2)
	if err := fwd.Accumulate(batchFrom(2, 2, b1)); err != nil {
		t.Fatal(err)
	}
	if err := fwd.Accumulate(batchFrom(2, 2, b2)); err != nil {
		t.Fatal(err)
	}
	cFwd, err := fwd.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	rev := NewAccumulator(2)
	if err := rev.Accumulate(batchFrom(2, 2, b2)); err != nil {
		t.Fatal(err)
	}
	if err := rev.Accumulate(batchFrom(2, 2, b1)); err != nil {
		t.Fatal(err)
	}
	cRev, err := rev.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			a, b := cFwd.At(i, j), cRev.At(i, j)
			if math.Abs(a-b) > 1e-9*math.Max(1, math.Abs(a)) {
				t.Errorf("H[%d,%d]: forward %g vs reversed %g", i, j, a, b)
			}
		}
	}
}

func TestAccumulator_ShapeMismatch(t *testing.T) {
	acc := NewAccumulator(3)

	err := acc.Accumulate(batchFrom(2, 2, []float32{1, 2, 3, 4}))
	if err == nil {
		t.Fatal("Expected shape mismatch error")
	}

	var sm *ErrShapeMismatch
	if !errors.As(err, &sm) {
		t.Fatalf("Expected *ErrShapeMismatch, got %T", err)
	}
	if sm.Expected != 3 || sm.Actual != 2 {
		t.Errorf("Expected 3/2, got %d/%d", sm.Expected, sm.Actual)
	}

	// The failed batch must not count.
	if acc.Samples() != 0 {
		t.Errorf("Expected 0 samples, got %d", acc.Samples())
	}
}

func TestAccumulator_FinalizeWithoutData(t *testing.T) {
	acc := NewAccumulator(2)

	_, err := acc.Finalize()
	if !errors.Is(err, ErrInsufficientCalibration) {
		t.Fatalf("Expected ErrInsufficientCalibration, got %v", err)
	}
}
