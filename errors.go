package layerpress

import (
	"errors"
	"fmt"

	"github.com/hupe1980/layerpress/hessian"
)

var (
	// ErrInsufficientCalibration is returned when a layer observed zero
	// calibration batches.
	ErrInsufficientCalibration = errors.New("insufficient calibration data")

	// ErrNilRunner is returned when New is called without a calibration runner.
	ErrNilRunner = errors.New("calibration runner must not be nil")
)

// ErrShapeMismatch indicates that calibration activations do not match the
// layer's expected input width. This points at a wiring bug between the
// orchestrator and the execution collaborator and is not recoverable locally.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrShapeMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrShapeMismatch) Error() string {
	return fmt.Sprintf("shape mismatch: expected width %d, got %d", e.Expected, e.Actual)
}

func (e *ErrShapeMismatch) Unwrap() error { return e.cause }

// ErrSingularMatrix indicates a curvature matrix that could not be inverted
// even after the damping retry; fatal for that layer only.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrSingularMatrix struct {
	Damping float64
	cause   error
}

func (e *ErrSingularMatrix) Error() string {
	return fmt.Sprintf("singular curvature matrix (damping %g)", e.Damping)
}

func (e *ErrSingularMatrix) Unwrap() error { return e.cause }

// ErrUnsupportedConfiguration indicates an option outside the supported
// range. It is returned by New before any computation starts.
type ErrUnsupportedConfiguration struct {
	Option string
	Reason string
}

func (e *ErrUnsupportedConfiguration) Error() string {
	return fmt.Sprintf("unsupported configuration: %s: %s", e.Option, e.Reason)
}

// translateError maps subsystem errors into the public error contract.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, hessian.ErrInsufficientCalibration) {
		return fmt.Errorf("%w: %w", ErrInsufficientCalibration, err)
	}

	var sm *hessian.ErrShapeMismatch
	if errors.As(err, &sm) {
		return &ErrShapeMismatch{Expected: sm.Expected, Actual: sm.Actual, cause: err}
	}

	var sg *hessian.ErrSingularMatrix
	if errors.As(err, &sg) {
		return &ErrSingularMatrix{Damping: sg.Damping, cause: err}
	}

	return err
}
