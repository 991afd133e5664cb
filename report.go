package layerpress

import "time"

// LayerState tracks where a layer session got to.
type LayerState uint8

const (
	// StatePending means the session has not started.
	StatePending LayerState = iota
	// StateCapturing means calibration batches are being accumulated.
	StateCapturing
	// StateCompressing means the curvature solve or the column-wise pass is
	// running; the layer's weights are still the originals.
	StateCompressing
	// StateCommitted means compressed weights have been written back.
	StateCommitted
	// StateFailed means the session aborted; the layer's weights are
	// unmodified.
	StateFailed
)

// String implements fmt.Stringer.
func (s LayerState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCapturing:
		return "capturing"
	case StateCompressing:
		return "compressing"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LayerReport records the outcome of a single layer session.
type LayerReport struct {
	// Name is the layer's identifier.
	Name string

	// State is the terminal state: StateCommitted or StateFailed.
	State LayerState

	// Err is the error that failed the session, nil on success.
	Err error

	// ReconstructionError is the accumulated curvature-weighted squared
	// error of the compressed weights.
	ReconstructionError float64

	// DeadCols is the number of input columns with no calibration signal.
	DeadCols int

	// PrunedWeights is the number of weights zeroed in pruning mode.
	PrunedWeights int

	// Batches and CapturedRows describe the calibration data volume.
	Batches      int
	CapturedRows int

	// Duration covers capture through commit.
	Duration time.Duration
}

// Report summarizes a compression run across all layers, in input order.
type Report struct {
	Layers []LayerReport
}

// Committed returns the number of layers that committed compressed weights.
func (r *Report) Committed() int {
	n := 0
	for i := range r.Layers {
		if r.Layers[i].State == StateCommitted {
			n++
		}
	}
	return n
}

// Failed returns the reports of layers that did not commit.
func (r *Report) Failed() []LayerReport {
	var failed []LayerReport
	for i := range r.Layers {
		if r.Layers[i].State == StateFailed {
			failed = append(failed, r.Layers[i])
		}
	}
	return failed
}
