package layerpress

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordCapture is called after each layer's calibration capture phase.
	// batches is the number of batches accumulated, duration the total time,
	// err is nil if successful.
	RecordCapture(batches int, duration time.Duration, err error)

	// RecordSolve is called after each curvature inverse solve.
	RecordSolve(duration time.Duration, err error)

	// RecordCompress is called after each column-wise compression pass.
	RecordCompress(duration time.Duration, err error)

	// RecordCommit is called after each weight write-back (including
	// artifact persistence when configured).
	RecordCommit(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCapture(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSolve(time.Duration, error)        {}
func (NoopMetricsCollector) RecordCompress(time.Duration, error)     {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CaptureCount       atomic.Int64
	CaptureErrors      atomic.Int64
	CaptureBatches     atomic.Int64
	CaptureTotalNanos  atomic.Int64
	SolveCount         atomic.Int64
	SolveErrors        atomic.Int64
	CompressCount      atomic.Int64
	CompressErrors     atomic.Int64
	CompressTotalNanos atomic.Int64
	CommitCount        atomic.Int64
	CommitErrors       atomic.Int64
}

// RecordCapture implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCapture(batches int, duration time.Duration, err error) {
	b.CaptureCount.Add(1)
	b.CaptureBatches.Add(int64(batches))
	b.CaptureTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CaptureErrors.Add(1)
	}
}

// RecordSolve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSolve(duration time.Duration, err error) {
	b.SolveCount.Add(1)
	if err != nil {
		b.SolveErrors.Add(1)
	}
}

// RecordCompress implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompress(duration time.Duration, err error) {
	b.CompressCount.Add(1)
	b.CompressTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CompressErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(duration time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CaptureCount:     b.CaptureCount.Load(),
		CaptureErrors:    b.CaptureErrors.Load(),
		CaptureBatches:   b.CaptureBatches.Load(),
		CaptureAvgNanos:  avgNanos(b.CaptureTotalNanos.Load(), b.CaptureCount.Load()),
		SolveCount:       b.SolveCount.Load(),
		SolveErrors:      b.SolveErrors.Load(),
		CompressCount:    b.CompressCount.Load(),
		CompressErrors:   b.CompressErrors.Load(),
		CompressAvgNanos: avgNanos(b.CompressTotalNanos.Load(), b.CompressCount.Load()),
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CaptureCount     int64
	CaptureErrors    int64
	CaptureBatches   int64
	CaptureAvgNanos  int64
	SolveCount       int64
	SolveErrors      int64
	CompressCount    int64
	CompressErrors   int64
	CompressAvgNanos int64
	CommitCount      int64
	CommitErrors     int64
}
