package layerpress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/layerpress/artifact"
	"github.com/hupe1980/layerpress/codec"
	"github.com/hupe1980/layerpress/core"
	"github.com/hupe1980/layerpress/hessian"
	"github.com/hupe1980/layerpress/obq"
)

// Layer is one compressible unit of a model: a dense weight matrix of shape
// OutFeatures x InFeatures together with a stable name. Weights returns the
// live matrix; the compressor mutates it in place only on commit.
type Layer interface {
	Name() string
	InFeatures() int
	OutFeatures() int
	Weights() *core.Matrix
}

// CalibrationRunner feeds calibration activations to a layer session. The
// implementation runs the model forward over its calibration set and streams
// each batch of inputs reaching layer (shape batch x InFeatures) into sink.
//
// In sequential mode Capture for layer i+1 is called only after layer i has
// committed, so the activations reflect the already-compressed predecessors.
type CalibrationRunner interface {
	Capture(ctx context.Context, layer Layer, sink func(batch *core.Matrix) error) error
}

// Compressor orchestrates layer-wise compression runs.
type Compressor struct {
	runner CalibrationRunner
	opts   options
}

// New creates a Compressor. The runner supplies calibration activations per
// layer; options select quantization vs. pruning and tune the algorithm.
func New(runner CalibrationRunner, optFns ...Option) (*Compressor, error) {
	if runner == nil {
		return nil, ErrNilRunner
	}

	opts := applyOptions(optFns)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &Compressor{
		runner: runner,
		opts:   opts,
	}, nil
}

// Run compresses the given layers and returns a per-layer report. The report
// lists layers in input order regardless of scheduling.
//
// In the default best-effort mode a failed layer keeps its original weights
// and the run continues; Run returns a nil error as long as the run itself
// completed. With WithFailFast the first layer error cancels outstanding
// sessions and is returned.
func (c *Compressor) Run(ctx context.Context, layers []Layer) (*Report, error) {
	report := &Report{
		Layers: make([]LayerReport, len(layers)),
	}
	for i, layer := range layers {
		report.Layers[i] = LayerReport{Name: layer.Name(), State: StatePending}
	}

	if c.opts.sequential {
		return c.runSequential(ctx, layers, report)
	}
	return c.runIndependent(ctx, layers, report)
}

func (c *Compressor) runSequential(ctx context.Context, layers []Layer, report *Report) (*Report, error) {
	for i, layer := range layers {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		c.compressLayer(ctx, layer, &report.Layers[i])

		if err := report.Layers[i].Err; err != nil {
			if c.opts.failFast {
				return report, fmt.Errorf("layer %q: %w", layer.Name(), err)
			}
			c.opts.logger.LogSkip(ctx, layer.Name(), err)
		}
	}
	return report, nil
}

func (c *Compressor) runIndependent(ctx context.Context, layers []Layer, report *Report) (*Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := newWorkerPool(c.opts.maxParallel)
	defer pool.close()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, layer := range layers {
		i, layer := i, layer

		wg.Add(1)
		err := pool.submit(runCtx, func() {
			defer wg.Done()

			c.compressLayer(runCtx, layer, &report.Layers[i])

			if err := report.Layers[i].Err; err != nil {
				if c.opts.failFast {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("layer %q: %w", layer.Name(), err)
					}
					mu.Unlock()
					cancel()
				} else {
					c.opts.logger.LogSkip(runCtx, layer.Name(), err)
				}
			}
		})
		if err != nil {
			// Pool rejected the task: the run context was canceled by an
			// earlier fail-fast error. Mark the layer as not attempted.
			wg.Done()
			mu.Lock()
			report.Layers[i].State = StateFailed
			report.Layers[i].Err = err
			mu.Unlock()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return report, firstErr
	}
	return report, nil
}

// compressLayer runs one full layer session: capture, solve, column-wise
// compression, commit. On any error the layer's weights are untouched and
// lr records the failure.
func (c *Compressor) compressLayer(ctx context.Context, layer Layer, lr *LayerReport) {
	start := time.Now()
	defer func() {
		lr.Duration = time.Since(start)
	}()

	w := layer.Weights()
	if w == nil {
		lr.State = StateFailed
		lr.Err = &ErrShapeMismatch{Expected: layer.InFeatures(), Actual: 0}
		return
	}
	if w.Rows() != layer.OutFeatures() || w.Cols() != layer.InFeatures() {
		lr.State = StateFailed
		lr.Err = &ErrShapeMismatch{Expected: layer.InFeatures(), Actual: w.Cols()}
		return
	}

	// Capture phase: stream calibration batches into the accumulator.
	lr.State = StateCapturing
	captureStart := time.Now()

	acc := hessian.NewAccumulator(layer.InFeatures())
	err := c.runner.Capture(ctx, layer, func(batch *core.Matrix) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := batch.SizeBytes()
		if err := c.opts.resources.AcquireMemory(ctx, size); err != nil {
			return err
		}
		defer c.opts.resources.ReleaseMemory(size)

		if err := acc.Accumulate(batch); err != nil {
			return err
		}

		lr.Batches++
		lr.CapturedRows += batch.Rows()
		return nil
	})

	var curv *hessian.Curvature
	if err == nil {
		curv, err = acc.Finalize()
	}
	err = translateError(err)
	c.opts.metricsCollector.RecordCapture(lr.Batches, time.Since(captureStart), err)
	c.opts.logger.LogCapture(ctx, layer.Name(), lr.Batches, lr.CapturedRows, err)
	if err != nil {
		lr.State = StateFailed
		lr.Err = err
		return
	}

	// Solve phase: damped inverse of the calibration curvature.
	lr.State = StateCompressing
	solveStart := time.Now()

	inv, err := hessian.Solve(curv, c.opts.damping)
	err = translateError(err)
	effDamping := c.opts.damping
	if err == nil {
		lr.DeadCols = int(inv.Dead().GetCardinality())
		effDamping = inv.Damping()
	}
	c.opts.metricsCollector.RecordSolve(time.Since(solveStart), err)
	c.opts.logger.LogSolve(ctx, layer.Name(), effDamping, lr.DeadCols, err)
	if err != nil {
		lr.State = StateFailed
		lr.Err = err
		return
	}

	// Compression phase: column-wise pass over a working copy, so a failure
	// here leaves the layer's weights untouched.
	compressStart := time.Now()
	work := w.Clone()

	var (
		cdc    obq.Codec
		quant  *obq.Quantizer
		pruner *obq.Pruner
	)
	if c.opts.pruneRatio > 0 {
		pruner = obq.NewPruner(c.opts.pruneRatio, work.Rows(), work.Cols())
		cdc = pruner
	} else {
		spec, derr := codec.Derive(work, c.opts.bitWidth, c.opts.grouping)
		if derr != nil {
			c.opts.metricsCollector.RecordCompress(time.Since(compressStart), derr)
			c.opts.logger.LogCompress(ctx, layer.Name(), 0, derr)
			lr.State = StateFailed
			lr.Err = derr
			return
		}
		quant = obq.NewQuantizer(spec, work)
		cdc = quant
	}

	res, err := obq.Compress(work, inv, cdc, c.opts.blockSize)
	if err == nil {
		lr.ReconstructionError = res.Err
	}
	c.opts.metricsCollector.RecordCompress(time.Since(compressStart), err)
	c.opts.logger.LogCompress(ctx, layer.Name(), lr.ReconstructionError, err)
	if err != nil {
		lr.State = StateFailed
		lr.Err = err
		return
	}
	if pruner != nil {
		lr.PrunedWeights = int(pruner.PrunedCount())
	}

	// Commit phase: write back compressed weights, then persist the artifact
	// if a store is configured.
	commitStart := time.Now()
	err = w.CopyFrom(work)
	if err == nil && c.opts.artifactStore != nil {
		err = c.persistArtifact(ctx, layer, quant, pruner, lr)
	}
	c.opts.metricsCollector.RecordCommit(time.Since(commitStart), err)
	c.opts.logger.LogCommit(ctx, layer.Name(), err)
	if err != nil {
		lr.State = StateFailed
		lr.Err = err
		return
	}

	lr.State = StateCommitted
}

// persistArtifact packs the layer's compressed representation and writes it
// to the configured store under "<layer>.lpa".
func (c *Compressor) persistArtifact(ctx context.Context, layer Layer, quant *obq.Quantizer, pruner *obq.Pruner, lr *LayerReport) error {
	var (
		art *artifact.Artifact
		err error
	)
	if pruner != nil {
		art = artifact.PackPruned(layer.Name(), layer.OutFeatures(), layer.InFeatures(), pruner.Mask(), lr.ReconstructionError)
	} else {
		art, err = artifact.PackQuantized(layer.Name(), layer.OutFeatures(), layer.InFeatures(), quant.Spec(), quant.Levels(), lr.ReconstructionError)
		if err != nil {
			return err
		}
	}

	data, err := art.Encode(c.opts.artifactCompression)
	if err != nil {
		return err
	}

	name := layer.Name() + ".lpa"
	if err := c.opts.resources.AcquireIO(ctx, len(data)); err != nil {
		return err
	}

	err = c.opts.artifactStore.Put(ctx, name, data)
	c.opts.logger.LogArtifact(ctx, layer.Name(), name, len(data), err)
	return err
}
