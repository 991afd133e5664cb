package layerpress

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/layerpress/artifact"
	"github.com/hupe1980/layerpress/codec"
	"github.com/hupe1980/layerpress/resource"
)

type options struct {
	bitWidth            int
	grouping            codec.Grouping
	damping             float64
	blockSize           int
	pruneRatio          float64
	sequential          bool
	failFast            bool
	maxParallel         int
	logger              *Logger
	metricsCollector    MetricsCollector
	artifactStore       artifact.Store
	artifactCompression artifact.Compression
	resources           *resource.Controller
}

// Option configures Compressor behavior.
type Option func(*options)

// WithBitWidth configures the quantization bit width (2-8).
// Ignored in pruning mode.
func WithBitWidth(bits int) Option {
	return func(o *options) {
		o.bitWidth = bits
	}
}

// WithGrouping configures how quantization parameters are shared:
// codec.PerTensor(), codec.PerChannel() or codec.PerGroup(size).
func WithGrouping(g codec.Grouping) Option {
	return func(o *options) {
		o.grouping = g
	}
}

// WithDamping configures the diagonal damping fraction added before the
// curvature matrix is inverted, as a multiple of its mean diagonal.
// Must be in (0, 1). Larger values are more robust but compensate less
// accurately.
func WithDamping(damping float64) Option {
	return func(o *options) {
		o.damping = damping
	}
}

// WithBlockSize configures how many columns are processed per propagation
// block. Smaller blocks track the error slightly more closely; larger blocks
// are faster. Must be >= 1.
func WithBlockSize(blockSize int) Option {
	return func(o *options) {
		o.blockSize = blockSize
	}
}

// WithPruneRatio switches the compressor to pruning mode: the given fraction
// of each column (ranked by curvature-scaled saliency) is set to exact zero
// instead of quantizing to a grid. Must be in [0, 1).
func WithPruneRatio(ratio float64) Option {
	return func(o *options) {
		o.pruneRatio = ratio
	}
}

// WithSequential makes each layer's calibration capture observe the
// already-compressed outputs of earlier layers: layer i must commit before
// layer i+1 capture begins. This disables cross-layer parallelism but keeps
// the calibration distribution consistent with the compressed model.
func WithSequential() Option {
	return func(o *options) {
		o.sequential = true
	}
}

// WithFailFast aborts the whole run on the first per-layer error.
// The default is best-effort: failed layers are recorded in the report with
// their weights left unmodified, and the run continues.
func WithFailFast() Option {
	return func(o *options) {
		o.failFast = true
	}
}

// WithMaxParallel bounds the number of layers compressed concurrently in
// independent mode. Zero means GOMAXPROCS. Ignored in sequential mode.
func WithMaxParallel(n int) Option {
	return func(o *options) {
		o.maxParallel = n
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithArtifactStore persists each committed layer's packed artifact
// (bit-packed levels and grid parameters, or prune mask) under the layer
// name. Pass nil to disable persistence.
func WithArtifactStore(store artifact.Store) Option {
	return func(o *options) {
		o.artifactStore = store
	}
}

// WithArtifactCompression selects the artifact framing algorithm.
// The default is artifact.CompressionZstd.
func WithArtifactCompression(c artifact.Compression) Option {
	return func(o *options) {
		o.artifactCompression = c
	}
}

// WithResourceController bounds calibration memory and artifact IO across
// concurrent layer sessions.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		bitWidth:            4,
		grouping:            codec.PerChannel(),
		damping:             0.01,
		blockSize:           128,
		maxParallel:         0,
		logger:              NoopLogger(),
		metricsCollector:    NoopMetricsCollector{},
		artifactCompression: artifact.CompressionZstd,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// validate rejects unsupported configurations before any computation starts.
func (o *options) validate() error {
	if o.bitWidth < codec.MinBits || o.bitWidth > codec.MaxBits {
		return &ErrUnsupportedConfiguration{
			Option: "bit width",
			Reason: fmt.Sprintf("%d outside supported range [%d,%d]", o.bitWidth, codec.MinBits, codec.MaxBits),
		}
	}
	if err := o.grouping.Validate(); err != nil {
		return &ErrUnsupportedConfiguration{
			Option: "grouping",
			Reason: err.Error(),
		}
	}
	if o.damping <= 0 || o.damping >= 1 {
		return &ErrUnsupportedConfiguration{
			Option: "damping",
			Reason: fmt.Sprintf("%g outside (0,1)", o.damping),
		}
	}
	if o.blockSize < 1 {
		return &ErrUnsupportedConfiguration{
			Option: "block size",
			Reason: fmt.Sprintf("%d must be >= 1", o.blockSize),
		}
	}
	if o.pruneRatio < 0 || o.pruneRatio >= 1 {
		return &ErrUnsupportedConfiguration{
			Option: "prune ratio",
			Reason: fmt.Sprintf("%g outside [0,1)", o.pruneRatio),
		}
	}
	if o.maxParallel < 0 {
		return &ErrUnsupportedConfiguration{
			Option: "max parallel",
			Reason: fmt.Sprintf("%d must be >= 0", o.maxParallel),
		}
	}
	return nil
}
