// Package layerpress provides layer-wise post-training compression of
// trained model weights for Go.
//
// Layerpress compresses one dense layer at a time using second-order
// calibration statistics: each column is quantized (or pruned) and the
// error it introduces is propagated into the not-yet-processed columns via
// the inverse of the calibration curvature matrix. Layers outside the
// supported shape keep their weights untouched.
//
// # Quick Start
//
//	ctx := context.Background()
//
//	// runner feeds each layer's calibration activations (your model's
//	// forward pass over a calibration set).
//	cmp, _ := layerpress.New(runner,
//	    layerpress.WithBitWidth(4),
//	    layerpress.WithGrouping(codec.PerGroup(128)),
//	)
//	report, _ := cmp.Run(ctx, layers)
//	fmt.Println(report.Committed(), "layers committed")
//
// # Quantization vs. Pruning
//
//	// Quantize to a 3-bit affine grid, parameters shared per output row:
//	layerpress.New(runner, layerpress.WithBitWidth(3), layerpress.WithGrouping(codec.PerChannel()))
//
//	// Zero half of each column instead, keeping the most salient weights:
//	layerpress.New(runner, layerpress.WithPruneRatio(0.5))
//
// # Scheduling
//
// By default layers are independent and compressed in parallel, bounded by
// WithMaxParallel. WithSequential processes layers in order so each layer's
// calibration observes the already-compressed outputs of its predecessors:
//
//	layerpress.New(runner, layerpress.WithSequential())
//
// # Artifacts
//
// With a store configured, each committed layer's packed representation
// (bit-packed levels and grid parameters, or prune mask) is persisted:
//
//	store, _ := artifact.NewLocalStore("./artifacts")
//	layerpress.New(runner, layerpress.WithArtifactStore(store))
//
//	s3Store, _ := s3.New(ctx, "my-bucket", "artifacts/")
//	layerpress.New(runner, layerpress.WithArtifactStore(s3Store))
//
// # Key Features
//
//   - Curvature-compensated quantization (2-8 bit affine grids)
//   - Per-tensor, per-channel and per-group parameter sharing
//   - Magnitude-times-curvature pruning with exact-zero masks
//   - Streaming calibration (bounded memory, order-independent)
//   - Best-effort or fail-fast runs with per-layer reports
//   - Artifact persistence (local/S3/MinIO, zstd or lz4 framing)
package layerpress
