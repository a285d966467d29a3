// Package log defines standard attribute keys for pipeline operations.
//
// Using these keys across the matrix store, transform builder, selector and
// orchestrator keeps run logs filterable by entity, stage and artifact path.
// Keys follow a hierarchical naming convention (e.g. "pipeline.stage",
// "data.samples").

package log

// Pipeline context
const (
	// RunIDKey carries the uuid assigned to one orchestrator run.
	RunIDKey = "pipeline.run_id"

	// EntityKey identifies the prediction task being run.
	// Examples: "lab.bnp", "discharge_disposition"
	EntityKey = "pipeline.entity"

	// StageKey names the pipeline state being entered or left.
	// Values: the Stage* constants below.
	StageKey = "pipeline.stage"

	// AlgorithmKey names the learning algorithm being trained or analyzed.
	AlgorithmKey = "pipeline.algorithm"

	// ComponentKey identifies which package is emitting the record.
	ComponentKey = "ml.component"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "fit_transform", "replay"
	OperationKey = "ml.operation"

	// ModelNameKey identifies the type of estimator.
	ModelNameKey = "model.name"
)

// Artifacts and cache
const (
	// MatrixPathKey is the path of a matrix file being read or written.
	MatrixPathKey = "matrix.path"

	// ReportPathKey is the path of an analysis report or summary.
	ReportPathKey = "report.path"

	// CacheHitKey records whether a checkpoint was served from disk.
	CacheHitKey = "cache.hit"

	// CheckpointKey names the cache checkpoint ("raw", "processed", "model").
	CheckpointKey = "cache.checkpoint"
)

// Data shape
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of feature columns.
	FeaturesKey = "data.features"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// RemovedKey lists columns removed by a step.
	RemovedKey = "data.removed"

	// AddedKey lists columns added by a step.
	AddedKey = "data.added"

	// ClassCountsKey carries the per-class sample counts of an outcome.
	ClassCountsKey = "data.class_counts"
)

// Performance and configuration
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// IterationKey records the iteration number of an iterative solver.
	IterationKey = "training.iteration"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// RowsKey records the number of rows requested from a producer.
	RowsKey = "config.rows"
)

// Error context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationReplay       = "replay"

	StageRawPending = "RAW_PENDING"
	StageRawReady   = "RAW_READY"
	StageSplit      = "SPLIT"
	StageSelected   = "SELECTED"
	StageTrained    = "TRAINED"
	StageAnalyzed   = "ANALYZED"
)
