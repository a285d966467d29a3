// Package medpipe runs supervised-learning pipelines over clinical feature
// matrices, one entity (for example a lab panel) at a time.
//
// A run extracts a raw matrix, applies a declarative transform plan, splits
// train and test sets, selects features, trains one model per algorithm and
// writes evaluation reports. The raw and processed matrices are cached as
// tab-separated files with a provenance header, so repeated runs with the
// same inputs skip extraction and processing.
//
// # Quick Start
//
//	medpipe run --config plan.yaml --entity LABK --rows 5000
//	medpipe inspect data/LABK/LABK-matrix-5000-episodes-processed.tab
//
// Or from Go:
//
//	cfg, err := config.Load("plan.yaml", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	producer, closer, err := cfg.Producer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer closer.Close()
//	task, err := cfg.BuildTask(producer)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	o, err := pipeline.New(task, cfg.PipelineConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := o.Run(ctx)
//
// # Packages
//
//   - pipeline: orchestrator state machine, cache layout and run metrics
//   - matrixio: matrix store (tab-separated files with provenance headers)
//   - preprocessing: transform plan, derived columns, imputation and splitting
//   - selection: recursive feature elimination and univariate selection
//   - learn: algorithm registry, bifurcated models and model dumps
//   - analysis: classifier and regressor reports, charts and workbooks
//   - extract: raw matrix producers (SQL and synthetic)
//   - labchange: lab result change prediction task
//   - config: layered configuration loading
//   - linear, sklearn/linear_model: linear and logistic regression
//   - metrics: evaluation metrics (ROC, precision-recall, R², MSE, MAE)
//   - core/table, core/model, core/parallel: shared data and model types
//   - pkg/errors, pkg/log: error types, warnings and structured logging
package medpipe
