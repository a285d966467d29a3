// Package labchange predicts whether a lab result is unchanged compared to
// the previous measurement of the same component.
package labchange

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/pipeline"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/preprocessing"
	"github.com/YuminosukeSato/medpipe/selection"
)

const (
	// PipelineName identifies the task in provenance headers.
	PipelineName = "LabChangePredictionPipeline"
	// Outcome is the derived label: 1 when the result is unchanged.
	Outcome = "unchanged_yn"
	// DefaultFeatureNew holds the current numeric result in the raw matrix.
	DefaultFeatureNew = "ord_num_value"
	// PercentFeaturesToSelect is the share of features kept by selection.
	PercentFeaturesToSelect = 0.05
)

// AdministrativeColumns never enter the model.
var AdministrativeColumns = []string{
	"pat_id", "order_time", "order_proc_id", "ord_num_value",
	"proc_code", "abnormal_panel", "all_components_normal",
	"num_normal_components", "Birth.pre",
	"Male.preTimeDays", "Female.preTimeDays",
	"RaceWhiteHispanicLatino.preTimeDays",
	"RaceWhiteNonHispanicLatino.preTimeDays",
	"RaceHispanicLatino.preTimeDays",
	"RaceAsian.preTimeDays",
	"RaceBlack.preTimeDays",
	"RacePacificIslander.preTimeDays",
	"RaceNativeAmerican.preTimeDays",
	"RaceOther.preTimeDays",
	"RaceUnknown.preTimeDays",
	"Death.post",
	"Death.postTimeDays",
	"num_components",
}

var dataOverview = []string{
	"Overview",
	"The outcome label is " + Outcome + ".",
	Outcome + " is a boolean indicator which summarizes whether the lab test",
	"result is unchanged compared to the previous measurement.",
	"Each row represents a unique lab panel order.",
	"Each row contains fields summarizing the patient's demographics,",
	"inpatient admit date, prior vitals, and prior lab results.",
	"Lab panel orders were only included if a previous measurement of",
	"the same lab panel has been recorded.",
}

// ChangeParams defines what counts as an unchanged result.
type ChangeParams struct {
	Method     preprocessing.DeltaMethod `koanf:"method" validate:"required,oneof=absolute sd percent"`
	Param      float64                   `koanf:"param" validate:"gte=0"`
	FeatureNew string                    `koanf:"feature_new"`
	// FeatureOld is filled from the component map when empty.
	FeatureOld string `koanf:"feature_old"`
}

// Definition names the change definition, e.g. change_sd_05 for sd 0.5.
func (p ChangeParams) Definition() string {
	param := strings.ReplaceAll(strconv.FormatFloat(p.Param, 'g', -1, 64), ".", "")
	return "change_" + string(p.Method) + "_" + param
}

// Algorithms are trained for every lab panel.
func Algorithms() []string {
	return []string{
		learn.L1LogisticRegression,
		learn.L2LogisticRegression,
		learn.BifurcatedPrefix + learn.L1LogisticRegression,
		learn.BifurcatedPrefix + learn.L2LogisticRegression,
	}
}

// Option adjusts the task.
type Option func(*pipeline.Task)

// WithRemoved drops extra raw columns, e.g. categorical fields the producer
// emits that no model can use.
func WithRemoved(columns ...string) Option {
	return func(t *pipeline.Task) {
		t.Plan.FeaturesToRemove = append(t.Plan.FeaturesToRemove, columns...)
	}
}

// NewTask builds the change-prediction task for one lab panel.
func NewTask(root, lab string, params ChangeParams, components ComponentMap, producer pipeline.Producer, opts ...Option) (pipeline.Task, error) {
	if params.FeatureNew == "" {
		params.FeatureNew = DefaultFeatureNew
	}
	if params.FeatureOld == "" {
		old, err := components.PreviousMeasurement(lab)
		if err != nil {
			return pipeline.Task{}, err
		}
		params.FeatureOld = old
	}
	if params.Param < 0 {
		return pipeline.Task{}, errors.NewValidationError("param", "must be non-negative", params.Param)
	}

	layout := pipeline.NewStandardLayout(root)
	layout.MatrixName = "change-matrix"
	layout.ReportName = "change-prediction"
	layout.Variant = params.Definition()
	layout.DumpName = "change"

	kept := pipeline.Slug(lab) + ".pre"
	task := pipeline.Task{
		Name:   PipelineName,
		Entity: lab,
		Params: []string{
			"method=" + string(params.Method),
			"param=" + strconv.FormatFloat(params.Param, 'g', -1, 64),
			"feature_new=" + params.FeatureNew,
			"feature_old=" + params.FeatureOld,
		},
		Producer: producer,
		Layout:   layout,
		Plan: preprocessing.Plan{
			FeaturesToFilterOn: []preprocessing.RowFilter{{Column: params.FeatureOld, Missing: true}},
			FeaturesToAdd: []preprocessing.DerivedSpec{{
				Kind:      preprocessing.Delta,
				Base:      params.FeatureNew,
				Previous:  params.FeatureOld,
				Method:    params.Method,
				Threshold: params.Param,
				Name:      Outcome,
			}},
			FeaturesToRemove:        append([]string(nil), AdministrativeColumns...),
			FeaturesToKeep:          []string{kept},
			OutcomeLabel:            Outcome,
			SelectionProblem:        model.Classification,
			SelectionAlgorithm:      string(selection.RecursiveElimination),
			PercentFeaturesToSelect: PercentFeaturesToSelect,
			DataOverview:            dataOverview,
		},
		Hyperparams: learn.Hyperparams{
			MaxIter:             learn.DefaultMaxIter,
			Bifurcator:          kept,
			BifurcationStrategy: learn.StrategyEqual,
			BifurcationValue:    0,
		},
	}
	for _, opt := range opts {
		opt(&task)
	}
	if params.FeatureNew != DefaultFeatureNew {
		task.Plan.FeaturesToRemove = append(task.Plan.FeaturesToRemove, params.FeatureNew)
	}
	return task, task.Validate()
}
