// Package config loads run configuration from defaults, a YAML file,
// MEDPIPE_* environment variables and command line flags, in that order of
// precedence, and turns it into a pipeline task.
package config

import (
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/YuminosukeSato/medpipe/core/model"
	"github.com/YuminosukeSato/medpipe/extract"
	"github.com/YuminosukeSato/medpipe/labchange"
	"github.com/YuminosukeSato/medpipe/learn"
	"github.com/YuminosukeSato/medpipe/pipeline"
	"github.com/YuminosukeSato/medpipe/pkg/errors"
	"github.com/YuminosukeSato/medpipe/preprocessing"
	"github.com/YuminosukeSato/medpipe/selection"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates sections, e.g. MEDPIPE_RUN__SEED sets run.seed.
const EnvPrefix = "MEDPIPE_"

// Task kinds.
const (
	KindPlan      = "plan"
	KindLabChange = "labchange"
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceSQLite    = "sqlite"
)

// Config is the complete run configuration.
type Config struct {
	Run         RunConfig          `koanf:"run"`
	Task        TaskConfig         `koanf:"task"`
	Plan        preprocessing.Plan `koanf:"plan"`
	Hyperparams learn.Hyperparams  `koanf:"hyperparams"`
	Source      SourceConfig       `koanf:"source"`
	Log         LogConfig          `koanf:"log"`
}

// RunConfig holds the inputs of one orchestrator run.
type RunConfig struct {
	Name            string   `koanf:"name" validate:"required"`
	Entity          string   `koanf:"entity" validate:"required"`
	Rows            int      `koanf:"rows" validate:"gt=0"`
	Seed            int64    `koanf:"seed"`
	UseCache        bool     `koanf:"use_cache"`
	DataRoot        string   `koanf:"data_root" validate:"required"`
	TestFraction    float64  `koanf:"test_fraction" validate:"gt=0,lt=1"`
	Algorithms      []string `koanf:"algorithms" validate:"dive,required"`
	Confidence      float64  `koanf:"confidence" validate:"gt=0,lt=1"`
	DumpModels      bool     `koanf:"dump_models"`
	SummaryWorkbook bool     `koanf:"summary_workbook"`
}

// TaskConfig selects between a plan given in the file and the lab change task.
type TaskConfig struct {
	Kind         string                 `koanf:"kind" validate:"oneof=plan labchange"`
	Change       labchange.ChangeParams `koanf:"change" validate:"-"`
	ComponentMap string                 `koanf:"component_map"`
	// Remove lists extra raw columns dropped by the lab change task.
	Remove []string `koanf:"remove"`
}

// SourceConfig describes where raw matrices come from.
type SourceConfig struct {
	Kind  string   `koanf:"kind" validate:"oneof=synthetic sqlite"`
	DSN   string   `koanf:"dsn" validate:"required_if=Kind sqlite"`
	Query string   `koanf:"query" validate:"required_if=Kind sqlite"`
	Args  []string `koanf:"args" validate:"dive,oneof=entity rows seed"`

	Features    int     `koanf:"features" validate:"gte=0"`
	Informative int     `koanf:"informative" validate:"gte=0"`
	MissingRate float64 `koanf:"missing_rate" validate:"gte=0,lt=1"`
	Previous    string  `koanf:"previous"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"entity":     "run.entity",
	"rows":       "run.rows",
	"seed":       "run.seed",
	"data-root":  "run.data_root",
	"algorithms": "run.algorithms",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"run.name":             "PredictionPipeline",
		"run.seed":             selection.DefaultSeed,
		"run.use_cache":        true,
		"run.data_root":        ".",
		"run.test_fraction":    preprocessing.DefaultTestFraction,
		"run.confidence":       0.95,
		"run.dump_models":      true,
		"run.summary_workbook": true,
		"task.kind":            KindPlan,
		"source.kind":          SourceSynthetic,
		"source.features":      20,
		"source.informative":   4,
		"source.missing_rate":  0.05,
		"log.level":            "info",
		"log.format":           "console",
	}
}

// Load reads the configuration. path and flags may both be empty.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			if f.Name == "no-cache" {
				noCache, _ := flags.GetBool(f.Name)
				return "run.use_cache", !noCache
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and, for plan tasks, the plan itself.
func (c *Config) Validate() error {
	v := validator.New()
	for _, section := range []interface{}{c.Run, c.Task, c.Source, c.Log} {
		if err := v.Struct(section); err != nil {
			return validationError(err)
		}
	}
	switch c.Task.Kind {
	case KindPlan:
		if err := v.Struct(c.Plan); err != nil {
			return validationError(err)
		}
		if err := c.Plan.Validate(); err != nil {
			return err
		}
	case KindLabChange:
		if err := v.Struct(c.Task.Change); err != nil {
			return validationError(err)
		}
	}
	if c.Source.Kind == SourceSynthetic && c.Source.Informative > c.Source.Features {
		return errors.NewValidationError("source.informative", "exceeds source.features", c.Source.Informative)
	}
	return nil
}

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return errors.NewValidationError(fe.Namespace(), "failed on '"+fe.Tag()+"'", fe.Value())
	}
	return errors.Wrap(err, "validate config")
}

// Producer builds the raw matrix producer. The returned closer releases the
// database handle of SQL sources and is never nil.
func (c *Config) Producer() (pipeline.Producer, io.Closer, error) {
	switch c.Source.Kind {
	case SourceSQLite:
		db, err := extract.OpenSQLite(c.Source.DSN)
		if err != nil {
			return nil, nil, err
		}
		p, err := extract.NewSQLProducer(db, c.Source.Query, c.Source.Args...)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return p, db, nil
	default:
		s := extract.NewSynthetic()
		s.Features = c.Source.Features
		s.Informative = c.Source.Informative
		s.MissingRate = c.Source.MissingRate
		s.Previous = c.Source.Previous
		return s, nopCloser{}, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// BuildTask builds the pipeline task around producer.
func (c *Config) BuildTask(producer pipeline.Producer) (pipeline.Task, error) {
	if c.Task.Kind == KindLabChange {
		components := labchange.ComponentMap{}
		if c.Task.ComponentMap != "" {
			loaded, err := labchange.LoadComponentMap(c.Task.ComponentMap)
			if err != nil {
				return pipeline.Task{}, err
			}
			components = loaded
		}
		return labchange.NewTask(c.Run.DataRoot, c.Run.Entity, c.Task.Change, components, producer,
			labchange.WithRemoved(c.Task.Remove...))
	}

	task := pipeline.Task{
		Name:        c.Run.Name,
		Entity:      c.Run.Entity,
		Producer:    producer,
		Layout:      pipeline.NewStandardLayout(c.Run.DataRoot),
		Plan:        c.Plan,
		Hyperparams: c.Hyperparams,
	}
	return task, task.Validate()
}

// PipelineConfig returns the orchestrator configuration. Without configured
// algorithms, the defaults of the task kind and selection problem apply.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		UseCache:           c.Run.UseCache,
		Seed:               c.Run.Seed,
		NumRows:            c.Run.Rows,
		TestFraction:       c.Run.TestFraction,
		Algorithms:         c.algorithms(),
		ConfidenceInterval: c.Run.Confidence,
		DumpModels:         c.Run.DumpModels,
		SummaryWorkbook:    c.Run.SummaryWorkbook,
	}
}

func (c *Config) algorithms() []string {
	if len(c.Run.Algorithms) > 0 {
		return c.Run.Algorithms
	}
	if c.Task.Kind == KindLabChange {
		return labchange.Algorithms()
	}
	if c.Plan.SelectionProblem == model.Regression {
		return []string{learn.LinearRegression, learn.RidgeRegression}
	}
	return []string{learn.L1LogisticRegression, learn.L2LogisticRegression}
}
