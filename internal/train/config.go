// Package train trains KAN stacks on MNIST and runs the post-training quantization study:
// fit, save, dynamic int8 quantization, evaluation and timing of both models.
package train

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/nn"
)

// Config holds every knob of a training run. Zero values are not defaults: start from
// DefaultConfig or LoadConfig.
type Config struct {
	// Model.
	Widths         []int      `yaml:"widths"`
	GridSize       int        `yaml:"grid_size"`
	SplineOrder    int        `yaml:"spline_order"`
	GridRange      [2]float64 `yaml:"grid_range"`
	BaseActivation string     `yaml:"base_activation"`
	PostProcess    string     `yaml:"post_process"`
	SplineScaler   bool       `yaml:"spline_scaler"`
	Init           string     `yaml:"init"`

	// Optimization.
	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	EvalBatchSize int     `yaml:"eval_batch_size"`
	Optimizer     string  `yaml:"optimizer"` // "adamw" or "sgd"
	LR            float64 `yaml:"lr"`
	WeightDecay   float64 `yaml:"weight_decay"`
	Momentum      float64 `yaml:"momentum"` // SGD only
	Gamma         float64 `yaml:"gamma"`    // ExponentialLR decay per epoch

	// Seeds: InitSeed drives parameter initialization, ShuffleSeed the batch order.
	InitSeed    uint64 `yaml:"init_seed"`
	ShuffleSeed uint64 `yaml:"shuffle_seed"`

	// Data. With Synthetic > 0, that many synthetic samples replace MNIST.
	DataDir    string `yaml:"data_dir"`
	MaxSamples int    `yaml:"max_samples"`
	Synthetic  int    `yaml:"synthetic"`

	// Outputs.
	OutputDir     string `yaml:"output_dir"`
	MetricsFile   string `yaml:"metrics_file"`   // JSON lines; empty disables
	CheckpointDir string `yaml:"checkpoint_dir"` // per-epoch checkpoints; empty disables
	HalfPrecision bool   `yaml:"half_precision"` // save the float model as float16
}

// DefaultConfig returns the reference MNIST run: a 784-64-10 stack, grid 5, order 3, trained
// for 15 epochs with AdamW (lr 1e-3, weight decay 1e-5) and ExponentialLR(0.85).
func DefaultConfig() Config {
	return Config{
		Widths:         []int{784, 64, 10},
		GridSize:       5,
		SplineOrder:    3,
		GridRange:      [2]float64{-1, 1},
		BaseActivation: nn.SiLU.String(),
		PostProcess:    kan.PostNone.String(),
		SplineScaler:   true,
		Init:           "kaiming_uniform",
		Epochs:         15,
		BatchSize:      64,
		EvalBatchSize:  64,
		Optimizer:      "adamw",
		LR:             1e-3,
		WeightDecay:    1e-5,
		Momentum:       0.9,
		Gamma:          0.85,
		InitSeed:       kan.DefaultSeed,
		ShuffleSeed:    kan.DefaultSeed,
		DataDir:        "./data",
		OutputDir:      ".",
	}
}

// LoadConfig reads a YAML file over DefaultConfig: keys absent from the file keep their
// default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	//nolint:gosec // G304: config path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "failed to write config")
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if _, err := c.LayerConfigs(); err != nil {
		return err
	}
	if _, err := c.KANOptions(); err != nil {
		return err
	}
	switch {
	case c.Epochs <= 0:
		return errors.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0 || c.EvalBatchSize <= 0:
		return errors.Errorf("batch sizes must be positive, got %d and %d", c.BatchSize, c.EvalBatchSize)
	case c.LR <= 0:
		return errors.Errorf("learning rate must be positive, got %g", c.LR)
	case c.Gamma <= 0 || c.Gamma > 1:
		return errors.Errorf("gamma must be in (0, 1], got %g", c.Gamma)
	case c.Optimizer != "adamw" && c.Optimizer != "sgd":
		return errors.Errorf("unknown optimizer %q", c.Optimizer)
	}
	if c.Widths[len(c.Widths)-1] < 2 {
		return errors.Errorf("classifier needs at least 2 outputs, got %d", c.Widths[len(c.Widths)-1])
	}
	return nil
}

// LayerConfigs returns the stack configuration.
func (c Config) LayerConfigs() ([]kan.LayerConfig, error) {
	configs, err := kan.UniformConfigs(c.Widths, c.GridSize, c.SplineOrder)
	if err != nil {
		return nil, err
	}
	for _, lc := range configs {
		if err := lc.Validate(); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// KANOptions returns the stack options. The random source is left nil: NewStack seeds it.
func (c Config) KANOptions() (kan.Options, error) {
	opts := kan.DefaultOptions()
	var err error
	if opts.BaseActivation, err = nn.ParseActivation(c.BaseActivation); err != nil {
		return opts, errors.Wrapf(kan.ErrConfiguration, "base_activation: %v", err)
	}
	if opts.PostProcess, err = kan.ParsePostProcess(c.PostProcess); err != nil {
		return opts, err
	}
	if opts.Init, err = nn.InitializerByName(c.Init); err != nil {
		return opts, errors.Wrapf(kan.ErrConfiguration, "init: %v", err)
	}
	opts.GridRange = c.GridRange
	opts.SplineScaler = c.SplineScaler
	if _, err := kan.BuildGrid(c.GridRange[0], c.GridRange[1], c.GridSize, c.SplineOrder); err != nil {
		return opts, err
	}
	return opts, nil
}
