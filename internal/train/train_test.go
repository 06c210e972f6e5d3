package train

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/mnist"
	"github.com/born-ml/kan/internal/quant"
)

// smallConfig trains a narrow stack on synthetic digits in well under a second per epoch.
func smallConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Widths = []int{784, 8, 10}
	cfg.GridSize = 3
	cfg.Epochs = 3
	cfg.BatchSize = 16
	cfg.LR = 1e-2
	cfg.Synthetic = 200
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{784, 64, 10}, cfg.Widths)
	assert.Equal(t, 15, cfg.Epochs)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, 0.85, cfg.Gamma)

	configs, err := cfg.LayerConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, kan.LayerConfig{InFeatures: 784, OutFeatures: 64, GridSize: 5, SplineOrder: 3}, configs[0])
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
widths: [784, 32, 10]
epochs: 2
optimizer: sgd
grid_range: [-2, 2]
post_process: norm_activation
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []int{784, 32, 10}, cfg.Widths)
	assert.Equal(t, 2, cfg.Epochs)
	assert.Equal(t, "sgd", cfg.Optimizer)
	assert.Equal(t, [2]float64{-2, 2}, cfg.GridRange)
	assert.Equal(t, 64, cfg.BatchSize, "absent keys keep their default")
	assert.True(t, cfg.SplineScaler)

	opts, err := cfg.KANOptions()
	require.NoError(t, err)
	assert.Equal(t, kan.PostNormActivation, opts.PostProcess)

	// Save and load back.
	again := filepath.Join(t.TempDir(), "again.yaml")
	require.NoError(t, cfg.Save(again))
	reloaded, err := LoadConfig(again)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no epochs", func(c *Config) { c.Epochs = 0 }},
		{"bad batch", func(c *Config) { c.BatchSize = 0 }},
		{"bad lr", func(c *Config) { c.LR = 0 }},
		{"bad gamma", func(c *Config) { c.Gamma = 1.5 }},
		{"bad optimizer", func(c *Config) { c.Optimizer = "lbfgs" }},
		{"one width", func(c *Config) { c.Widths = []int{784} }},
		{"zero grid", func(c *Config) { c.GridSize = 0 }},
		{"bad range", func(c *Config) { c.GridRange = [2]float64{1, -1} }},
		{"bad activation", func(c *Config) { c.BaseActivation = "sigmoidish" }},
		{"bad init", func(c *Config) { c.Init = "orthogonal" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochs: -1\n"), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestKANOptionsConfigurationErrors(t *testing.T) {
	for _, modify := range []func(*Config){
		func(c *Config) { c.BaseActivation = "sigmoidish" },
		func(c *Config) { c.Init = "orthogonal" },
		func(c *Config) { c.PostProcess = "batchnorm" },
	} {
		cfg := DefaultConfig()
		modify(&cfg)
		_, err := cfg.KANOptions()
		assert.ErrorIs(t, err, kan.ErrConfiguration)
	}
}

func TestTrainerReducesLoss(t *testing.T) {
	cfg := smallConfig(t)
	trainSet, valSet, err := LoadData(cfg)
	require.NoError(t, err)
	assert.Equal(t, 160, trainSet.Len())

	model, err := NewStack(cfg)
	require.NoError(t, err)
	trainer, err := NewTrainer(model, cfg)
	require.NoError(t, err)

	history, err := trainer.Fit(trainSet, valSet, cfg.Epochs)
	require.NoError(t, err)
	require.Len(t, history, cfg.Epochs)
	assert.Less(t, history[len(history)-1].TrainLoss, history[0].TrainLoss)
	assert.Equal(t, int64(cfg.Epochs*10), trainer.Step(), "160 samples in batches of 16")

	// ExponentialLR decays once per epoch.
	assert.InDelta(t, cfg.LR, history[0].LR, 1e-9)
	assert.InDelta(t, cfg.LR*cfg.Gamma, history[1].LR, 1e-7)
	for i, r := range history {
		assert.Equal(t, i+1, r.Epoch)
		assert.GreaterOrEqual(t, r.ValAcc, 0.0)
		assert.LessOrEqual(t, r.ValAcc, 1.0)
	}
}

func TestCheckpointResume(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Epochs = 1
	cfg.CheckpointDir = t.TempDir()
	trainSet, valSet, err := LoadData(cfg)
	require.NoError(t, err)

	model, err := NewStack(cfg)
	require.NoError(t, err)
	trainer, err := NewTrainer(model, cfg)
	require.NoError(t, err)
	_, err = trainer.Fit(trainSet, valSet, 1)
	require.NoError(t, err)
	path := filepath.Join(cfg.CheckpointDir, "checkpoint_epoch_1.born")
	require.FileExists(t, path)

	// A stack rebuilt from the checkpoint has the trained parameters.
	restored, err := kan.FromCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, model.Snapshot(), restored.Snapshot())

	fresh, err := NewStack(cfg)
	require.NoError(t, err)
	resumed, err := NewTrainer(fresh, cfg)
	require.NoError(t, err)
	require.NoError(t, resumed.Resume(path))
	assert.Equal(t, model.Snapshot(), fresh.Snapshot())
	assert.Equal(t, trainer.Step(), resumed.Step())
	assert.InDelta(t, cfg.LR*cfg.Gamma, resumed.Optimizer.GetLR(), 1e-7)

	history, err := resumed.Fit(trainSet, valSet, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, history[0].Epoch)
}

func TestEvaluate(t *testing.T) {
	cfg := smallConfig(t)
	model, err := NewStack(cfg)
	require.NoError(t, err)
	ds := mnist.Synthetic(50, 3)

	r := Evaluate(model, ds, 16)
	assert.Equal(t, 50, r.Samples)
	assert.Positive(t, r.Loss)
	assert.True(t, r.Duration > 0)

	quantized, qr := QuantizeAndEvaluate(model, ds, 16)
	require.NotNil(t, qr.Report)
	assert.Equal(t, 2, qr.Report.Layers)
	assert.Equal(t, 50, qr.Quantized.Samples)
	assert.InDelta(t, r.Loss, qr.Original.Loss, 1e-6)
	assert.InDelta(t, qr.Original.Loss, qr.Quantized.Loss, 0.05)
	_, ok := quantized.Layers()[0].BaseProjector().(*quant.Linear)
	assert.True(t, ok)
}

func TestJSONLLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	l, err := NewJSONLLogger(path)
	require.NoError(t, err)
	logger := MultiLogger{l, KlogLogger{}}
	require.NoError(t, logger.LogEpoch(EpochResult{Epoch: 1, TrainLoss: 2.5, ValAcc: 0.5}))
	require.NoError(t, logger.LogSummary(map[string]any{"val_accuracies": []float64{0.5}}))
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.Len(t, records, 2)
	assert.Equal(t, "epoch", records[0]["type"])
	assert.Equal(t, 2.5, records[0]["train_loss"])
	assert.Equal(t, "summary", records[1]["type"])
}

func TestRun(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Epochs = 1
	cfg.MetricsFile = filepath.Join(cfg.OutputDir, "metrics.jsonl")

	summary, err := Run(cfg, nil)
	require.NoError(t, err)
	require.Len(t, summary.History, 1)
	assert.FileExists(t, summary.ModelPath)
	assert.FileExists(t, summary.QuantizedPath)
	assert.FileExists(t, cfg.MetricsFile)
	assert.Less(t, summary.QuantizedBytes, summary.ModelBytes)
	assert.Positive(t, summary.Quantization.Speedup())

	loaded, err := quant.Load(summary.QuantizedPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Widths[len(cfg.Widths)-1], loaded.OutFeatures())

	cfg.Widths = []int{100, 10}
	_, err = Run(cfg, nil)
	assert.ErrorIs(t, err, kan.ErrConfiguration)
}
