package train

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/mnist"
	"github.com/born-ml/kan/internal/quant"
)

// Output file names, relative to Config.OutputDir.
const (
	ModelFile          = "kan_mnist.born"
	QuantizedModelFile = "kan_mnist_int8.born"
)

// Summary is the outcome of Run.
type Summary struct {
	NumParameters  int
	History        []EpochResult
	ModelPath      string
	QuantizedPath  string
	Quantization   QuantizationResult
	ModelBytes     int64 // size of the saved float model file
	QuantizedBytes int64 // size of the saved quantized model file
}

// LoadData returns the training and validation sets described by cfg: either synthetic
// samples split 80/20, or the MNIST train and test splits.
func LoadData(cfg Config) (trainSet, valSet *mnist.Dataset, err error) {
	if cfg.Synthetic > 0 {
		trainSet, valSet = mnist.Synthetic(cfg.Synthetic, cfg.ShuffleSeed).Split(0.8)
		return trainSet, valSet, nil
	}
	if trainSet, err = mnist.Load(cfg.DataDir, mnist.Train, cfg.MaxSamples); err != nil {
		return nil, nil, err
	}
	if valSet, err = mnist.Load(cfg.DataDir, mnist.Test, cfg.MaxSamples); err != nil {
		return nil, nil, err
	}
	return trainSet, valSet, nil
}

// Run executes the whole experiment: train, save, quantize, evaluate the quantized model,
// save it, and time the original model on the same data.
//
// progress receives the epoch progress bars; nil disables them.
func Run(cfg Config, progress io.Writer) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	trainSet, valSet, err := LoadData(cfg)
	if err != nil {
		return nil, err
	}
	if trainSet.Features() != cfg.Widths[0] {
		return nil, errors.Wrapf(kan.ErrConfiguration, "dataset has %d features, first layer takes %d",
			trainSet.Features(), cfg.Widths[0])
	}

	model, err := NewStack(cfg)
	if err != nil {
		return nil, err
	}
	trainer, err := NewTrainer(model, cfg)
	if err != nil {
		return nil, err
	}
	trainer.Progress = progress

	for _, dir := range []string{cfg.OutputDir, cfg.CheckpointDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "failed to create output directory")
		}
	}

	loggers := MultiLogger{KlogLogger{}}
	if cfg.MetricsFile != "" {
		jsonl, err := NewJSONLLogger(cfg.MetricsFile)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, jsonl)
	}
	trainer.Logger = loggers
	defer func() { _ = loggers.Close() }()

	klog.Infof("training %d-layer KAN (%d parameters) on %d samples, validating on %d",
		len(model.Layers()), model.NumParameters(), trainSet.Len(), valSet.Len())
	history, err := trainer.Fit(trainSet, valSet, cfg.Epochs)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		NumParameters: model.NumParameters(),
		History:       history,
		ModelPath:     filepath.Join(cfg.OutputDir, ModelFile),
		QuantizedPath: filepath.Join(cfg.OutputDir, QuantizedModelFile),
	}
	if err := kan.Save(summary.ModelPath, model, cfg.HalfPrecision); err != nil {
		return nil, err
	}

	quantized, qResult := QuantizeAndEvaluate(model, valSet, cfg.EvalBatchSize)
	summary.Quantization = qResult
	if err := quant.Save(summary.QuantizedPath, quantized); err != nil {
		return nil, err
	}
	if summary.ModelBytes, err = fileSize(summary.ModelPath); err != nil {
		return nil, err
	}
	if summary.QuantizedBytes, err = fileSize(summary.QuantizedPath); err != nil {
		return nil, err
	}

	accuracies := make([]float64, len(history))
	for i, r := range history {
		accuracies[i] = r.ValAcc
	}
	err = loggers.LogSummary(map[string]any{
		"val_accuracies":     accuracies,
		"quantized_accuracy": qResult.Quantized.Accuracy,
		"quantized_seconds":  qResult.Quantized.Duration.Seconds(),
		"original_accuracy":  qResult.Original.Accuracy,
		"original_seconds":   qResult.Original.Duration.Seconds(),
		"model_bytes":        summary.ModelBytes,
		"quantized_bytes":    summary.QuantizedBytes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to log summary")
	}
	return summary, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
