package train

import (
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/mnist"
	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/optim"
)

// NewStack builds the stack described by cfg, initialized from cfg.InitSeed.
func NewStack(cfg Config) (*kan.Stack, error) {
	configs, err := cfg.LayerConfigs()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.KANOptions()
	if err != nil {
		return nil, err
	}
	opts.Rand = rand.New(rand.NewPCG(cfg.InitSeed, cfg.InitSeed))
	return kan.New(configs, opts)
}

// NewOptimizer builds the optimizer named by cfg over params.
func NewOptimizer(cfg Config, params []*nn.Parameter) (optim.Optimizer, error) {
	switch cfg.Optimizer {
	case "adamw":
		return optim.NewAdamW(params, optim.AdamWConfig{
			LR:          float32(cfg.LR),
			WeightDecay: float32(cfg.WeightDecay),
		}), nil
	case "sgd":
		return optim.NewSGD(params, optim.SGDConfig{
			LR:       float32(cfg.LR),
			Momentum: float32(cfg.Momentum),
		}), nil
	}
	return nil, errors.Errorf("unknown optimizer %q", cfg.Optimizer)
}

// Trainer runs the training loop of a stack: forward, cross-entropy, backward and optimizer
// step per batch, and a learning rate decay per epoch.
type Trainer struct {
	Model     *kan.Stack
	Optimizer optim.Optimizer
	Scheduler *optim.ExponentialLR
	Criterion *nn.CrossEntropyLoss
	Logger    MetricsLogger // optional

	// Progress receives a per-epoch progress bar; nil disables it.
	Progress io.Writer

	cfg     Config
	shuffle *rand.Rand
	step    int64
	history []EpochResult
}

// NewTrainer creates a trainer for model with the optimizer and schedule of cfg.
func NewTrainer(model *kan.Stack, cfg Config) (*Trainer, error) {
	optimizer, err := NewOptimizer(cfg, model.Parameters())
	if err != nil {
		return nil, err
	}
	return &Trainer{
		Model:     model,
		Optimizer: optimizer,
		Scheduler: optim.NewExponentialLR(optimizer, cfg.Gamma),
		Criterion: nn.NewCrossEntropyLoss(),
		cfg:       cfg,
		shuffle:   rand.New(rand.NewPCG(cfg.ShuffleSeed, cfg.ShuffleSeed^0x5851f42d4c957f2d)),
	}, nil
}

// History returns the results of the epochs run so far.
func (t *Trainer) History() []EpochResult {
	return t.history
}

// Step returns the number of optimizer steps taken.
func (t *Trainer) Step() int64 {
	return t.step
}

// TrainEpoch runs one pass over ds in shuffled batches, updating the model.
// It returns the loss and accuracy averaged over batches.
func (t *Trainer) TrainEpoch(ds *mnist.Dataset, description string) (loss, accuracy float64) {
	batches := ds.Batches(t.cfg.BatchSize, t.shuffle)
	var bar *progressbar.ProgressBar
	if t.Progress != nil {
		bar = progressbar.NewOptions(len(batches),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(t.Progress),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("batches"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
			progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(t.Progress) }),
		)
	}

	for _, batch := range batches {
		t.Optimizer.ZeroGrad()
		logits, trace := t.Model.ForwardTrace(batch.Images)
		batchLoss, grad := t.Criterion.Forward(logits, batch.Labels)
		t.Model.Backward(trace, grad)
		t.Optimizer.Step()
		t.step++

		acc := nn.Accuracy(logits, batch.Labels)
		loss += float64(batchLoss)
		accuracy += acc
		if bar != nil {
			bar.Describe(fmt.Sprintf("%s loss=%.4f acc=%.3f", description, batchLoss, acc))
			_ = bar.Add(1)
		}
	}
	if len(batches) == 0 {
		return 0, 0
	}
	return loss / float64(len(batches)), accuracy / float64(len(batches))
}

// ValidateEpoch evaluates the model on ds without updating it.
func (t *Trainer) ValidateEpoch(ds *mnist.Dataset) (loss, accuracy float64) {
	r := Evaluate(t.Model, ds, t.cfg.EvalBatchSize)
	return r.Loss, r.Accuracy
}

// Fit trains for epochs more epochs, validating on val after each one and then decaying
// the learning rate. Per-epoch checkpoints are written if the configuration asks for them.
func (t *Trainer) Fit(train, val *mnist.Dataset, epochs int) ([]EpochResult, error) {
	first := t.Scheduler.Epoch() + 1
	for epoch := first; epoch < first+epochs; epoch++ {
		start := time.Now()
		result := EpochResult{Epoch: epoch, LR: t.Optimizer.GetLR()}
		desc := fmt.Sprintf("Epoch %d/%d", epoch, first+epochs-1)
		result.TrainLoss, result.TrainAcc = t.TrainEpoch(train, desc)
		result.ValLoss, result.ValAcc = t.ValidateEpoch(val)
		t.Scheduler.Step()
		result.Duration = time.Since(start)
		t.history = append(t.history, result)

		if t.Logger != nil {
			if err := t.Logger.LogEpoch(result); err != nil {
				return t.history, errors.Wrap(err, "failed to log metrics")
			}
		}
		if t.cfg.CheckpointDir != "" {
			path := filepath.Join(t.cfg.CheckpointDir, fmt.Sprintf("checkpoint_epoch_%d.born", epoch))
			if err := t.SaveCheckpoint(path, result); err != nil {
				return t.history, err
			}
			klog.V(1).Infof("saved %s", path)
		}
	}
	return t.history, nil
}

// SaveCheckpoint writes the model, the optimizer state and the progress after result.
func (t *Trainer) SaveCheckpoint(path string, result EpochResult) error {
	c := &nn.Checkpoint{
		Model:     t.Model,
		Optimizer: t.Optimizer,
		ModelType: kan.ModelType,
		Epoch:     result.Epoch,
		Step:      t.step,
		Loss:      result.TrainLoss,
		Metadata: map[string]any{
			"train_accuracy": result.TrainAcc,
			"val_loss":       result.ValLoss,
			"val_accuracy":   result.ValAcc,
		},
		ModelMeta: kan.ConfigMetadata(t.Model),
		CreatedAt: time.Now(),
	}
	return c.Save(path)
}

// Resume loads a checkpoint written by SaveCheckpoint. The next Fit continues with the epoch
// after the checkpointed one, at the learning rate the schedule gives it.
func (t *Trainer) Resume(path string) error {
	c, err := nn.LoadCheckpoint(path, t.Model, t.Optimizer)
	if err != nil {
		return err
	}
	t.Scheduler.SetEpoch(c.Epoch)
	t.step = c.Step
	klog.Infof("resumed from %s at epoch %d, step %d", path, c.Epoch, c.Step)
	return nil
}
