package nn

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/serialization"
	"github.com/born-ml/kan/internal/tensor"
)

// optimizerPrefix namespaces optimizer tensors inside a checkpoint.
const optimizerPrefix = "optimizer."

// Stateful is a model whose parameters can be exported and restored by name.
type Stateful interface {
	// StateDict returns the parameter tensors keyed by parameter name.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict copies values from stateDict into the model's parameters.
	LoadStateDict(stateDict map[string]*tensor.Tensor) error
}

// OptimizerState represents an optimizer that can save/load its state.
//
// This interface is used by checkpoints to serialize optimizer state
// without creating import cycles. Optimizers from the optim package
// implement this interface.
type OptimizerState interface {
	Stateful

	// Name returns the optimizer type, e.g. "AdamW".
	Name() string

	// GetLR returns the current learning rate.
	GetLR() float32

	// Hyperparameters returns the optimizer configuration for the checkpoint header.
	Hyperparameters() map[string]any
}

// Checkpoint represents a complete training state snapshot.
//
// A checkpoint includes:
//   - Model parameters
//   - Optimizer state (moments, step counters), if an optimizer is given
//   - Training metadata (epoch, step, loss)
//   - Model metadata (string key/values, e.g. the layer configuration)
//
// Example:
//
//	checkpoint := &nn.Checkpoint{
//	    Model:     stack,
//	    Optimizer: optimizer,
//	    Epoch:     10,
//	    Loss:      0.123,
//	    ModelMeta: kan.ConfigMetadata(stack),
//	}
//	err := checkpoint.Save("checkpoint_epoch_10.born")
type Checkpoint struct {
	Model         Stateful          // The model
	Optimizer     OptimizerState    // The optimizer with its state (optional)
	ModelType     string            // Model type stored in the header
	Epoch         int               // Training epoch number
	Step          int64             // Training step number
	Loss          float64           // Loss value at this checkpoint
	Metadata      map[string]any    // Additional training metadata
	ModelMeta     map[string]string // Model description stored in the header metadata
	HalfPrecision bool              // Store model weights as float16 (optimizer state stays float32)
	CreatedAt     time.Time         // When the checkpoint was created
}

// Save saves the checkpoint to a .born file.
func (c *Checkpoint) Save(path string) error {
	if c.Model == nil {
		return errors.New("checkpoint has no model")
	}
	entries := make(map[string]serialization.Entry)
	for name, t := range c.Model.StateDict() {
		if strings.HasPrefix(name, optimizerPrefix) {
			return errors.Errorf("model parameter %q uses the reserved %q prefix", name, optimizerPrefix)
		}
		if c.HalfPrecision {
			entries[name] = serialization.Float16Entry(t)
		} else {
			entries[name] = serialization.Float32Entry(t)
		}
	}

	meta := &serialization.CheckpointMeta{
		Epoch:        c.Epoch,
		Step:         c.Step,
		Loss:         c.Loss,
		TrainingMeta: c.Metadata,
	}
	if c.Optimizer != nil {
		for name, t := range c.Optimizer.StateDict() {
			entries[optimizerPrefix+name] = serialization.Float32Entry(t)
		}
		meta.OptimizerType = c.Optimizer.Name()
		meta.OptimizerConfig = c.Optimizer.Hyperparameters()
	}

	modelType := c.ModelType
	if modelType == "" {
		modelType = "Checkpoint"
	}
	header := serialization.Header{
		ModelType:      modelType,
		CreatedAt:      c.CreatedAt,
		Metadata:       c.ModelMeta,
		CheckpointMeta: meta,
	}
	if err := serialization.WriteFile(path, entries, header); err != nil {
		return errors.Wrap(err, "failed to write checkpoint")
	}
	return nil
}

// SaveModel writes only the model parameters, without training state.
func SaveModel(path, modelType string, model Stateful, modelMeta map[string]string, halfPrecision bool) error {
	c := &Checkpoint{
		Model:         model,
		ModelType:     modelType,
		ModelMeta:     modelMeta,
		HalfPrecision: halfPrecision,
	}
	return c.Save(path)
}

// LoadCheckpoint loads a checkpoint from a .born file.
//
// The model (and optimizer, if not nil) must be pre-constructed with the same architecture and
// configuration as when the checkpoint was saved.
//
// Example:
//
//	checkpoint, err := nn.LoadCheckpoint("checkpoint.born", stack, optimizer)
//	if err != nil {
//	    return err
//	}
//	startEpoch := checkpoint.Epoch + 1
func LoadCheckpoint(path string, model Stateful, optimizer OptimizerState) (*Checkpoint, error) {
	reader, err := serialization.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint")
	}
	defer func() { _ = reader.Close() }()

	entries, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint tensors")
	}

	// Split model and optimizer state
	modelState := make(map[string]*tensor.Tensor)
	optimizerState := make(map[string]*tensor.Tensor)
	for name, entry := range entries {
		t, err := entry.Tensor()
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q", name)
		}
		if rest, ok := strings.CutPrefix(name, optimizerPrefix); ok {
			optimizerState[rest] = t
		} else {
			modelState[name] = t
		}
	}

	if err := model.LoadStateDict(modelState); err != nil {
		return nil, errors.Wrap(err, "failed to load model state")
	}
	header := reader.Header()
	if optimizer != nil && len(optimizerState) > 0 {
		if header.CheckpointMeta != nil && header.CheckpointMeta.OptimizerType != optimizer.Name() {
			return nil, errors.Errorf("checkpoint holds %s state, cannot load it into %s",
				header.CheckpointMeta.OptimizerType, optimizer.Name())
		}
		if err := optimizer.LoadStateDict(optimizerState); err != nil {
			return nil, errors.Wrap(err, "failed to load optimizer state")
		}
	}

	checkpoint := &Checkpoint{
		Model:     model,
		Optimizer: optimizer,
		ModelType: header.ModelType,
		ModelMeta: header.Metadata,
		CreatedAt: header.CreatedAt,
	}
	if meta := header.CheckpointMeta; meta != nil {
		checkpoint.Epoch = meta.Epoch
		checkpoint.Step = meta.Step
		checkpoint.Loss = meta.Loss
		checkpoint.Metadata = meta.TrainingMeta
	}
	return checkpoint, nil
}

// ReadModelMetadata returns the model type and metadata stored in the header of path,
// without loading any tensor.
func ReadModelMetadata(path string) (modelType string, metadata map[string]string, err error) {
	header, err := serialization.ReadHeader(path)
	if err != nil {
		return "", nil, err
	}
	return header.ModelType, header.Metadata, nil
}
