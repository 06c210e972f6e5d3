// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// Module is anything with a forward pass and trainable parameters.
type Module = nn.Module

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// NumParameters returns the number of scalar parameters of m.
func NumParameters(m Module) int {
	return nn.NumParameters(m)
}

// Activations

// Activation is a fixed elementwise activation function.
type Activation = nn.Activation

// Supported activations.
const (
	Identity = nn.Identity
	SiLU     = nn.SiLU
	ReLU     = nn.ReLU
	Tanh     = nn.Tanh
	GELU     = nn.GELU
)

// ParseActivation returns the activation with the given name ("silu", "relu", ...).
func ParseActivation(name string) (Activation, error) {
	return nn.ParseActivation(name)
}

// Normalization

// LayerNorm normalizes each row over its features, with learned gain and bias.
type LayerNorm = nn.LayerNorm

// NewLayerNorm creates a layer norm over features; parameter names start with prefix.
func NewLayerNorm(prefix string, features int, epsilon float64) *LayerNorm {
	return nn.NewLayerNorm(prefix, features, epsilon)
}

// PReLU is a leaky ReLU with one learned negative slope per feature.
type PReLU = nn.PReLU

// NewPReLU creates a PReLU over features; parameter names start with prefix.
func NewPReLU(prefix string, features int) *PReLU {
	return nn.NewPReLU(prefix, features)
}

// Loss

// CrossEntropyLoss combines log-softmax and negative log-likelihood.
type CrossEntropyLoss = nn.CrossEntropyLoss

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return nn.NewCrossEntropyLoss()
}

// Accuracy returns the fraction of rows of logits whose argmax equals the target.
func Accuracy(logits *tensor.Tensor, targets []int) float64 {
	return nn.Accuracy(logits, targets)
}

// Initialization

// Initializer creates the initial value of a parameter.
type Initializer = nn.Initializer

// KaimingUniform samples U(-b, b) with b = sqrt(6 / fan_in).
func KaimingUniform() Initializer {
	return nn.KaimingUniform()
}

// XavierUniform samples U(-b, b) with b = sqrt(6 / (fan_in + fan_out)).
func XavierUniform() Initializer {
	return nn.XavierUniform()
}

// Checkpoints

// Stateful is a model whose parameters can be exported and restored by name.
type Stateful = nn.Stateful

// OptimizerState is an optimizer that can be checkpointed.
type OptimizerState = nn.OptimizerState

// Checkpoint represents a complete training state snapshot.
type Checkpoint = nn.Checkpoint

// LoadCheckpoint restores model (and optimizer, if not nil) from a .born file.
func LoadCheckpoint(path string, model Stateful, optimizer OptimizerState) (*Checkpoint, error) {
	return nn.LoadCheckpoint(path, model, optimizer)
}
