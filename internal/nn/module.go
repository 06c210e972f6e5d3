// Package nn implements the neural network building blocks the KAN layers are made of.
//
// This package provides:
//   - Module interface: Base interface for components with a forward pass
//   - Parameter: Trainable tensors with accumulated gradients
//   - Initializers: Kaiming and Xavier uniform, normal, constant
//   - Activations: SiLU, ReLU, Tanh, GELU, identity (with derivatives)
//   - LayerNorm and PReLU: normalization and learned piecewise-linear activation
//   - CrossEntropyLoss: softmax cross-entropy with its gradient
//   - Checkpoint: save/load of model and optimizer state in the .born format
//
// There is no autodiff tape: every module that trains exposes an explicit Backward
// that accumulates parameter gradients and returns the input gradient.
package nn

import (
	"github.com/born-ml/kan/internal/tensor"
)

// Module is the base interface for neural network components.
//
// Every module must implement:
//   - Forward: Compute output from input
//   - Parameters: Return all trainable parameters
type Module interface {
	// Forward computes the output of the module given an input tensor.
	//
	// The input shape is module specific, e.g. [batch_size, in_features].
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Parameters returns all trainable parameters of this module, in a stable order.
	Parameters() []*Parameter
}

// NumParameters returns the total number of scalar parameters of m.
func NumParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// ZeroGrad clears the gradients of every parameter of m.
func ZeroGrad(m Module) {
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
}
