package nn

import (
	"github.com/born-ml/kan/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Backward passes accumulate into the gradient buffer, which is allocated on first use.
// Optimizers read Grad and update Tensor in place.
//
// Example:
//
//	weight := nn.NewParameter("layers.0.base_weight", weightTensor)
//	w := weight.Tensor()
//	grad := weight.Grad() // nil before the first backward pass
type Parameter struct {
	name   string         // Parameter name (e.g., "layers.0.base_weight")
	tensor *tensor.Tensor // The parameter tensor
	grad   *tensor.Tensor // Accumulated gradient (nil until first backward)
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Grad returns the gradient tensor.
//
// Returns nil if no gradient has been accumulated yet.
func (p *Parameter) Grad() *tensor.Tensor {
	return p.grad
}

// GradBuffer returns the gradient tensor, allocating a zero-filled one if needed.
// Backward passes add into it.
func (p *Parameter) GradBuffer() *tensor.Tensor {
	if p.grad == nil {
		p.grad = tensor.Zeros(p.tensor.Shape())
	}
	return p.grad
}

// ZeroGrad clears the gradient. The buffer is kept and reused by the next backward pass.
func (p *Parameter) ZeroGrad() {
	if p.grad != nil {
		p.grad.Zero()
	}
}
