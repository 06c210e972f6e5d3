// Package optim implements the optimization algorithms used to train KAN stacks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - AdamW: Adam with decoupled weight decay
//   - ExponentialLR: per-epoch learning rate decay
//
// Example usage:
//
//	optimizer := optim.NewAdamW(stack.Parameters(), optim.AdamWConfig{
//	    LR:          1e-3,
//	    WeightDecay: 1e-5,
//	})
//	scheduler := optim.NewExponentialLR(optimizer, 0.85)
//
//	for epoch := range epochs {
//	    for _, batch := range batches {
//	        optimizer.ZeroGrad()
//	        logits, trace := stack.ForwardTrace(batch.Images)
//	        _, grad := criterion.Forward(logits, batch.Labels)
//	        stack.Backward(trace, grad)
//	        optimizer.Step()
//	    }
//	    scheduler.Step()
//	}
package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers read the gradients accumulated in each parameter and update the parameter
// tensors in place. They also implement nn.OptimizerState, so they can be checkpointed.
type Optimizer interface {
	nn.OptimizerState

	// Step applies one update to every parameter that has a gradient.
	Step()

	// ZeroGrad clears all parameter gradients.
	//
	// This should be called before each backward pass, since backward passes accumulate.
	ZeroGrad()

	// SetLR updates the learning rate (used by schedulers).
	SetLR(lr float32)
}

// zeroGrad clears the gradients of params.
func zeroGrad(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// buffers allocates one zero tensor per parameter, with the parameter's shape.
func buffers(params []*nn.Parameter) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		out[i] = tensor.Zeros(p.Tensor().Shape())
	}
	return out
}

// loadBuffers copies state[prefix+name] into the buffer of each parameter.
func loadBuffers(state map[string]*tensor.Tensor, prefix string, params []*nn.Parameter, bufs []*tensor.Tensor) error {
	for i, p := range params {
		t, ok := state[prefix+p.Name()]
		if !ok {
			return errors.Errorf("optimizer state has no %q", prefix+p.Name())
		}
		if !t.Shape().Equal(bufs[i].Shape()) {
			return errors.Errorf("optimizer state %q has shape %s, want %s", prefix+p.Name(), t.Shape(), bufs[i].Shape())
		}
		bufs[i].CopyFrom(t)
	}
	return nil
}
