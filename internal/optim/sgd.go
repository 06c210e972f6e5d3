package optim

import (
	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities []*tensor.Tensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	s := &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
	}
	if s.momentum != 0 {
		s.velocities = buffers(params)
	}
	return s
}

// Step performs a single optimization step. Parameters with no gradient are skipped.
func (s *SGD) Step() {
	for i, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		gradData, paramData := grad.Data(), param.Tensor().Data()
		if s.velocities == nil {
			for j, g := range gradData {
				paramData[j] -= s.lr * g
			}
			continue
		}
		vel := s.velocities[i].Data()
		for j, g := range gradData {
			vel[j] = s.momentum*vel[j] + g
			paramData[j] -= s.lr * vel[j]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrad(s.params)
}

// Name returns "SGD".
func (s *SGD) Name() string {
	return "SGD"
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// Hyperparameters returns the optimizer configuration.
func (s *SGD) Hyperparameters() map[string]any {
	return map[string]any{"lr": s.lr, "momentum": s.momentum}
}

// StateDict returns the velocity buffers ("velocity.<param>"), empty without momentum.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	for i, p := range s.params {
		if s.velocities != nil {
			state["velocity."+p.Name()] = s.velocities[i]
		}
	}
	return state
}

// LoadStateDict restores state produced by StateDict.
func (s *SGD) LoadStateDict(state map[string]*tensor.Tensor) error {
	if s.velocities == nil {
		return nil
	}
	return loadBuffers(state, "velocity.", s.params, s.velocities)
}
