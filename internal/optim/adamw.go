package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// AdamW implements Adam with decoupled weight decay (Loshchilov & Hutter, 2019).
//
// Update rule:
//
//	param = param - lr * weight_decay * param            // Decoupled decay
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient         // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²        // Second moment
//	m_hat = m_t / (1 - beta1^t)                          // Bias correction
//	v_hat = v_t / (1 - beta2^t)                          // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)     // Parameter update
//
// Example:
//
//	optimizer := optim.NewAdamW(stack.Parameters(), optim.AdamWConfig{
//	    LR:          1e-3,
//	    WeightDecay: 1e-5,
//	})
type AdamW struct {
	params      []*nn.Parameter
	lr          float32
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int              // Timestep for bias correction
	m           []*tensor.Tensor // First moment estimates, one per parameter
	v           []*tensor.Tensor // Second moment estimates, one per parameter
}

// AdamWConfig holds configuration for the AdamW optimizer.
type AdamWConfig struct {
	LR          float32    // Learning rate (default: 0.001)
	Betas       [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps         float32    // Term for numerical stability (default: 1e-8)
	WeightDecay float32    // Decoupled weight decay (default: 0)
}

// NewAdamW creates a new AdamW optimizer. Zero fields of config take their defaults.
func NewAdamW(params []*nn.Parameter, config AdamWConfig) *AdamW {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &AdamW{
		params:      params,
		lr:          config.LR,
		beta1:       config.Betas[0],
		beta2:       config.Betas[1],
		eps:         config.Eps,
		weightDecay: config.WeightDecay,
		m:           buffers(params),
		v:           buffers(params),
	}
}

// Step performs a single optimization step. Parameters with no gradient are skipped.
func (a *AdamW) Step() {
	a.t++

	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))
	decay := 1 - a.lr*a.weightDecay

	for i, param := range a.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		gradData := grad.Data()
		mData, vData := a.m[i].Data(), a.v[i].Data()
		paramData := param.Tensor().Data()

		for j := range paramData {
			g := gradData[j]
			paramData[j] *= decay
			mData[j] = a.beta1*mData[j] + (1.0-a.beta1)*g
			vData[j] = a.beta2*vData[j] + (1.0-a.beta2)*g*g
			mHat := mData[j] / biasCorrection1
			vHat := vData[j] / biasCorrection2
			paramData[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *AdamW) ZeroGrad() {
	zeroGrad(a.params)
}

// Name returns "AdamW".
func (a *AdamW) Name() string {
	return "AdamW"
}

// GetLR returns the current learning rate.
func (a *AdamW) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *AdamW) SetLR(lr float32) {
	a.lr = lr
}

// GetTimestep returns the number of steps taken.
func (a *AdamW) GetTimestep() int {
	return a.t
}

// Hyperparameters returns the optimizer configuration.
func (a *AdamW) Hyperparameters() map[string]any {
	return map[string]any{
		"lr":           a.lr,
		"betas":        []float32{a.beta1, a.beta2},
		"eps":          a.eps,
		"weight_decay": a.weightDecay,
	}
}

// StateDict returns the moment estimates ("exp_avg.<param>", "exp_avg_sq.<param>") and the
// step count ("step"). Tensors are shared, not copied.
func (a *AdamW) StateDict() map[string]*tensor.Tensor {
	state := map[string]*tensor.Tensor{
		"step": tensor.Full(tensor.Shape{1}, float32(a.t)),
	}
	for i, p := range a.params {
		state["exp_avg."+p.Name()] = a.m[i]
		state["exp_avg_sq."+p.Name()] = a.v[i]
	}
	return state
}

// LoadStateDict restores state produced by StateDict.
func (a *AdamW) LoadStateDict(state map[string]*tensor.Tensor) error {
	step, ok := state["step"]
	if !ok || step.NumElements() != 1 {
		return errors.New("AdamW state has no step counter")
	}
	if err := loadBuffers(state, "exp_avg.", a.params, a.m); err != nil {
		return err
	}
	if err := loadBuffers(state, "exp_avg_sq.", a.params, a.v); err != nil {
		return err
	}
	a.t = int(step.Data()[0])
	return nil
}
