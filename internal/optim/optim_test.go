package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/optim"
	"github.com/born-ml/kan/internal/tensor"
)

func scalarParam(name string, value, grad float32) *nn.Parameter {
	p := nn.NewParameter(name, tensor.Full(tensor.Shape{1}, value))
	p.GradBuffer().Fill(grad)
	return p
}

func TestSGD_SimpleUpdate(t *testing.T) {
	param := scalarParam("x", 2, 1)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1})
	optimizer.Step()

	// x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0
	assert.InDelta(t, 1.9, param.Tensor().At(0), 1e-6)
}

func TestSGD_WithMomentum(t *testing.T) {
	param := scalarParam("x", 2, 1)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	optimizer.Step() // v = 1, x = 1.9
	optimizer.Step() // v = 1.9, x = 1.71
	assert.InDelta(t, 1.71, param.Tensor().At(0), 1e-6)

	state := optimizer.StateDict()
	assert.InDelta(t, 1.9, state["velocity.x"].At(0), 1e-6)
}

func TestSGD_SkipsParametersWithoutGradient(t *testing.T) {
	param := nn.NewParameter("x", tensor.Full(tensor.Shape{2}, 3))
	optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1}).Step()
	assert.Equal(t, []float32{3, 3}, param.Tensor().Data())
}

func TestAdamW_FirstStep(t *testing.T) {
	// With bias correction, the first Adam step moves each weight by lr * sign(grad).
	param := scalarParam("x", 1, 0.5)
	optimizer := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 0.01})
	optimizer.Step()
	assert.InDelta(t, 0.99, param.Tensor().At(0), 1e-5)
	assert.Equal(t, 1, optimizer.GetTimestep())
}

func TestAdamW_DecoupledWeightDecay(t *testing.T) {
	// Zero gradient: only the decay acts.
	param := scalarParam("x", 2, 0)
	optimizer := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 0.1, WeightDecay: 0.5})
	optimizer.Step()
	assert.InDelta(t, 2*(1-0.1*0.5), param.Tensor().At(0), 1e-6)
}

func TestAdamW_MinimizesQuadratic(t *testing.T) {
	// f(x) = (x - 3)², gradient 2(x - 3).
	param := nn.NewParameter("x", tensor.Full(tensor.Shape{1}, 0))
	optimizer := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 0.1})
	for i := 0; i < 500; i++ {
		optimizer.ZeroGrad()
		x := param.Tensor().At(0)
		param.GradBuffer().Fill(2 * (x - 3))
		optimizer.Step()
	}
	assert.InDelta(t, 3, param.Tensor().At(0), 5e-2)
}

func TestAdamW_StateDictRoundTrip(t *testing.T) {
	param := scalarParam("layers.0.base_weight", 1, 0.5)
	a := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 0.01})
	a.Step()
	a.Step()

	other := scalarParam("layers.0.base_weight", 1, 0.5)
	b := optim.NewAdamW([]*nn.Parameter{other}, optim.AdamWConfig{LR: 0.01})
	require.NoError(t, b.LoadStateDict(a.StateDict()))
	assert.Equal(t, 2, b.GetTimestep())
	assert.Equal(t, a.StateDict()["exp_avg.layers.0.base_weight"].Data(), b.StateDict()["exp_avg.layers.0.base_weight"].Data())

	assert.Error(t, b.LoadStateDict(map[string]*tensor.Tensor{}))
	assert.Equal(t, "AdamW", b.Name())
	assert.Contains(t, b.Hyperparameters(), "weight_decay")
}

func TestExponentialLR(t *testing.T) {
	param := scalarParam("x", 1, 0)
	optimizer := optim.NewAdamW([]*nn.Parameter{param}, optim.AdamWConfig{LR: 1e-3})
	scheduler := optim.NewExponentialLR(optimizer, 0.85)

	for epoch := 1; epoch <= 3; epoch++ {
		scheduler.Step()
		assert.InDelta(t, 1e-3*math.Pow(0.85, float64(epoch)), optimizer.GetLR(), 1e-9)
	}
	assert.Equal(t, 3, scheduler.Epoch())

	scheduler.SetEpoch(0)
	assert.InDelta(t, 1e-3, optimizer.GetLR(), 1e-9)
}

func TestOptimizersImplementInterface(t *testing.T) {
	var _ optim.Optimizer = optim.NewAdamW(nil, optim.AdamWConfig{})
	var _ optim.Optimizer = optim.NewSGD(nil, optim.SGDConfig{})
}
