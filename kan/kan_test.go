package kan_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kan/kan"
	"github.com/born-ml/kan/nn"
	"github.com/born-ml/kan/optim"
	"github.com/born-ml/kan/tensor"
)

func TestTrainSaveQuantize(t *testing.T) {
	configs, err := kan.UniformConfigs([]int{3, 6, 2}, 4, 3)
	require.NoError(t, err)
	model, err := kan.New(configs, kan.DefaultOptions())
	require.NoError(t, err)

	x, err := tensor.FromRows([][]float32{{-0.8, 0.1, 0.5}, {0.7, -0.3, -0.9}, {0.2, 0.9, -0.1}, {-0.5, -0.6, 0.4}})
	require.NoError(t, err)
	labels := []int{0, 1, 1, 0}

	criterion := nn.NewCrossEntropyLoss()
	optimizer := optim.NewAdamW(model.Parameters(), optim.AdamWConfig{LR: 1e-2})
	var first, last float32
	for step := 0; step < 50; step++ {
		optimizer.ZeroGrad()
		logits, trace := model.ForwardTrace(x)
		loss, grad := criterion.Forward(logits, labels)
		model.Backward(trace, grad)
		optimizer.Step()
		if step == 0 {
			first = loss
		}
		last = loss
	}
	assert.Less(t, last, first)

	dir := t.TempDir()
	path := filepath.Join(dir, "model.born")
	require.NoError(t, kan.Save(path, model, false))
	loaded, err := kan.Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.Forward(x).Data(), loaded.Forward(x).Data())

	quantized, report := kan.QuantizeDynamic(model)
	assert.Equal(t, 2, report.Layers)
	require.NoError(t, kan.SaveQuantized(filepath.Join(dir, "model_int8.born"), quantized))
	q2, err := kan.LoadQuantized(filepath.Join(dir, "model_int8.born"))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2}, q2.Forward(x).Shape())
}

func TestErrors(t *testing.T) {
	_, err := kan.New([]kan.LayerConfig{
		{InFeatures: 2, OutFeatures: 3, GridSize: 5, SplineOrder: 3},
		{InFeatures: 4, OutFeatures: 1, GridSize: 5, SplineOrder: 3},
	}, kan.DefaultOptions())
	assert.True(t, errors.Is(err, kan.ErrConfiguration))

	model, err := kan.New([]kan.LayerConfig{{InFeatures: 2, OutFeatures: 1, GridSize: 5, SplineOrder: 3}}, kan.DefaultOptions())
	require.NoError(t, err)
	_, err = model.TryForward(tensor.Zeros(tensor.Shape{1, 3}))
	assert.True(t, errors.Is(err, kan.ErrShapeMismatch))
}

func TestBasisPartitionOfUnity(t *testing.T) {
	knots, err := kan.BuildGrid(-1, 1, 5, 3)
	require.NoError(t, err)
	x, err := tensor.FromSlice([]float32{-0.99, -0.2, 0.5, 0.999}, tensor.Shape{2, 2})
	require.NoError(t, err)
	basis := kan.BSplineBasis(x, knots, 3)
	require.Equal(t, tensor.Shape{2, 2, 8}, basis.Shape())
	for p := 0; p < 4; p++ {
		var sum float32
		for _, v := range basis.Data()[p*8 : (p+1)*8] {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-5)
	}
}
