package kan

import (
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

func testOptions(seed uint64) Options {
	opts := DefaultOptions()
	opts.Rand = rand.New(rand.NewPCG(seed, seed))
	return opts
}

func randomInput(batch, features int, seed uint64) *tensor.Tensor {
	rng := rand.New(rand.NewPCG(seed, 0))
	x := tensor.Zeros(tensor.Shape{batch, features})
	for i := range x.Data() {
		x.Data()[i] = float32(rng.Float64()*1.8 - 0.9)
	}
	return x
}

func TestLayerParameters(t *testing.T) {
	cfg := LayerConfig{InFeatures: 4, OutFeatures: 3, GridSize: 5, SplineOrder: 3}
	layer, err := NewLayer(cfg, testOptions(1))
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{3, 4}, layer.BaseWeight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{3, 4, 8}, layer.SplineWeight.Tensor().Shape())
	assert.Equal(t, tensor.Shape{3, 4}, layer.SplineScaler.Tensor().Shape())
	assert.Len(t, layer.Parameters(), 3)
	assert.Len(t, layer.Knots(), 5+2*3+1)

	opts := testOptions(1)
	opts.SplineScaler = false
	opts.PostProcess = PostNormActivation
	layer, err = NewLayer(cfg, opts)
	require.NoError(t, err)
	var names []string
	for _, p := range layer.Parameters() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"base_weight", "spline_weight", "norm.gamma", "norm.beta", "act.slope"}, names)
}

func TestLayerForwardShape(t *testing.T) {
	cfg := LayerConfig{InFeatures: 6, OutFeatures: 2, GridSize: 4, SplineOrder: 2}
	for _, post := range []PostProcess{PostNone, PostNormActivation} {
		opts := testOptions(2)
		opts.PostProcess = post
		layer, err := NewLayer(cfg, opts)
		require.NoError(t, err)
		for _, batch := range []int{1, 3, 17} {
			y := layer.Forward(randomInput(batch, 6, 3))
			assert.Equal(t, tensor.Shape{batch, 2}, y.Shape(), "%s, batch %d", post, batch)
			assert.True(t, y.AllFinite())
		}
	}
}

// TestLayerForwardComposition checks the output against the two branches computed by hand.
func TestLayerForwardComposition(t *testing.T) {
	cfg := LayerConfig{InFeatures: 2, OutFeatures: 1, GridSize: 3, SplineOrder: 2}
	layer, err := NewLayer(cfg, testOptions(3))
	require.NoError(t, err)

	x, err := tensor.FromRows([][]float32{{0.0, 0.0}, {0.5, -0.5}})
	require.NoError(t, err)
	y := layer.Forward(x)
	require.Equal(t, tensor.Shape{2, 1}, y.Shape())

	bases := BSplineBasis(x, layer.Knots(), 2)
	require.Equal(t, tensor.Shape{2, 2, 5}, bases.Shape())
	for b := 0; b < 2; b++ {
		for i := 0; i < 2; i++ {
			sum := float32(0)
			for j := 0; j < 5; j++ {
				sum += bases.At(b, i, j)
			}
			assert.InDelta(t, 1, sum, 1e-5)
		}
	}

	for b := 0; b < 2; b++ {
		want := 0.0
		for i := 0; i < 2; i++ {
			xi := x.At(b, i)
			want += float64(layer.BaseWeight.Tensor().At(0, i) * nn.SiLU.Apply(xi))
			for j := 0; j < 5; j++ {
				w := layer.SplineWeight.Tensor().At(0, i, j) * layer.SplineScaler.Tensor().At(0, i)
				want += float64(w * bases.At(b, i, j))
			}
		}
		assert.InDelta(t, want, y.At(b, 0), 1e-5)
	}
}

func TestLayerForwardDeterministic(t *testing.T) {
	layer, err := NewLayer(LayerConfig{InFeatures: 5, OutFeatures: 4, GridSize: 5, SplineOrder: 3}, testOptions(4))
	require.NoError(t, err)
	x := randomInput(9, 5, 5)
	assert.Equal(t, layer.Forward(x).Data(), layer.Forward(x).Data())

	traced, _ := layer.ForwardTrace(x)
	assert.Equal(t, layer.Forward(x).Data(), traced.Data())
}

func TestLayerShapeMismatch(t *testing.T) {
	layer, err := NewLayer(LayerConfig{InFeatures: 5, OutFeatures: 4, GridSize: 5, SplineOrder: 3}, testOptions(4))
	require.NoError(t, err)
	assert.Panics(t, func() { layer.Forward(tensor.Zeros(tensor.Shape{2, 4})) })
}

func TestNewLayerRejectsInvalidConfig(t *testing.T) {
	for _, cfg := range []LayerConfig{
		{InFeatures: 0, OutFeatures: 1, GridSize: 3, SplineOrder: 2},
		{InFeatures: 2, OutFeatures: 1, GridSize: 0, SplineOrder: 2},
		{InFeatures: 2, OutFeatures: 1, GridSize: 3, SplineOrder: -1},
	} {
		_, err := NewLayer(cfg, testOptions(1))
		assert.True(t, errors.Is(err, ErrConfiguration), "%+v: %v", cfg, err)
	}

	opts := testOptions(1)
	opts.GridRange = [2]float64{1, 1}
	_, err := NewLayer(LayerConfig{InFeatures: 2, OutFeatures: 1, GridSize: 3, SplineOrder: 2}, opts)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

// weightedLoss is L = Σ c_i y_i with fixed coefficients, so dL/dy = c.
func weightedLoss(y *tensor.Tensor) (float64, *tensor.Tensor) {
	grad := tensor.Zeros(y.Shape())
	loss := 0.0
	for i, v := range y.Data() {
		c := float32(i%7-3) * 0.25
		grad.Data()[i] = c
		loss += float64(c) * float64(v)
	}
	return loss, grad
}

// checkGradients compares accumulated gradients against central differences.
func checkGradients(t *testing.T, m nn.Module, backward func(x *tensor.Tensor) *tensor.Tensor, x *tensor.Tensor) {
	t.Helper()
	const (
		h   = 1e-3
		tol = 1e-2
	)
	numeric := func(v *float32) float64 {
		orig := *v
		*v = orig + h
		plus, _ := weightedLoss(m.Forward(x))
		*v = orig - h
		minus, _ := weightedLoss(m.Forward(x))
		*v = orig
		return (plus - minus) / (2 * h)
	}

	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
	gradIn := backward(x)

	for _, p := range m.Parameters() {
		data, grad := p.Tensor().Data(), p.Grad()
		require.NotNil(t, grad, p.Name())
		// Every third element keeps the test fast on the larger tensors.
		for i := 0; i < len(data); i += 3 {
			assert.InDelta(t, numeric(&data[i]), grad.Data()[i], tol, "%s[%d]", p.Name(), i)
		}
	}
	for i := range x.Data() {
		assert.InDelta(t, numeric(&x.Data()[i]), gradIn.Data()[i], tol, "input[%d]", i)
	}
}

func TestLayerBackwardMatchesFiniteDifferences(t *testing.T) {
	cfg := LayerConfig{InFeatures: 3, OutFeatures: 4, GridSize: 4, SplineOrder: 3}
	for _, tc := range []struct {
		name   string
		post   PostProcess
		scaler bool
	}{
		{"plain", PostNone, true},
		{"no scaler", PostNone, false},
		{"norm activation", PostNormActivation, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := testOptions(7)
			opts.PostProcess = tc.post
			opts.SplineScaler = tc.scaler
			layer, err := NewLayer(cfg, opts)
			require.NoError(t, err)

			backward := func(x *tensor.Tensor) *tensor.Tensor {
				y, trace := layer.ForwardTrace(x)
				_, gradOut := weightedLoss(y)
				return layer.Backward(trace, gradOut)
			}
			checkGradients(t, layer, backward, randomInput(5, 3, 8))
		})
	}
}

func TestLayerBackwardAccumulates(t *testing.T) {
	layer, err := NewLayer(LayerConfig{InFeatures: 2, OutFeatures: 2, GridSize: 3, SplineOrder: 2}, testOptions(9))
	require.NoError(t, err)
	x := randomInput(4, 2, 10)

	y, trace := layer.ForwardTrace(x)
	_, gradOut := weightedLoss(y)
	layer.Backward(trace, gradOut)
	once := layer.BaseWeight.Grad().Clone()
	layer.Backward(trace, gradOut)
	for i, v := range once.Data() {
		assert.InDelta(t, 2*v, layer.BaseWeight.Grad().Data()[i], 1e-6)
	}
}
