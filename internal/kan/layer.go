package kan

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// BaseProjector computes the base branch projection [batch, in] -> [batch, out] from the
// activated input. Layers use their dense base weight unless a projector is installed
// (see Stack.WithBaseProjectors). Project must return a newly allocated tensor.
type BaseProjector interface {
	Project(activated *tensor.Tensor) *tensor.Tensor
}

// Layer is one KAN layer: a base branch (fixed activation + linear map) plus a spline branch
// (B-spline basis expansion + linear map), summed and optionally normalized and activated.
//
// Parameters:
//   - base_weight [out, in]
//   - spline_weight [out, in, grid_size+spline_order]
//   - spline_scaler [out, in] (if Options.SplineScaler)
//   - norm.gamma, norm.beta, act.slope [out] (if PostNormActivation)
type Layer struct {
	cfg        LayerConfig
	activation nn.Activation
	post       PostProcess
	knots      []float64

	BaseWeight   *nn.Parameter
	SplineWeight *nn.Parameter
	SplineScaler *nn.Parameter // nil when scalers are disabled
	Norm         *nn.LayerNorm // nil unless PostNormActivation
	Act          *nn.PReLU     // nil unless PostNormActivation

	projector BaseProjector // nil: dense BaseWeight
}

// NewLayer creates a standalone layer. Parameter names carry no prefix.
func NewLayer(cfg LayerConfig, opts Options) (*Layer, error) {
	opts = opts.withDefaults()
	return newLayer("", cfg, opts, opts.Rand)
}

func newLayer(prefix string, cfg LayerConfig, opts Options, rng *rand.Rand) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	knots, err := BuildGrid(opts.GridRange[0], opts.GridRange[1], cfg.GridSize, cfg.SplineOrder)
	if err != nil {
		return nil, err
	}

	l := &Layer{
		cfg:        cfg,
		activation: opts.BaseActivation,
		post:       opts.PostProcess,
		knots:      knots,
	}
	l.BaseWeight = nn.NewParameter(prefix+"base_weight",
		opts.Init(tensor.Shape{cfg.OutFeatures, cfg.InFeatures}, rng))
	l.SplineWeight = nn.NewParameter(prefix+"spline_weight",
		opts.Init(tensor.Shape{cfg.OutFeatures, cfg.InFeatures, cfg.NumBasis()}, rng))
	if opts.SplineScaler {
		l.SplineScaler = nn.NewParameter(prefix+"spline_scaler",
			opts.Init(tensor.Shape{cfg.OutFeatures, cfg.InFeatures}, rng))
	}
	switch opts.PostProcess {
	case PostNone:
	case PostNormActivation:
		l.Norm = nn.NewLayerNorm(prefix+"norm.", cfg.OutFeatures, opts.NormEpsilon)
		l.Act = nn.NewPReLU(prefix+"act.", cfg.OutFeatures)
	default:
		return nil, errors.Wrapf(ErrConfiguration, "unknown post-processing %v", opts.PostProcess)
	}
	return l, nil
}

// Config returns the layer configuration.
func (l *Layer) Config() LayerConfig {
	return l.cfg
}

// Knots returns a copy of the layer's knot vector.
func (l *Layer) Knots() []float64 {
	return append([]float64(nil), l.knots...)
}

// BaseProjector returns the projector installed by Stack.WithBaseProjectors, or nil when the
// dense base weight is used.
func (l *Layer) BaseProjector() BaseProjector {
	return l.projector
}

// Parameters returns the trainable parameters in a stable order.
func (l *Layer) Parameters() []*nn.Parameter {
	params := []*nn.Parameter{l.BaseWeight, l.SplineWeight}
	if l.SplineScaler != nil {
		params = append(params, l.SplineScaler)
	}
	if l.Norm != nil {
		params = append(params, l.Norm.Parameters()...)
		params = append(params, l.Act.Parameters()...)
	}
	return params
}

// effectiveSplineWeight returns spline_weight ⊙ spline_scaler flattened to [out, in*numBasis].
func (l *Layer) effectiveSplineWeight() *tensor.Tensor {
	out, in, nb := l.cfg.OutFeatures, l.cfg.InFeatures, l.cfg.NumBasis()
	w := l.SplineWeight.Tensor()
	if l.SplineScaler == nil {
		return w.Reshape(out, in*nb)
	}
	eff := w.Clone().Reshape(out, in*nb)
	data, scale := eff.Data(), l.SplineScaler.Tensor().Data()
	for p, s := range scale {
		row := data[p*nb : (p+1)*nb]
		for j := range row {
			row[j] *= s
		}
	}
	return eff
}

// LayerTrace holds the intermediate values of one forward pass, consumed by Backward.
type LayerTrace struct {
	input     *tensor.Tensor // [batch, in]
	activated *tensor.Tensor // base activation of input, [batch, in]
	bases     *tensor.Tensor // [batch, in*numBasis]
	basisGrad *tensor.Tensor // dB/dx, [batch, in*numBasis]
	splineW   *tensor.Tensor // effective spline weight, [out, in*numBasis]
	sum       *tensor.Tensor // base + spline, [batch, out]
	normed    *tensor.Tensor // LayerNorm(sum), nil without post-processing
}

// Forward computes the layer output [batch, out] from x [batch, in].
//
// Panics with an error wrapping ErrShapeMismatch if x is not [batch, in_features].
func (l *Layer) Forward(x *tensor.Tensor) *tensor.Tensor {
	y, _ := l.run(x, false)
	return y
}

// ForwardTrace is Forward, also returning what Backward needs.
func (l *Layer) ForwardTrace(x *tensor.Tensor) (*tensor.Tensor, *LayerTrace) {
	return l.run(x, true)
}

func (l *Layer) run(x *tensor.Tensor, keep bool) (*tensor.Tensor, *LayerTrace) {
	if x.Rank() != 2 || x.Dim(1) != l.cfg.InFeatures {
		shapeMismatchf("layer %s expects input [batch, %d], got %s", l.cfg, l.cfg.InFeatures, x.Shape())
	}
	batch := x.Dim(0)

	// Base branch: activation on the raw input, then the projection.
	activated := l.activation.Forward(x)
	var y *tensor.Tensor
	if l.projector != nil {
		y = l.projector.Project(activated)
	} else {
		y = tensor.MatMulTransB(activated, l.BaseWeight.Tensor())
	}

	// Spline branch: basis of the raw input, flattened over (feature, basis).
	bases, basisGrad := evaluateBasis(x, l.knots, l.cfg.SplineOrder, keep)
	flat := bases.Reshape(batch, l.cfg.InFeatures*l.cfg.NumBasis())
	splineW := l.effectiveSplineWeight()
	y.AddInPlace(tensor.MatMulTransB(flat, splineW))

	trace := &LayerTrace{input: x, activated: activated, sum: y}
	if keep {
		trace.bases = flat
		trace.basisGrad = basisGrad.Reshape(flat.Shape()...)
		trace.splineW = splineW
	}
	if l.post == PostNormActivation {
		trace.normed = l.Norm.Forward(y)
		y = l.Act.Forward(trace.normed)
	}
	if !keep {
		return y, nil
	}
	return y, trace
}

// Backward accumulates parameter gradients for the pass recorded in trace and returns dL/dx.
//
// gradOut is dL/dy with the shape of the layer output.
func (l *Layer) Backward(trace *LayerTrace, gradOut *tensor.Tensor) *tensor.Tensor {
	if l.projector != nil {
		exceptions.Panicf("kan: layer %s has a replaced base projection and is inference only", l.cfg)
	}
	if trace == nil || trace.bases == nil {
		exceptions.Panicf("kan: Backward needs a trace from ForwardTrace")
	}
	if !gradOut.Shape().Equal(trace.sum.Shape()) {
		shapeMismatchf("layer %s: gradient shape %s, output shape %s", l.cfg, gradOut.Shape(), trace.sum.Shape())
	}

	gradSum := gradOut
	if l.post == PostNormActivation {
		gradSum = l.Norm.Backward(trace.sum, l.Act.Backward(trace.normed, gradOut))
	}

	// Base branch.
	tensor.MatMulTransAAccumulate(l.BaseWeight.GradBuffer(), gradSum, trace.activated)
	gradIn := l.activation.Backward(trace.input, tensor.MatMul(gradSum, l.BaseWeight.Tensor()))

	// Spline branch.
	out, in, nb := l.cfg.OutFeatures, l.cfg.InFeatures, l.cfg.NumBasis()
	if l.SplineScaler == nil {
		tensor.MatMulTransAAccumulate(l.SplineWeight.GradBuffer().Reshape(out, in*nb), gradSum, trace.bases)
	} else {
		gradEff := tensor.Zeros(tensor.Shape{out, in * nb})
		tensor.MatMulTransAAccumulate(gradEff, gradSum, trace.bases)
		l.accumulateScaledSplineGrads(gradEff)
	}

	gradBases := tensor.MatMul(gradSum, trace.splineW) // [batch, in*nb]
	gb, db, gx := gradBases.Data(), trace.basisGrad.Data(), gradIn.Data()
	for p := range gx {
		gx[p] += tensor.Dot(gb[p*nb:(p+1)*nb], db[p*nb:(p+1)*nb])
	}
	return gradIn
}

// accumulateScaledSplineGrads splits the gradient of spline_weight ⊙ spline_scaler into the
// gradients of its two factors.
func (l *Layer) accumulateScaledSplineGrads(gradEff *tensor.Tensor) {
	nb := l.cfg.NumBasis()
	w, scale := l.SplineWeight.Tensor().Data(), l.SplineScaler.Tensor().Data()
	dW, dScale := l.SplineWeight.GradBuffer().Data(), l.SplineScaler.GradBuffer().Data()
	g := gradEff.Data()
	for p, s := range scale {
		var sum float32
		for j := p * nb; j < (p+1)*nb; j++ {
			dW[j] += g[j] * s
			sum += g[j] * w[j]
		}
		dScale[p] += sum
	}
}
