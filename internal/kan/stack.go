package kan

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// Stack is an ordered sequence of KAN layers. Its output is the last layer's output, with no
// final activation (raw logits for a downstream loss).
//
// A Stack is a pure function of its parameters and input: no global state is read.
// Forward passes may run concurrently with each other, but not with parameter updates.
type Stack struct {
	layers []*Layer
	opts   Options
}

// New builds a stack from per-layer configurations. Layer i's parameters are named
// "layers.<i>.<name>".
//
// Returns an error wrapping ErrConfiguration if a configuration is invalid or if the output
// width of a layer differs from the input width of the next one.
func New(configs []LayerConfig, opts Options) (*Stack, error) {
	if len(configs) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "a stack needs at least one layer")
	}
	for i := 1; i < len(configs); i++ {
		if configs[i-1].OutFeatures != configs[i].InFeatures {
			return nil, errors.Wrapf(ErrConfiguration, "layer %d outputs %d features but layer %d takes %d",
				i-1, configs[i-1].OutFeatures, i, configs[i].InFeatures)
		}
	}

	opts = opts.withDefaults()
	s := &Stack{opts: opts}
	for i, cfg := range configs {
		layer, err := newLayer(fmt.Sprintf("layers.%d.", i), cfg, opts, opts.Rand)
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		s.layers = append(s.layers, layer)
	}
	klog.V(1).Infof("kan: built %d-layer stack, %s parameters", len(s.layers), humanize.Comma(int64(s.NumParameters())))
	return s, nil
}

// Layers returns the layers in order.
func (s *Stack) Layers() []*Layer {
	return s.layers
}

// Configs returns the layer configurations in order.
func (s *Stack) Configs() []LayerConfig {
	configs := make([]LayerConfig, len(s.layers))
	for i, l := range s.layers {
		configs[i] = l.cfg
	}
	return configs
}

// Options returns the options the stack was built with.
func (s *Stack) Options() Options {
	return s.opts
}

// InFeatures returns the input width of the first layer.
func (s *Stack) InFeatures() int {
	return s.layers[0].cfg.InFeatures
}

// OutFeatures returns the output width of the last layer.
func (s *Stack) OutFeatures() int {
	return s.layers[len(s.layers)-1].cfg.OutFeatures
}

// Forward threads x [batch, in] through every layer and returns [batch, out].
//
// Panics with an error wrapping ErrShapeMismatch if x does not fit the first layer.
// See TryForward for an error-returning version.
func (s *Stack) Forward(x *tensor.Tensor) *tensor.Tensor {
	for _, l := range s.layers {
		x = l.Forward(x)
	}
	return x
}

// TryForward is Forward returning errors instead of panicking.
func (s *Stack) TryForward(x *tensor.Tensor) (y *tensor.Tensor, err error) {
	err = exceptions.TryCatch[error](func() {
		y = s.Forward(x)
	})
	return y, err
}

// Trace records a stack forward pass for Backward.
type Trace struct {
	layers []*LayerTrace
}

// ForwardTrace is Forward, also returning what Backward needs.
func (s *Stack) ForwardTrace(x *tensor.Tensor) (*tensor.Tensor, *Trace) {
	trace := &Trace{layers: make([]*LayerTrace, len(s.layers))}
	for i, l := range s.layers {
		x, trace.layers[i] = l.ForwardTrace(x)
	}
	return x, trace
}

// Backward accumulates the gradients of every parameter for the pass recorded in trace and
// returns dL/dx. gradOut is dL/d(output).
func (s *Stack) Backward(trace *Trace, gradOut *tensor.Tensor) *tensor.Tensor {
	if trace == nil || len(trace.layers) != len(s.layers) {
		exceptions.Panicf("kan: Backward needs a trace from this stack's ForwardTrace")
	}
	grad := gradOut
	for i := len(s.layers) - 1; i >= 0; i-- {
		grad = s.layers[i].Backward(trace.layers[i], grad)
	}
	return grad
}

// Parameters returns the trainable parameters of all layers, layer by layer.
func (s *Stack) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// ZeroGrad clears all parameter gradients.
func (s *Stack) ZeroGrad() {
	nn.ZeroGrad(s)
}

// NumParameters returns the number of scalar parameters.
func (s *Stack) NumParameters() int {
	return nn.NumParameters(s)
}

// WithBaseProjectors returns an inference copy of the stack whose base branches are computed
// by the projectors fn returns. Layers for which fn returns nil keep their dense base weight.
// All other parameters are shared with s.
func (s *Stack) WithBaseProjectors(fn func(index int, layer *Layer) BaseProjector) *Stack {
	out := &Stack{opts: s.opts, layers: make([]*Layer, len(s.layers))}
	for i, l := range s.layers {
		clone := *l
		if p := fn(i, l); p != nil {
			clone.projector = p
		}
		out.layers[i] = &clone
	}
	return out
}
