package nn

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/parallel"
	"github.com/born-ml/kan/internal/tensor"
)

// elementwiseConfig splits element-wise maps into large chunks; each element is cheap.
var elementwiseConfig = parallel.DefaultConfig().WithMinChunk(4096)

// Activation is a fixed (parameter free) element-wise nonlinearity.
type Activation int

// Supported activations.
const (
	Identity Activation = iota
	SiLU
	ReLU
	Tanh
	GELU
)

var activationNames = map[Activation]string{
	Identity: "identity",
	SiLU:     "silu",
	ReLU:     "relu",
	Tanh:     "tanh",
	GELU:     "gelu",
}

// String returns the lower-case activation name.
func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

// ParseActivation parses an activation name (case insensitive). "swish" is accepted for SiLU.
func ParseActivation(name string) (Activation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "swish" {
		return SiLU, nil
	}
	for a, n := range activationNames {
		if n == name {
			return a, nil
		}
	}
	return Identity, errors.Errorf("unknown activation %q", name)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Apply evaluates the activation at x.
func (a Activation) Apply(x float32) float32 {
	v := float64(x)
	switch a {
	case SiLU:
		return float32(v * sigmoid(v))
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case Tanh:
		return float32(math.Tanh(v))
	case GELU:
		return float32(0.5 * v * (1 + math.Erf(v/math.Sqrt2)))
	default:
		return x
	}
}

// Derivative evaluates the derivative of the activation at x.
func (a Activation) Derivative(x float32) float32 {
	v := float64(x)
	switch a {
	case SiLU:
		// d/dx x·σ(x) = σ(x)·(1 + x·(1-σ(x)))
		s := sigmoid(v)
		return float32(s * (1 + v*(1-s)))
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case Tanh:
		t := math.Tanh(v)
		return float32(1 - t*t)
	case GELU:
		cdf := 0.5 * (1 + math.Erf(v/math.Sqrt2))
		pdf := math.Exp(-0.5*v*v) / math.Sqrt(2*math.Pi)
		return float32(cdf + v*pdf)
	default:
		return 1
	}
}

// Forward applies the activation element-wise and returns a new tensor.
func (a Activation) Forward(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.Zeros(x.Shape())
	src, dst := x.Data(), out.Data()
	parallel.ForRange(len(src), func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = a.Apply(src[i])
		}
	}, elementwiseConfig)
	return out
}

// Backward returns gradOut ⊙ a'(x).
func (a Activation) Backward(x, gradOut *tensor.Tensor) *tensor.Tensor {
	gradIn := tensor.Zeros(x.Shape())
	src, g, dst := x.Data(), gradOut.Data(), gradIn.Data()
	parallel.ForRange(len(src), func(start, end int) {
		for i := start; i < end; i++ {
			dst[i] = g[i] * a.Derivative(src[i])
		}
	}, elementwiseConfig)
	return gradIn
}
