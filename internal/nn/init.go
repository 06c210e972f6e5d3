package nn

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/tensor"
)

// Initializer creates a tensor of the given shape filled with initial values drawn from rng.
//
// Fan-in is taken as NumElements/shape[0], the convention for weights stored
// [out_features, in_features, ...].
type Initializer func(shape tensor.Shape, rng *rand.Rand) *tensor.Tensor

func fans(shape tensor.Shape) (fanIn, fanOut int) {
	if len(shape) < 2 {
		n := shape.NumElements()
		return n, n
	}
	receptive := shape.NumElements() / (shape[0] * shape[1])
	return shape[1] * receptive, shape[0] * receptive
}

func uniform(shape tensor.Shape, bound float64, rng *rand.Rand) *tensor.Tensor {
	t := tensor.Zeros(shape)
	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// KaimingUniform (He) initialization for weights followed by a ReLU-like nonlinearity.
//
// Values are drawn from U(-bound, bound) with bound = sqrt(6 / fan_in).
func KaimingUniform() Initializer {
	return func(shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
		fanIn, _ := fans(shape)
		return uniform(shape, math.Sqrt(6.0/float64(fanIn)), rng)
	}
}

// XavierUniform (Glorot) initialization.
//
// Values are drawn from U(-bound, bound) with bound = sqrt(6 / (fan_in + fan_out)).
func XavierUniform() Initializer {
	return func(shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
		fanIn, fanOut := fans(shape)
		return uniform(shape, math.Sqrt(6.0/float64(fanIn+fanOut)), rng)
	}
}

// Normal draws values from N(0, std²).
func Normal(std float64) Initializer {
	return func(shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
		t := tensor.Zeros(shape)
		data := t.Data()
		for i := range data {
			data[i] = float32(rng.NormFloat64() * std)
		}
		return t
	}
}

// Constant fills the tensor with value.
func Constant(value float32) Initializer {
	return func(shape tensor.Shape, _ *rand.Rand) *tensor.Tensor {
		return tensor.Full(shape, value)
	}
}

// InitializerByName returns the initializer registered under name:
// "kaiming_uniform", "xavier_uniform" or "normal" (std 0.1).
func InitializerByName(name string) (Initializer, error) {
	switch strings.ToLower(name) {
	case "kaiming_uniform", "kaiming", "he":
		return KaimingUniform(), nil
	case "xavier_uniform", "xavier", "glorot":
		return XavierUniform(), nil
	case "normal":
		return Normal(0.1), nil
	}
	return nil, errors.Errorf("unknown initializer %q", name)
}
