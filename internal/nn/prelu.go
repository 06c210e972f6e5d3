package nn

import (
	"github.com/gomlx/exceptions"

	"github.com/born-ml/kan/internal/tensor"
)

// DefaultPReLUSlope is the initial negative-side slope of PReLU.
const DefaultPReLUSlope = 0.25

// PReLU is a learned piecewise-linear activation with one negative-side slope per feature:
//
//	y = x       if x >= 0
//	y = a_i * x otherwise
type PReLU struct {
	Slope    *Parameter // [features]
	features int
}

// NewPReLU creates a PReLU over features with every slope set to DefaultPReLUSlope.
// The parameter is named "<prefix>slope".
func NewPReLU(prefix string, features int) *PReLU {
	return &PReLU{
		Slope:    NewParameter(prefix+"slope", tensor.Full(tensor.Shape{features}, DefaultPReLUSlope)),
		features: features,
	}
}

func (p *PReLU) check(x *tensor.Tensor) {
	if x.Rank() != 2 || x.Dim(1) != p.features {
		exceptions.Panicf("nn.PReLU: expected input [batch, %d], got %s", p.features, x.Shape())
	}
}

// Forward applies the activation.
func (p *PReLU) Forward(x *tensor.Tensor) *tensor.Tensor {
	p.check(x)
	out := tensor.Zeros(x.Shape())
	slope := p.Slope.Tensor().Data()
	for b := 0; b < x.Dim(0); b++ {
		row, dst := x.Row(b), out.Row(b)
		for i, v := range row {
			if v >= 0 {
				dst[i] = v
			} else {
				dst[i] = slope[i] * v
			}
		}
	}
	return out
}

// Backward accumulates the slope gradient and returns dL/dx.
func (p *PReLU) Backward(x, gradOut *tensor.Tensor) *tensor.Tensor {
	p.check(x)
	gradIn := tensor.Zeros(x.Shape())
	slope := p.Slope.Tensor().Data()
	dSlope := p.Slope.GradBuffer().Data()
	for b := 0; b < x.Dim(0); b++ {
		row, g, dst := x.Row(b), gradOut.Row(b), gradIn.Row(b)
		for i, v := range row {
			if v >= 0 {
				dst[i] = g[i]
			} else {
				dst[i] = g[i] * slope[i]
				dSlope[i] += g[i] * v
			}
		}
	}
	return gradIn
}

// Parameters returns the slope parameter.
func (p *PReLU) Parameters() []*Parameter {
	return []*Parameter{p.Slope}
}
