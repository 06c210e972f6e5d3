package kan

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/nn"
)

// LayerConfig is the immutable configuration of one KAN layer.
type LayerConfig struct {
	InFeatures  int
	OutFeatures int
	GridSize    int // Number of grid intervals inside the grid range
	SplineOrder int // Polynomial degree of the basis (3 = cubic)
}

// NumBasis returns GridSize+SplineOrder, the number of basis functions per input feature.
func (c LayerConfig) NumBasis() int {
	return c.GridSize + c.SplineOrder
}

// Validate checks the widths and spline parameters.
func (c LayerConfig) Validate() error {
	switch {
	case c.InFeatures <= 0 || c.OutFeatures <= 0:
		return errors.Wrapf(ErrConfiguration, "layer widths must be positive, got %d->%d", c.InFeatures, c.OutFeatures)
	case c.GridSize <= 0:
		return errors.Wrapf(ErrConfiguration, "grid size must be positive, got %d", c.GridSize)
	case c.SplineOrder < 0:
		return errors.Wrapf(ErrConfiguration, "spline order must be non-negative, got %d", c.SplineOrder)
	}
	return nil
}

func (c LayerConfig) String() string {
	return fmt.Sprintf("%d->%d (grid %d, order %d)", c.InFeatures, c.OutFeatures, c.GridSize, c.SplineOrder)
}

// UniformConfigs builds the layer configurations of a stack with the given widths, all with
// the same grid size and spline order. widths must hold at least two values.
func UniformConfigs(widths []int, gridSize, splineOrder int) ([]LayerConfig, error) {
	if len(widths) < 2 {
		return nil, errors.Wrapf(ErrConfiguration, "need at least 2 widths, got %v", widths)
	}
	configs := make([]LayerConfig, len(widths)-1)
	for i := range configs {
		configs[i] = LayerConfig{
			InFeatures:  widths[i],
			OutFeatures: widths[i+1],
			GridSize:    gridSize,
			SplineOrder: splineOrder,
		}
	}
	return configs, nil
}

// PostProcess selects what a layer applies after summing its base and spline branches.
type PostProcess int

const (
	// PostNone passes the sum through unchanged.
	PostNone PostProcess = iota

	// PostNormActivation applies LayerNorm over the output features followed by a PReLU.
	PostNormActivation
)

func (p PostProcess) String() string {
	switch p {
	case PostNone:
		return "none"
	case PostNormActivation:
		return "norm_activation"
	}
	return fmt.Sprintf("PostProcess(%d)", int(p))
}

// ParsePostProcess parses the names produced by PostProcess.String.
func ParsePostProcess(name string) (PostProcess, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return PostNone, nil
	case "norm_activation", "norm":
		return PostNormActivation, nil
	}
	return PostNone, errors.Wrapf(ErrConfiguration, "unknown post-processing %q", name)
}

// DefaultSeed seeds parameter initialization when Options.Rand is nil.
const DefaultSeed = 42

// Options apply to every layer of a stack.
type Options struct {
	// BaseActivation is applied to the raw input before the base projection.
	BaseActivation nn.Activation

	// GridRange is the [lo, hi] range covered by the interior grid intervals.
	GridRange [2]float64

	// Init initializes base weights, spline weights and spline scalers.
	Init nn.Initializer

	// PostProcess is applied to the layer output.
	PostProcess PostProcess

	// SplineScaler enables the per (output, input) scaler of the spline weights.
	SplineScaler bool

	// NormEpsilon is the LayerNorm epsilon, used with PostNormActivation.
	NormEpsilon float64

	// Rand drives initialization. If nil, a generator seeded with DefaultSeed is used.
	Rand *rand.Rand
}

// DefaultOptions returns SiLU base activation, grid range [-1, 1], Kaiming uniform
// initialization, spline scalers on and no post-processing.
func DefaultOptions() Options {
	return Options{
		BaseActivation: nn.SiLU,
		GridRange:      [2]float64{-1, 1},
		Init:           nn.KaimingUniform(),
		PostProcess:    PostNone,
		SplineScaler:   true,
		NormEpsilon:    1e-5,
	}
}

// withDefaults fills unset fields that have no meaningful zero value.
func (o Options) withDefaults() Options {
	if o.Init == nil {
		o.Init = nn.KaimingUniform()
	}
	if o.NormEpsilon <= 0 {
		o.NormEpsilon = 1e-5
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(DefaultSeed, DefaultSeed))
	}
	return o
}
