package kan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/nn"
	"github.com/born-ml/kan/internal/tensor"
)

// ModelType is stored in the header of model files written by Save.
const ModelType = "KAN"

// Metadata keys describing a stack in a .born header.
const (
	MetaLayers         = "kan.layers" // "in,out,grid,order;in,out,grid,order;..."
	MetaBaseActivation = "kan.base_activation"
	MetaGridRange      = "kan.grid_range"
	MetaPostProcess    = "kan.post_process"
	MetaSplineScaler   = "kan.spline_scaler"
	MetaNormEpsilon    = "kan.norm_epsilon"
)

// StateDict returns every parameter tensor keyed by name. The tensors are shared, not copied.
func (s *Stack) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	for _, p := range s.Parameters() {
		state[p.Name()] = p.Tensor()
	}
	return state
}

// LoadStateDict copies values from state into the parameters. Every parameter must be present
// with its exact shape; extra entries are an error too.
func (s *Stack) LoadStateDict(state map[string]*tensor.Tensor) error {
	params := s.Parameters()
	if len(state) != len(params) {
		return errors.Errorf("state has %d tensors, stack has %d parameters", len(state), len(params))
	}
	for _, p := range params {
		t, ok := state[p.Name()]
		if !ok {
			return errors.Errorf("missing parameter %q", p.Name())
		}
		if !t.Shape().Equal(p.Tensor().Shape()) {
			return errors.Wrapf(ErrShapeMismatch, "parameter %q: got %s, want %s", p.Name(), t.Shape(), p.Tensor().Shape())
		}
	}
	for _, p := range params {
		p.Tensor().CopyFrom(state[p.Name()])
	}
	return nil
}

// Snapshot returns every parameter value concatenated in Parameters order.
func (s *Stack) Snapshot() []float32 {
	flat := make([]float32, 0, s.NumParameters())
	for _, p := range s.Parameters() {
		flat = append(flat, p.Tensor().Data()...)
	}
	return flat
}

// Restore loads a vector produced by Snapshot.
func (s *Stack) Restore(flat []float32) error {
	if len(flat) != s.NumParameters() {
		return errors.Wrapf(ErrShapeMismatch, "snapshot has %d values, stack has %d parameters", len(flat), s.NumParameters())
	}
	offset := 0
	for _, p := range s.Parameters() {
		n := copy(p.Tensor().Data(), flat[offset:])
		offset += n
	}
	return nil
}

// ConfigMetadata describes the stack's architecture as header metadata, so that FromCheckpoint
// can rebuild it.
func ConfigMetadata(s *Stack) map[string]string {
	layers := make([]string, len(s.layers))
	for i, l := range s.layers {
		c := l.cfg
		layers[i] = fmt.Sprintf("%d,%d,%d,%d", c.InFeatures, c.OutFeatures, c.GridSize, c.SplineOrder)
	}
	return map[string]string{
		MetaLayers:         strings.Join(layers, ";"),
		MetaBaseActivation: s.opts.BaseActivation.String(),
		MetaGridRange:      fmt.Sprintf("%g,%g", s.opts.GridRange[0], s.opts.GridRange[1]),
		MetaPostProcess:    s.opts.PostProcess.String(),
		MetaSplineScaler:   strconv.FormatBool(s.opts.SplineScaler),
		MetaNormEpsilon:    strconv.FormatFloat(s.opts.NormEpsilon, 'g', -1, 64),
	}
}

// ParseConfigMetadata is the inverse of ConfigMetadata. The returned options use the default
// initializer and have no random source set.
func ParseConfigMetadata(meta map[string]string) ([]LayerConfig, Options, error) {
	opts := DefaultOptions()
	layout, ok := meta[MetaLayers]
	if !ok {
		return nil, opts, errors.Wrapf(ErrConfiguration, "metadata has no %q entry", MetaLayers)
	}
	var configs []LayerConfig
	for i, entry := range strings.Split(layout, ";") {
		var c LayerConfig
		if _, err := fmt.Sscanf(entry, "%d,%d,%d,%d", &c.InFeatures, &c.OutFeatures, &c.GridSize, &c.SplineOrder); err != nil {
			return nil, opts, errors.Wrapf(ErrConfiguration, "layer %d: cannot parse %q: %v", i, entry, err)
		}
		configs = append(configs, c)
	}

	var err error
	if v, ok := meta[MetaBaseActivation]; ok {
		if opts.BaseActivation, err = nn.ParseActivation(v); err != nil {
			return nil, opts, errors.Wrap(ErrConfiguration, err.Error())
		}
	}
	if v, ok := meta[MetaGridRange]; ok {
		if _, err := fmt.Sscanf(v, "%g,%g", &opts.GridRange[0], &opts.GridRange[1]); err != nil {
			return nil, opts, errors.Wrapf(ErrConfiguration, "cannot parse grid range %q", v)
		}
	}
	if v, ok := meta[MetaPostProcess]; ok {
		if opts.PostProcess, err = ParsePostProcess(v); err != nil {
			return nil, opts, err
		}
	}
	if v, ok := meta[MetaSplineScaler]; ok {
		if opts.SplineScaler, err = strconv.ParseBool(v); err != nil {
			return nil, opts, errors.Wrapf(ErrConfiguration, "cannot parse spline scaler flag %q", v)
		}
	}
	if v, ok := meta[MetaNormEpsilon]; ok {
		if opts.NormEpsilon, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, opts, errors.Wrapf(ErrConfiguration, "cannot parse norm epsilon %q", v)
		}
	}
	return configs, opts, nil
}

// Save writes the stack parameters and architecture to path. With halfPrecision the weights are
// stored as float16.
func Save(path string, s *Stack, halfPrecision bool) error {
	return nn.SaveModel(path, ModelType, s, ConfigMetadata(s), halfPrecision)
}

// FromCheckpoint rebuilds a stack from a model or checkpoint file written by Save or by
// nn.Checkpoint with ConfigMetadata. Optimizer state in the file is ignored.
func FromCheckpoint(path string) (*Stack, error) {
	_, meta, err := nn.ReadModelMetadata(path)
	if err != nil {
		return nil, err
	}
	configs, opts, err := ParseConfigMetadata(meta)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", path)
	}
	s, err := New(configs, opts)
	if err != nil {
		return nil, err
	}
	if _, err := nn.LoadCheckpoint(path, s, nil); err != nil {
		return nil, err
	}
	return s, nil
}
