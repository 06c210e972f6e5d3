package loader

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/tensor"
)

// MetaSplineOrder is the SafeTensors metadata key holding the spline order.
const MetaSplineOrder = "spline_order"

// ImportStack builds a stack from a SafeTensors file.
//
// Files written by ExportStack carry their architecture in the metadata. For other files the
// layer widths and grid sizes are inferred from the spline weight shapes, with the given
// splineOrder (<= 0 reads it from the "spline_order" metadata entry), and opts.SplineScaler
// and opts.PostProcess are derived from the tensors present.
func ImportStack(path string, splineOrder int, opts kan.Options) (*kan.Stack, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	names := r.TensorNames()
	mapper, err := DetectMapper(names)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	state := make(map[string]*tensor.Tensor, len(names))
	for _, name := range names {
		param, err := mapper.MapName(name)
		if err != nil {
			return nil, errors.WithMessage(err, path)
		}
		if state[param], err = r.LoadTensor(name); err != nil {
			return nil, err
		}
	}

	var configs []kan.LayerConfig
	if _, ok := r.Metadata()[kan.MetaLayers]; ok {
		// Written by ExportStack: the architecture is recorded.
		var saved kan.Options
		if configs, saved, err = kan.ParseConfigMetadata(r.Metadata()); err != nil {
			return nil, errors.WithMessage(err, path)
		}
		saved.Init, saved.Rand = opts.Init, opts.Rand
		opts = saved
	} else {
		if configs, err = inferConfigs(state, splineOrder, r.Metadata()); err != nil {
			return nil, errors.WithMessage(err, path)
		}
		_, opts.SplineScaler = state["layers.0.spline_scaler"]
		opts.PostProcess = kan.PostNone
		if _, ok := state["layers.0.norm.gamma"]; ok {
			opts.PostProcess = kan.PostNormActivation
		}
	}

	s, err := kan.New(configs, opts)
	if err != nil {
		return nil, err
	}
	if err := s.LoadStateDict(state); err != nil {
		return nil, errors.WithMessage(err, path)
	}
	klog.V(1).Infof("loader: imported %d layers from %s (%s naming)", len(configs), path, mapper.Scheme())
	return s, nil
}

// ExportStack writes the parameters of s with native names. The spline order goes to the
// metadata so ImportStack can read the file back on its own.
func ExportStack(path string, s *kan.Stack) error {
	cfg := s.Configs()[0]
	meta := kan.ConfigMetadata(s)
	meta[MetaSplineOrder] = strconv.Itoa(cfg.SplineOrder)
	return WriteSafeTensors(path, s.StateDict(), meta)
}

// inferConfigs derives the layer configurations from the spline weight shapes
// [out, in, grid_size+spline_order].
func inferConfigs(state map[string]*tensor.Tensor, splineOrder int, meta map[string]string) ([]kan.LayerConfig, error) {
	if splineOrder <= 0 {
		v, ok := meta[MetaSplineOrder]
		if !ok {
			return nil, errors.Wrap(kan.ErrConfiguration, "spline order not given and not in the metadata")
		}
		var err error
		if splineOrder, err = strconv.Atoi(v); err != nil {
			return nil, errors.Wrapf(kan.ErrConfiguration, "bad spline order %q", v)
		}
	}
	var configs []kan.LayerConfig
	for i := 0; ; i++ {
		w, ok := state[fmt.Sprintf("layers.%d.spline_weight", i)]
		if !ok {
			break
		}
		if w.Rank() != 3 || w.Dim(2) <= splineOrder {
			return nil, errors.Wrapf(kan.ErrShapeMismatch, "layer %d: spline weight %s does not fit order %d",
				i, w.Shape(), splineOrder)
		}
		configs = append(configs, kan.LayerConfig{
			InFeatures:  w.Dim(1),
			OutFeatures: w.Dim(0),
			GridSize:    w.Dim(2) - splineOrder,
			SplineOrder: splineOrder,
		})
	}
	if len(configs) == 0 {
		return nil, errors.Wrap(kan.ErrConfiguration, "no spline weights")
	}
	return configs, nil
}
