package quant

import (
	"github.com/pkg/errors"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/serialization"
	"github.com/born-ml/kan/internal/tensor"
)

// ModelType identifies quantized stacks in the file header.
const ModelType = "KAN-int8"

// MetaScheme records the quantization scheme in the header metadata.
const MetaScheme = "quant.scheme"

// Scheme is the only scheme implemented.
const Scheme = "int8-symmetric-per-row"

// Tensor name suffixes replacing "base_weight" for quantized layers.
const (
	suffixWeights = ".q"
	suffixScales  = ".scale"
)

// Save writes a stack returned by QuantizeDynamic. Quantized base weights are stored as int8
// values plus float32 scales under "<name>.q" and "<name>.scale"; every other parameter is
// stored at float32.
func Save(path string, s *kan.Stack) error {
	entries := make(map[string]serialization.Entry)
	quantized := 0
	for _, layer := range s.Layers() {
		q, _ := layer.BaseProjector().(*Linear)
		for _, p := range layer.Parameters() {
			if p == layer.BaseWeight && q != nil {
				entries[p.Name()+suffixWeights] = serialization.Int8Entry(q.Weights(), q.Shape())
				scales, err := tensor.FromSlice(q.Scales(), tensor.Shape{len(q.Scales())})
				if err != nil {
					return err
				}
				entries[p.Name()+suffixScales] = serialization.Float32Entry(scales)
				quantized++
				continue
			}
			entries[p.Name()] = serialization.Float32Entry(p.Tensor())
		}
	}
	if quantized == 0 {
		return errors.New("quant.Save: stack has no quantized layer, use kan.Save")
	}

	meta := kan.ConfigMetadata(s)
	meta[MetaScheme] = Scheme
	header := serialization.Header{ModelType: ModelType, Metadata: meta}
	if err := serialization.WriteFile(path, entries, header); err != nil {
		return errors.Wrap(err, "failed to write quantized model")
	}
	return nil
}

// Load reads a file written by Save and returns the quantized stack. The dense base weights
// of the returned stack hold the dequantized values.
func Load(path string) (*kan.Stack, error) {
	r, err := serialization.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	if mt := r.Header().ModelType; mt != ModelType {
		return nil, errors.Errorf("%s: model type %q is not %q", path, mt, ModelType)
	}
	if scheme := r.Metadata()[MetaScheme]; scheme != Scheme {
		return nil, errors.Errorf("%s: unsupported quantization scheme %q", path, scheme)
	}
	configs, opts, err := kan.ParseConfigMetadata(r.Metadata())
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", path)
	}
	s, err := kan.New(configs, opts)
	if err != nil {
		return nil, err
	}

	projectors := make([]*Linear, len(s.Layers()))
	for i, layer := range s.Layers() {
		for _, p := range layer.Parameters() {
			if p == layer.BaseWeight {
				q, err := readLinear(r, p.Name(), p.Tensor().Shape())
				if err != nil {
					return nil, err
				}
				p.Tensor().CopyFrom(q.Dequantize())
				projectors[i] = q
				continue
			}
			entry, err := r.Entry(p.Name())
			if err != nil {
				return nil, err
			}
			t, err := entry.Tensor()
			if err != nil {
				return nil, errors.Wrapf(err, "tensor %q", p.Name())
			}
			if !t.Shape().Equal(p.Tensor().Shape()) {
				return nil, errors.Wrapf(kan.ErrShapeMismatch, "parameter %q: got %s, want %s",
					p.Name(), t.Shape(), p.Tensor().Shape())
			}
			p.Tensor().CopyFrom(t)
		}
	}
	return s.WithBaseProjectors(func(index int, _ *kan.Layer) kan.BaseProjector {
		return projectors[index]
	}), nil
}

func readLinear(r *serialization.Reader, name string, shape tensor.Shape) (*Linear, error) {
	wEntry, err := r.Entry(name + suffixWeights)
	if err != nil {
		return nil, err
	}
	weights, err := wEntry.Int8()
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q", name+suffixWeights)
	}
	sEntry, err := r.Entry(name + suffixScales)
	if err != nil {
		return nil, err
	}
	scales, err := sEntry.Tensor()
	if err != nil {
		return nil, errors.Wrapf(err, "tensor %q", name+suffixScales)
	}
	if !wEntry.Shape.Equal(shape) || scales.NumElements() != shape[0] {
		return nil, errors.Wrapf(kan.ErrShapeMismatch, "quantized %q: weights %s, %d scales, want %s",
			name, wEntry.Shape, scales.NumElements(), shape)
	}
	return NewLinear(weights, scales.Data(), shape[0], shape[1]), nil
}
