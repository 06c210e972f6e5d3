package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/tensor"
)

// createTestSafeTensorsFile writes a file by hand, as PyTorch tooling would, with the given
// raw tensors.
func createTestSafeTensorsFile(t *testing.T, path string, tensors map[string]SafeTensorInfo, data []byte, meta map[string]string) {
	t.Helper()
	header := SafeTensorsHeader{Metadata: meta, Tensors: tensors}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	buf = append(buf, data...)
	require.NoError(t, os.WriteFile(path, buf, 0o600))
}

func f32Bytes(values ...float32) []byte {
	var out []byte
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestSafeTensorsDTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtypes.safetensors")
	var data []byte
	data = append(data, f32Bytes(1.5, -2)...) // F32 [2]: 0..8
	data = binary.LittleEndian.AppendUint16(data, float16.Fromfloat32(0.25).Bits())
	data = binary.LittleEndian.AppendUint16(data, float16.Fromfloat32(-3).Bits())    // F16 [2]: 8..12
	data = binary.LittleEndian.AppendUint16(data, uint16(math.Float32bits(6.5)>>16)) // BF16 [1]: 12..14
	data = binary.LittleEndian.AppendUint64(data, math.Float64bits(0.125))           // F64 [1]: 14..22
	createTestSafeTensorsFile(t, path, map[string]SafeTensorInfo{
		"a": {DType: SafeTensorsF32, Shape: []int{2}, DataOffsets: [2]int64{0, 8}},
		"b": {DType: SafeTensorsF16, Shape: []int{2}, DataOffsets: [2]int64{8, 12}},
		"c": {DType: SafeTensorsBF16, Shape: []int{1}, DataOffsets: [2]int64{12, 14}},
		"d": {DType: SafeTensorsF64, Shape: []int{1}, DataOffsets: [2]int64{14, 22}},
	}, data, map[string]string{"format": "pt"})

	r, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, []string{"a", "b", "c", "d"}, r.TensorNames())
	assert.Equal(t, "pt", r.Metadata()["format"])

	want := map[string][]float32{"a": {1.5, -2}, "b": {0.25, -3}, "c": {6.5}, "d": {0.125}}
	for name, values := range want {
		got, err := r.LoadTensor(name)
		require.NoError(t, err, name)
		assert.Equal(t, values, got.Data(), name)
	}
	_, err = r.LoadTensor("missing")
	assert.Error(t, err)
}

func TestSafeTensorsRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "short.safetensors")
	createTestSafeTensorsFile(t, path, map[string]SafeTensorInfo{
		"w": {DType: SafeTensorsF32, Shape: []int{4}, DataOffsets: [2]int64{0, 16}},
	}, f32Bytes(1, 2), nil)
	_, err := NewSafeTensorsReader(path)
	assert.ErrorContains(t, err, "invalid data offsets")

	path = filepath.Join(dir, "int.safetensors")
	createTestSafeTensorsFile(t, path, map[string]SafeTensorInfo{
		"w": {DType: "I64", Shape: []int{1}, DataOffsets: [2]int64{0, 8}},
	}, make([]byte, 8), nil)
	_, err = NewSafeTensorsReader(path)
	assert.ErrorContains(t, err, "unsupported dtype")

	path = filepath.Join(dir, "huge.safetensors")
	require.NoError(t, os.WriteFile(path, binary.LittleEndian.AppendUint64(nil, 1<<40), 0o600))
	_, err = NewSafeTensorsReader(path)
	assert.ErrorContains(t, err, "too large")
}

func TestMappers(t *testing.T) {
	name, err := TorchKANMapper{}.MapName("spline_scalers.1")
	require.NoError(t, err)
	assert.Equal(t, "layers.1.spline_scaler", name)
	_, err = TorchKANMapper{}.MapName("grids.0")
	assert.Error(t, err)

	name, err = NativeMapper{}.MapName("model.layers.0.norm.gamma")
	require.NoError(t, err)
	assert.Equal(t, "layers.0.norm.gamma", name)

	m, err := DetectMapper([]string{"base_weights.0", "spline_weights.0"})
	require.NoError(t, err)
	assert.Equal(t, SchemeTorchKAN, m.Scheme())
	_, err = DetectMapper([]string{"encoder.weight"})
	assert.Error(t, err)
}

// TestImportTorchLayout imports a 3-5-2 network stored the way a PyTorch model with
// ParameterLists names its state dict.
func TestImportTorchLayout(t *testing.T) {
	const order = 3
	widths, grid := []int{3, 5, 2}, 4
	rng := rand.New(rand.NewPCG(5, 5))
	tensors := make(map[string]SafeTensorInfo)
	var data []byte
	add := func(name string, shape ...int) {
		n := 1
		for _, d := range shape {
			n *= d
		}
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(rng.NormFloat64() * 0.3)
		}
		start := int64(len(data))
		data = append(data, f32Bytes(values...)...)
		tensors[name] = SafeTensorInfo{DType: SafeTensorsF32, Shape: shape, DataOffsets: [2]int64{start, int64(len(data))}}
	}
	for i := 0; i < 2; i++ {
		in, out := widths[i], widths[i+1]
		add(fmt.Sprintf("base_weights.%d", i), out, in)
		add(fmt.Sprintf("spline_weights.%d", i), out, in, grid+order)
		add(fmt.Sprintf("spline_scalers.%d", i), out, in)
	}
	path := filepath.Join(t.TempDir(), "torch.safetensors")
	createTestSafeTensorsFile(t, path, tensors, data, map[string]string{MetaSplineOrder: "3"})

	s, err := ImportStack(path, 0, kan.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, s.Layers(), 2)
	assert.Equal(t, kan.LayerConfig{InFeatures: 3, OutFeatures: 5, GridSize: grid, SplineOrder: order}, s.Configs()[0])
	assert.NotNil(t, s.Layers()[1].SplineScaler)

	r, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	want, err := r.LoadTensor("spline_weights.1")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, want.Data(), s.Layers()[1].SplineWeight.Tensor().Data())

	// Without the metadata entry the order must be given.
	createTestSafeTensorsFile(t, path, tensors, data, nil)
	_, err = ImportStack(path, 0, kan.DefaultOptions())
	assert.True(t, errors.Is(err, kan.ErrConfiguration), "got %v", err)
	_, err = ImportStack(path, 2, kan.DefaultOptions())
	require.NoError(t, err, "order 2 reads the same shapes as grid 5")
}

func TestExportImportRoundTrip(t *testing.T) {
	configs, err := kan.UniformConfigs([]int{4, 6, 3}, 5, 2)
	require.NoError(t, err)
	opts := kan.DefaultOptions()
	opts.PostProcess = kan.PostNormActivation
	opts.GridRange = [2]float64{-2, 2}
	s, err := kan.New(configs, opts)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.safetensors")
	require.NoError(t, ExportStack(path, s))
	loaded, err := ImportStack(path, 0, kan.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, s.Configs(), loaded.Configs())
	assert.Equal(t, kan.PostNormActivation, loaded.Options().PostProcess)
	assert.Equal(t, [2]float64{-2, 2}, loaded.Options().GridRange)
	assert.Equal(t, s.Snapshot(), loaded.Snapshot())

	x := tensor.Full(tensor.Shape{2, 4}, 0.3)
	assert.Equal(t, s.Forward(x).Data(), loaded.Forward(x).Data())
}
