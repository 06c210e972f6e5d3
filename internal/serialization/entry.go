package serialization

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/born-ml/kan/internal/tensor"
)

// Data type string constants for serialization.
const (
	DTypeFloat32 = "float32"
	DTypeFloat16 = "float16"
	DTypeInt8    = "int8"
)

// dtypeSize returns the element size in bytes, or 0 for unknown dtypes.
func dtypeSize(dtype string) int {
	switch dtype {
	case DTypeFloat32:
		return 4
	case DTypeFloat16:
		return 2
	case DTypeInt8:
		return 1
	default:
		return 0
	}
}

// Entry is one named tensor as stored on disk: its dtype, shape and little-endian bytes.
type Entry struct {
	DType string
	Shape tensor.Shape
	Data  []byte
}

// Float32Entry encodes t at full precision.
func Float32Entry(t *tensor.Tensor) Entry {
	values := t.Data()
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return Entry{DType: DTypeFloat32, Shape: t.Shape().Clone(), Data: data}
}

// Float16Entry encodes t as IEEE half precision. Values outside the float16 range saturate
// to ±Inf, so this is meant for weights, not for optimizer moments.
func Float16Entry(t *tensor.Tensor) Entry {
	values := t.Data()
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(v).Bits())
	}
	return Entry{DType: DTypeFloat16, Shape: t.Shape().Clone(), Data: data}
}

// Int8Entry encodes quantized values.
func Int8Entry(values []int8, shape tensor.Shape) Entry {
	data := make([]byte, len(values))
	for i, v := range values {
		data[i] = byte(v)
	}
	return Entry{DType: DTypeInt8, Shape: shape.Clone(), Data: data}
}

// NumElements returns the number of elements described by the entry's shape.
func (e Entry) NumElements() int {
	return e.Shape.NumElements()
}

func (e Entry) check() error {
	size := dtypeSize(e.DType)
	if size == 0 {
		return errors.Wrapf(ErrUnsupportedDType, "%q", e.DType)
	}
	if len(e.Data) != size*e.NumElements() {
		return errors.Errorf("entry of dtype %s and shape %s should have %d bytes, got %d",
			e.DType, e.Shape, size*e.NumElements(), len(e.Data))
	}
	return nil
}

// Tensor decodes a float32 or float16 entry into a float32 tensor.
func (e Entry) Tensor() (*tensor.Tensor, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	values := make([]float32, e.NumElements())
	switch e.DType {
	case DTypeFloat32:
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(e.Data[4*i:]))
		}
	case DTypeFloat16:
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(e.Data[2*i:])).Float32()
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedDType, "cannot decode %s as float32 tensor", e.DType)
	}
	return tensor.FromSlice(values, e.Shape)
}

// Int8 decodes an int8 entry.
func (e Entry) Int8() ([]int8, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if e.DType != DTypeInt8 {
		return nil, errors.Wrapf(ErrUnsupportedDType, "cannot decode %s as int8", e.DType)
	}
	values := make([]int8, len(e.Data))
	for i, b := range e.Data {
		values[i] = int8(b)
	}
	return values, nil
}
