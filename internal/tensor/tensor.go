// Package tensor implements the dense, row-major float32 tensor the KAN layers compute on.
//
// It is deliberately small: the layers only need contiguous storage, shape bookkeeping and a
// handful of matrix kernels (see matmul.go). Views created by Reshape share storage with the
// original tensor.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Tensor is a dense float32 tensor stored in row-major order.
type Tensor struct {
	shape Shape
	data  []float32
}

// Zeros creates a zero-filled tensor.
//
// Panics if the shape has a non-positive dimension: shapes come from layer configuration,
// which is validated at construction.
func Zeros(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		exceptions.Panicf("tensor.Zeros: %v", err)
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, shape.NumElements()),
	}
}

// Full creates a tensor with every element set to value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	t.Fill(value)
	return t
}

// FromSlice wraps data (without copying) as a tensor of the given shape.
//
// Returns an error if the shape is invalid or does not match len(data).
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, errors.Errorf("tensor.FromSlice: shape %s needs %d elements, got %d",
			shape, shape.NumElements(), len(data))
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// FromRows builds a 2D tensor [len(rows), len(rows[0])] by copying rows.
func FromRows(rows [][]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return nil, errors.Errorf("tensor.FromRows: no rows")
	}
	cols := len(rows[0])
	data := make([]float32, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.Errorf("tensor.FromRows: row %d has %d columns, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return FromSlice(data, Shape{len(rows), cols})
}

// Shape returns the tensor shape. The returned slice must not be modified.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// NumElements returns the number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying storage.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Row returns row i of a 2D tensor as a slice sharing storage.
func (t *Tensor) Row(i int) []float32 {
	cols := t.shape[len(t.shape)-1]
	return t.data[i*cols : (i+1)*cols]
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offset(idx)]
}

// Set stores value at the given multi-dimensional index.
func (t *Tensor) Set(value float32, idx ...int) {
	t.data[t.offset(idx)] = value
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		exceptions.Panicf("tensor: index %v has rank %d, tensor shape is %s", idx, len(idx), t.shape)
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			exceptions.Panicf("tensor: index %v out of range for shape %s", idx, t.shape)
		}
		off = off*t.shape[i] + v
	}
	return off
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.data))
	copy(data, t.data)
	return &Tensor{shape: t.shape.Clone(), data: data}
}

// Reshape returns a view with a new shape over the same storage.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := Shape(dims)
	if shape.NumElements() != len(t.data) {
		exceptions.Panicf("tensor.Reshape: cannot reshape %s into %s", t.shape, shape)
	}
	return &Tensor{shape: shape.Clone(), data: t.data}
}

// Fill sets every element to value.
func (t *Tensor) Fill(value float32) {
	for i := range t.data {
		t.data[i] = value
	}
}

// Zero sets every element to zero.
func (t *Tensor) Zero() {
	clear(t.data)
}

// CopyFrom copies other's elements into t. Shapes must hold the same number of elements.
func (t *Tensor) CopyFrom(other *Tensor) {
	if len(other.data) != len(t.data) {
		exceptions.Panicf("tensor.CopyFrom: %s vs %s", t.shape, other.shape)
	}
	copy(t.data, other.data)
}

// AddInPlace accumulates other into t element-wise.
func (t *Tensor) AddInPlace(other *Tensor) {
	if !t.shape.Equal(other.shape) {
		exceptions.Panicf("tensor.AddInPlace: shape mismatch %s vs %s", t.shape, other.shape)
	}
	for i, v := range other.data {
		t.data[i] += v
	}
}

// Scale multiplies every element by factor in place.
func (t *Tensor) Scale(factor float32) {
	for i := range t.data {
		t.data[i] *= factor
	}
}

// AllFinite reports whether no element is NaN or ±Inf.
func (t *Tensor) AllFinite() bool {
	for _, v := range t.data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ArgMaxRows returns, for a 2D tensor, the column index of the maximum of each row.
func (t *Tensor) ArgMaxRows() []int {
	if len(t.shape) != 2 {
		exceptions.Panicf("tensor.ArgMaxRows: expected 2D tensor, got shape %s", t.shape)
	}
	out := make([]int, t.shape[0])
	for i := range out {
		row := t.Row(i)
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// String returns a short description, including the values for small tensors.
func (t *Tensor) String() string {
	if len(t.data) > 16 {
		return fmt.Sprintf("Tensor%s", t.shape)
	}
	parts := make([]string, len(t.data))
	for i, v := range t.data {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("Tensor%s[%s]", t.shape, strings.Join(parts, " "))
}
