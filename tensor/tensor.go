// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/kan/internal/tensor"

// Shape is the size of each dimension of a tensor.
type Shape = tensor.Shape

// Tensor is a dense row-major float32 tensor.
type Tensor = tensor.Tensor

// Zeros creates a tensor of the given shape filled with zeros.
// Panics if a dimension is not positive.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Full creates a tensor of the given shape filled with value.
func Full(shape Shape, value float32) *Tensor {
	return tensor.Full(shape, value)
}

// FromSlice wraps data (without copying) in a tensor of the given shape.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// FromRows copies equally long rows into a [len(rows), len(rows[0])] tensor.
func FromRows(rows [][]float32) (*Tensor, error) {
	return tensor.FromRows(rows)
}

// MatMul computes a @ b for a [m, k] and b [k, n].
func MatMul(a, b *Tensor) *Tensor {
	return tensor.MatMul(a, b)
}
