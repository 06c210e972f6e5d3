// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float32 tensors KAN models consume and produce.
//
// # Overview
//
// Tensors are row-major float32 buffers with a shape. Models take [batch, features] inputs
// and return [batch, outputs] tensors:
//
//	x, err := tensor.FromRows([][]float32{
//	    {0.1, -0.4, 0.9},
//	    {0.0, 0.5, -1.0},
//	})
//	y := model.Forward(x)
//	predictions := y.ArgMaxRows()
//
// Matrix products run in parallel over output rows on all CPU cores.
package tensor
