// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package kan provides Kolmogorov-Arnold Network layers.
//
// # Overview
//
// A KAN layer replaces the fixed activation of a dense layer by learned univariate functions:
// every (output, input) pair applies its own B-spline to the input, alongside a conventional
// base branch (a fixed activation followed by a linear map). For input x of shape [batch, in]:
//
//	y = silu(x) @ base_weightᵀ + flatten(B(x)) @ flatten(spline_weight ⊙ spline_scaler)ᵀ
//
// where B(x) are the B-spline basis functions of each input on a uniform knot grid.
//
// # Basic Usage
//
//	configs, _ := kan.UniformConfigs([]int{784, 64, 10}, 5, 3) // grid 5, cubic splines
//	model, err := kan.New(configs, kan.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	logits := model.Forward(images) // [batch, 784] -> [batch, 10]
//
// # Training
//
// Gradients are computed by an explicit backward pass over a recorded forward pass:
//
//	logits, trace := model.ForwardTrace(images)
//	loss, grad := criterion.Forward(logits, labels)
//	model.Backward(trace, grad) // accumulates into model.Parameters()
//	optimizer.Step()
//
// # Quantization
//
// After training, QuantizeDynamic converts the base weights to int8 for faster, smaller
// inference; the spline weights stay in float32:
//
//	quantized, report := kan.QuantizeDynamic(model)
//	err := kan.SaveQuantized("model_int8.born", quantized)
package kan
