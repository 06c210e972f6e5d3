// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package kan

import (
	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/quant"
	"github.com/born-ml/kan/internal/tensor"
)

// Errors returned (or panicked, by Forward) by layers and stacks.
var (
	ErrConfiguration = kan.ErrConfiguration
	ErrShapeMismatch = kan.ErrShapeMismatch
)

// Configuration

// LayerConfig describes one layer: its widths, grid size and spline order.
type LayerConfig = kan.LayerConfig

// Options apply to every layer of a stack.
type Options = kan.Options

// PostProcess selects what a layer applies after summing its two branches.
type PostProcess = kan.PostProcess

// Post-processing variants.
const (
	PostNone           = kan.PostNone
	PostNormActivation = kan.PostNormActivation
)

// DefaultOptions returns SiLU base activation, grid range [-1, 1], Kaiming uniform
// initialization, spline scalers on and no post-processing.
func DefaultOptions() Options {
	return kan.DefaultOptions()
}

// UniformConfigs chains layers through widths, all with the same grid size and spline order.
//
// Example:
//
//	configs, err := kan.UniformConfigs([]int{784, 64, 10}, 5, 3)
func UniformConfigs(widths []int, gridSize, splineOrder int) ([]LayerConfig, error) {
	return kan.UniformConfigs(widths, gridSize, splineOrder)
}

// Splines

// BuildGrid returns the extended uniform knot vector of gridSize intervals over [lo, hi],
// with splineOrder extra knots on each side.
func BuildGrid(lo, hi float64, gridSize, splineOrder int) ([]float64, error) {
	return kan.BuildGrid(lo, hi, gridSize, splineOrder)
}

// BSplineBasis evaluates the basis functions of x [batch, in] on knots, returning
// [batch, in, len(knots)-1-splineOrder].
func BSplineBasis(x *tensor.Tensor, knots []float64, splineOrder int) *tensor.Tensor {
	return kan.BSplineBasis(x, knots, splineOrder)
}

// Layers

// Layer is one KAN layer.
type Layer = kan.Layer

// NewLayer creates a standalone layer.
func NewLayer(cfg LayerConfig, opts Options) (*Layer, error) {
	return kan.NewLayer(cfg, opts)
}

// Stack is an ordered sequence of layers.
type Stack = kan.Stack

// New builds a stack, checking that consecutive layers chain.
func New(configs []LayerConfig, opts Options) (*Stack, error) {
	return kan.New(configs, opts)
}

// Persistence

// Save writes the parameters and architecture of s. With halfPrecision the weights are
// stored as float16.
func Save(path string, s *Stack, halfPrecision bool) error {
	return kan.Save(path, s, halfPrecision)
}

// Load rebuilds a stack saved by Save or checkpointed during training.
func Load(path string) (*Stack, error) {
	return kan.FromCheckpoint(path)
}

// Quantization

// QuantizationReport summarizes a QuantizeDynamic pass.
type QuantizationReport = quant.Report

// QuantizeDynamic returns an inference-only copy of s with int8 base weights.
func QuantizeDynamic(s *Stack) (*Stack, *QuantizationReport) {
	return quant.QuantizeDynamic(s)
}

// SaveQuantized writes a stack returned by QuantizeDynamic.
func SaveQuantized(path string, s *Stack) error {
	return quant.Save(path, s)
}

// LoadQuantized reads a stack written by SaveQuantized.
func LoadQuantized(path string) (*Stack, error) {
	return quant.Load(path)
}
