// Package loader imports and exports KAN weights in the SafeTensors format.
//
// This package wraps the internal loader implementation and exports a clean public API.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/kan/kan"
//	    "github.com/born-ml/kan/loader"
//	)
//
//	// Weights saved from PyTorch (base_weights.0, spline_weights.0, ...), cubic splines.
//	model, err := loader.ImportStack("kan.safetensors", 3, kan.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits := model.Forward(images)
package loader

import (
	"github.com/born-ml/kan/internal/kan"
	"github.com/born-ml/kan/internal/loader"
)

// SafeTensorsReader reads SafeTensors format files.
type SafeTensorsReader = loader.SafeTensorsReader

// NewSafeTensorsReader opens a SafeTensors file.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	return loader.NewSafeTensorsReader(path)
}

// ImportStack builds a stack from a SafeTensors file. splineOrder <= 0 reads it from the
// file metadata.
func ImportStack(path string, splineOrder int, opts kan.Options) (*kan.Stack, error) {
	return loader.ImportStack(path, splineOrder, opts)
}

// ExportStack writes the parameters and architecture of s as SafeTensors.
func ExportStack(path string, s *kan.Stack) error {
	return loader.ExportStack(path, s)
}
