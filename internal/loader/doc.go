// Package loader moves KAN weights between this module and the SafeTensors format used by
// PyTorch and Hugging Face tooling.
//
// SafeTensors files hold named tensors behind a JSON header and nothing else, so the layer
// configuration is inferred from the weight shapes; only the spline order, which the shapes
// cannot tell apart from the grid size, must be given (or stored in the metadata).
//
// Two naming schemes are recognized:
//   - this module's own: layers.{i}.base_weight, layers.{i}.spline_weight, ...
//   - a PyTorch KAN holding its weights in ParameterLists: base_weights.{i},
//     spline_weights.{i}, spline_scalers.{i}
//
// Example:
//
//	stack, err := loader.ImportStack("kan.safetensors", 3, kan.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = loader.ExportStack("kan_trained.safetensors", stack)
package loader
