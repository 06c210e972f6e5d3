package loader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Naming scheme names.
const (
	SchemeNative   = "native"
	SchemeTorchKAN = "torch_parameter_list"
)

// WeightMapper maps file-specific weight names to stack parameter names.
type WeightMapper interface {
	// MapName converts a file weight name to the stack parameter name, or returns an error
	// for names that belong to no parameter.
	MapName(name string) (string, error)

	// Scheme returns the naming scheme name.
	Scheme() string
}

// NativeMapper accepts this module's own names, optionally under a "model." prefix.
type NativeMapper struct{}

var nativeName = regexp.MustCompile(`^layers\.\d+\.(base_weight|spline_weight|spline_scaler|norm\.gamma|norm\.beta|act\.slope)$`)

// MapName strips an optional "model." prefix.
func (NativeMapper) MapName(name string) (string, error) {
	name = strings.TrimPrefix(name, "model.")
	if !nativeName.MatchString(name) {
		return "", errors.Errorf("unexpected weight %q", name)
	}
	return name, nil
}

func (NativeMapper) Scheme() string { return SchemeNative }

// TorchKANMapper maps the names of a PyTorch KAN that keeps its weights in ParameterLists:
//   - base_weights.{i}   -> layers.{i}.base_weight
//   - spline_weights.{i} -> layers.{i}.spline_weight
//   - spline_scalers.{i} -> layers.{i}.spline_scaler
type TorchKANMapper struct{}

var torchKANNames = map[string]string{
	"base_weights":   "base_weight",
	"spline_weights": "spline_weight",
	"spline_scalers": "spline_scaler",
}

// MapName converts a ParameterList name.
func (TorchKANMapper) MapName(name string) (string, error) {
	list, index, ok := strings.Cut(strings.TrimPrefix(name, "model."), ".")
	param, known := torchKANNames[list]
	if !ok || !known {
		return "", errors.Errorf("unexpected weight %q", name)
	}
	if _, err := strconv.Atoi(index); err != nil {
		return "", errors.Errorf("weight %q: bad layer index %q", name, index)
	}
	return fmt.Sprintf("layers.%s.%s", index, param), nil
}

func (TorchKANMapper) Scheme() string { return SchemeTorchKAN }

// DetectMapper picks the mapper that accepts the first weight name.
func DetectMapper(names []string) (WeightMapper, error) {
	if len(names) == 0 {
		return nil, errors.New("no weights")
	}
	for _, m := range []WeightMapper{NativeMapper{}, TorchKANMapper{}} {
		if _, err := m.MapName(names[0]); err == nil {
			return m, nil
		}
	}
	return nil, errors.Errorf("unrecognized weight naming, first weight is %q", names[0])
}
