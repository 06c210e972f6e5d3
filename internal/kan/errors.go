package kan

import "github.com/pkg/errors"

// Sentinel errors. Returned errors wrap them, test with errors.Is.
var (
	// ErrConfiguration reports an invalid layer configuration or chaining, detected at construction.
	ErrConfiguration = errors.New("kan: invalid configuration")

	// ErrShapeMismatch reports an input whose shape disagrees with the layer it is fed to.
	ErrShapeMismatch = errors.New("kan: shape mismatch")
)

// shapeMismatchf panics with an error wrapping ErrShapeMismatch. TryForward converts it back.
func shapeMismatchf(format string, args ...any) {
	panic(errors.Wrapf(ErrShapeMismatch, format, args...))
}
