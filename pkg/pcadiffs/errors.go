package pcadiffs

import (
	"errors"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
)

var (
	// ErrDimensionMismatch reports inconsistent shapes between the samples,
	// the model, or a caller supplied output buffer. Nothing is computed.
	ErrDimensionMismatch = pca.ErrDimensionMismatch

	// ErrNumericDomain reports an operation outside its numeric domain: a
	// non-positive retained eigenvalue, a non-positive residual variance, or
	// a result that is not a finite number.
	ErrNumericDomain = errors.New("numeric domain error")
)
