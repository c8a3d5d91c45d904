package pca

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidModel is returned when a model's mean, eigenvalues or
// eigenvectors are inconsistent with each other.
var ErrInvalidModel = errors.New("invalid pca model")

// Model is a precomputed PCA model: the mean of the training data, the
// eigenvalues of its covariance in descending order, and the first M
// eigenvectors stored as rows. A Model is immutable once constructed and
// may be shared between goroutines.
type Model struct {
	mean         *mat.VecDense
	eigenvalues  []float64
	eigenvectors *mat.Dense
}

// NewModel validates and builds a Model. The eigenvalues must be finite,
// non-negative and non-increasing, and there must be at least as many of
// them as eigenvector rows. A nil or empty eigenvectors matrix means no
// axis is retained.
func NewModel(mean []float64, eigenvalues []float64, eigenvectors *mat.Dense) (*Model, error) {
	d := len(mean)
	if d == 0 {
		return nil, fmt.Errorf("%w: empty mean vector", ErrInvalidModel)
	}

	m := 0
	var vecs *mat.Dense
	if eigenvectors != nil && !eigenvectors.IsEmpty() {
		r, c := eigenvectors.Dims()
		if c != d {
			return nil, fmt.Errorf("%w: eigenvectors have %d columns, mean has length %d", ErrInvalidModel, c, d)
		}
		m = r
		vecs = mat.DenseCopyOf(eigenvectors)
	}
	if len(eigenvalues) < m {
		return nil, fmt.Errorf("%w: %d eigenvalues for %d eigenvectors", ErrInvalidModel, len(eigenvalues), m)
	}
	for i, v := range eigenvalues {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: eigenvalue %d is %v", ErrInvalidModel, i, v)
		}
		if i > 0 && v > eigenvalues[i-1] {
			return nil, fmt.Errorf("%w: eigenvalues not in descending order at index %d", ErrInvalidModel, i)
		}
	}

	return &Model{
		mean:         mat.NewVecDense(d, append([]float64(nil), mean...)),
		eigenvalues:  append([]float64(nil), eigenvalues...),
		eigenvectors: vecs,
	}, nil
}

// Dim returns the ambient dimensionality D.
func (m *Model) Dim() int { return m.mean.Len() }

// Retained returns M, the number of retained eigenvectors.
func (m *Model) Retained() int {
	if m.eigenvectors == nil {
		return 0
	}
	r, _ := m.eigenvectors.Dims()
	return r
}

// NumEigenvalues returns nEig.
func (m *Model) NumEigenvalues() int { return len(m.eigenvalues) }

// Mean returns the mean vector. The returned vector must not be modified.
func (m *Model) Mean() mat.Vector { return m.mean }

// Eigenvalues returns a copy of the eigenvalues.
func (m *Model) Eigenvalues() []float64 {
	return append([]float64(nil), m.eigenvalues...)
}

// Eigenvalue returns the i-th eigenvalue.
func (m *Model) Eigenvalue(i int) float64 { return m.eigenvalues[i] }

// Eigenvectors returns the M×D basis, or nil when no axis is retained.
// The returned matrix must not be modified.
func (m *Model) Eigenvectors() mat.Matrix {
	if m.eigenvectors == nil {
		return nil
	}
	return m.eigenvectors
}

// Truncate returns a model that keeps only the first k eigenvectors. All
// eigenvalues are kept; the dropped ones become part of the residual.
func (m *Model) Truncate(k int) (*Model, error) {
	if k < 0 || k > m.Retained() {
		return nil, fmt.Errorf("%w: cannot keep %d of %d eigenvectors", ErrInvalidModel, k, m.Retained())
	}
	t := &Model{mean: m.mean, eigenvalues: m.eigenvalues}
	if k > 0 {
		t.eigenvectors = mat.DenseCopyOf(m.eigenvectors.Slice(0, k, 0, m.Dim()))
	}
	return t, nil
}
