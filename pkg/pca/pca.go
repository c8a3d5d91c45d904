package pca

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PCA fits a Model from training observations.
type PCA struct {
	NumComponents int
	svd           *mat.SVD
	mean          []float64
	samples       int
}

// NewPCA creates a new PCA instance with the specified number of components.
// Zero keeps every axis that carries variance.
func NewPCA(numComponents int) *PCA {
	return &PCA{NumComponents: numComponents}
}

// FitTransform fits the PCA model to the data and projects the data onto it.
func (pca *PCA) FitTransform(X *mat.Dense) (*mat.Dense, error) {
	if err := pca.Fit(X); err != nil {
		return nil, err
	}
	return pca.Transform(X)
}

// Fit fits the PCA model to the data. Rows of X are observations.
func (pca *PCA) Fit(X *mat.Dense) error {
	if pca.NumComponents < 0 {
		return errors.New("number of components can't be less than zero")
	}
	n, _ := X.Dims()
	if n == 0 {
		return errors.New("no observations to fit")
	}

	// Mean center the input data
	pca.mean = mean(X)
	centered := matrixSubVector(X, pca.mean)

	// Perform SVD
	pca.svd = &mat.SVD{}
	if ok := pca.svd.Factorize(centered, mat.SVDThin); !ok {
		return errors.New("unable to factorize")
	}
	pca.samples = n
	return nil
}

// rankTolerance is the singular value, relative to the largest, below which
// an axis carries no variance.
const rankTolerance = 1e-12

// Model returns the fitted model. Axes without variance are dropped, so the
// model holds one eigenvalue per axis of the numerical rank of the centered
// data. NumComponents eigenvectors are retained, or every axis when it is
// zero.
func (pca *PCA) Model() (*Model, error) {
	if pca.svd == nil {
		return nil, errors.New("you should fit the PCA model first")
	}

	values := pca.svd.Values(nil)
	rank := 0
	for _, s := range values {
		if s > values[0]*rankTolerance {
			rank++
		}
	}
	if rank == 0 {
		return nil, errors.New("observations have no variance")
	}

	k := pca.NumComponents
	if k == 0 {
		k = rank
	}
	if k > rank {
		return nil, fmt.Errorf("cannot retain %d components: data has rank %d", k, rank)
	}

	denom := float64(pca.samples - 1)
	if pca.samples < 2 {
		denom = 1
	}
	eigenvalues := make([]float64, rank)
	for i, s := range values[:rank] {
		eigenvalues[i] = s * s / denom
	}

	var v mat.Dense
	pca.svd.VTo(&v)
	d, _ := v.Dims()
	eigenvectors := mat.NewDense(k, d, nil)
	eigenvectors.Copy(v.Slice(0, d, 0, k).T())

	return NewModel(pca.mean, eigenvalues, eigenvectors)
}

// Transform projects the rows of X onto the fitted components.
func (pca *PCA) Transform(X *mat.Dense) (*mat.Dense, error) {
	model, err := pca.Model()
	if err != nil {
		return nil, err
	}
	proj, err := OrthoProjector{}.Project(X.T(), model)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	return proj, nil
}

// Helper functions

// mean computes the mean of the columns of the input matrix.
func mean(matrix *mat.Dense) []float64 {
	rows, cols := matrix.Dims()
	meanVector := make([]float64, cols)
	for i := 0; i < cols; i++ {
		meanVector[i] = mat.Sum(matrix.ColView(i)) / float64(rows)
	}
	return meanVector
}

// matrixSubVector returns a copy of m with vec subtracted from every row.
func matrixSubVector(m *mat.Dense, vec []float64) *mat.Dense {
	rows, _ := m.Dims()
	out := mat.DenseCopyOf(m)
	for i := 0; i < rows; i++ {
		floats.Sub(out.RawRowView(i), vec)
	}
	return out
}
