package pca

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrDimensionMismatch is returned when samples do not share the model's
// ambient dimensionality.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Projector projects mean-centered samples onto a model's retained basis.
// samples is D×N with one sample per column; the result is N×M.
type Projector interface {
	Project(samples mat.Matrix, model *Model) (*mat.Dense, error)
}

// OrthoProjector computes (samples - mean)ᵀ · eigenvectorsᵀ with gonum.
type OrthoProjector struct{}

// Project implements Projector.
func (OrthoProjector) Project(samples mat.Matrix, model *Model) (*mat.Dense, error) {
	d, n := samples.Dims()
	if d != model.Dim() {
		return nil, fmt.Errorf("%w: samples have %d rows, model has dimension %d", ErrDimensionMismatch, d, model.Dim())
	}
	m := model.Retained()
	if n == 0 || m == 0 {
		return &mat.Dense{}, nil
	}

	centered := Center(samples, model.Mean())
	proj := mat.NewDense(n, m, nil)
	proj.Mul(centered.T(), model.Eigenvectors().T())
	return proj, nil
}

// Center returns a copy of the D×N samples with mean subtracted from each
// column.
func Center(samples mat.Matrix, mean mat.Vector) *mat.Dense {
	d, n := samples.Dims()
	out := mat.NewDense(d, n, nil)
	for i := 0; i < d; i++ {
		mu := mean.AtVec(i)
		for j := 0; j < n; j++ {
			out.Set(i, j, samples.At(i, j)-mu)
		}
	}
	return out
}
