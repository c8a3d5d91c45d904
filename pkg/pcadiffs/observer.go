package pcadiffs

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
)

// LikelihoodFunc scores one feature vector. Trackers call it once per
// candidate state.
type LikelihoodFunc func(features []float64) (float64, error)

// Likelihood binds a model and options into a LikelihoodFunc.
func (e *Estimator) Likelihood(model *pca.Model, opts Options) LikelihoodFunc {
	return func(features []float64) (float64, error) {
		return e.EvaluateSample(features, model, opts)
	}
}

// ScoreCandidates scores a slice of feature vectors in one batch. The
// result is index aligned with candidates.
func (e *Estimator) ScoreCandidates(candidates [][]float64, model *pca.Model, opts Options) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}
	batch, err := Batch(candidates)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(batch, model, opts)
}

// Batch stacks equal-length vectors as the columns of a D×N matrix.
func Batch(vectors [][]float64) (*mat.Dense, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrDimensionMismatch)
	}
	d := len(vectors[0])
	if d == 0 {
		return nil, fmt.Errorf("%w: empty sample", ErrDimensionMismatch)
	}
	b := mat.NewDense(d, len(vectors), nil)
	for j, v := range vectors {
		if len(v) != d {
			return nil, fmt.Errorf("%w: sample %d has length %d, want %d", ErrDimensionMismatch, j, len(v), d)
		}
		b.SetCol(j, v)
	}
	return b, nil
}
