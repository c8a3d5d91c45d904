package pcadiffs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikelihoodFunc(t *testing.T) {
	model := axisModel(t, 2)
	e := NewEstimator()
	like := e.Likelihood(model, Options{LogProbability: false})

	p, err := like([]float64{2, 1, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.22313016014842982, p, 1e-12) // exp(-1.5)

	_, err = like([]float64{2, 1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestScoreCandidates(t *testing.T) {
	model := axisModel(t, 2)
	e := NewEstimator()

	scores, err := e.ScoreCandidates([][]float64{
		{2, 1, 0.5},
		{0, 0, 0},
	}, model, DefaultOptions())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1.5, 0}, scores, tol)

	scores, err = e.ScoreCandidates(nil, model, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, scores)

	_, err = e.ScoreCandidates([][]float64{{1, 2, 3}, {1, 2}}, model, DefaultOptions())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBatchLayout(t *testing.T) {
	b, err := Batch([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)

	r, c := b.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 5.0, b.At(0, 2))
	assert.Equal(t, 2.0, b.At(1, 0))

	_, err = Batch(nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
