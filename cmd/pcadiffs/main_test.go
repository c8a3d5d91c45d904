package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
)

func TestMain(m *testing.M) {
	logger = zerolog.Nop()
	os.Exit(m.Run())
}

func TestScoreMatrix(t *testing.T) {
	model, err := pca.NewModel([]float64{0, 0, 0}, []float64{4, 1, 0.25}, mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 1, 0,
	}))
	require.NoError(t, err)

	X := mat.NewDense(2, 3, []float64{
		2, 1, 0.5,
		0, 0, 0,
	})
	results, dists, err := scoreMatrix(newEstimator(), X, model, pcadiffs.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, dists, 2)
	assert.InDelta(t, -1.5, results[0].Score, 1e-9)
	assert.InDelta(t, 2.0, results[0].DIFS, 1e-9)
	assert.InDelta(t, 1.0, results[0].DFFS, 1e-9)
	assert.Equal(t, 1, results[1].Index)
	assert.InDelta(t, 0, results[1].Score, 1e-12)

	_, _, err = scoreMatrix(newEstimator(), mat.NewDense(1, 2, []float64{1, 2}), model, pcadiffs.DefaultOptions())
	assert.ErrorIs(t, err, pcadiffs.ErrDimensionMismatch)
}

func TestWriteScores(t *testing.T) {
	results := []scoredSample{{Index: 0, DIFS: 2, DFFS: 1, Score: -1.5}}

	var table bytes.Buffer
	require.NoError(t, writeScores(&table, results, "table"))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"INDEX", "DIFS", "DFFS", "SCORE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "2", "1", "-1.5"}, strings.Fields(lines[1]))

	var js bytes.Buffer
	require.NoError(t, writeScores(&js, results, "json"))
	var decoded []scoredSample
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, results, decoded)
}

func TestFitModel(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})
	model, err := fitModel(X, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, model.Dim())
	assert.Equal(t, 1, model.Retained())
	assert.Equal(t, 1, model.NumEigenvalues())
}

func TestFitFewerObservationsThanDimensions(t *testing.T) {
	X := mat.NewDense(3, 4, []float64{
		1, 2, 0, 1,
		3, 1, 4, 0,
		0, 5, 2, 2,
	})

	for _, components := range []int{0, 1} {
		model, err := fitModel(X, components)
		require.NoError(t, err)

		// the second sample is four times as far from the mean as the first
		results, _, err := scoreMatrix(newEstimator(), mat.NewDense(2, 4, []float64{
			1, 2, 0, 1,
			0, 0, -6, 1,
		}), model, pcadiffs.DefaultOptions())
		require.NoError(t, err, "components %d", components)
		require.Len(t, results, 2)
		assert.Less(t, results[1].Score, results[0].Score)
	}

	_, err := fitModel(X, 3)
	assert.Error(t, err)
}

func TestReadLines(t *testing.T) {
	lines, err := readLines(strings.NewReader("first line\n\n   \nsecond line  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line"}, lines)
}

func TestRankNovelty(t *testing.T) {
	lines := []string{
		"100 main street springfield",
		"101 main street springfield",
		"102 main street shelbyville",
		"200 oak avenue springfield",
		"201 oak avenue shelbyville",
		"quarterly revenue report attached",
	}

	ranked, err := rankNovelty(newEstimator(), lines, 2)
	require.NoError(t, err)
	require.Len(t, ranked, len(lines))

	seen := make(map[string]bool)
	for i, r := range ranked {
		seen[r.Line] = true
		assert.GreaterOrEqual(t, r.DFFS, 0.0)
		if i > 0 {
			assert.GreaterOrEqual(t, ranked[i-1].DFFS, r.DFFS)
		}
	}
	assert.Len(t, seen, len(lines))
}

func TestRankNoveltyErrors(t *testing.T) {
	_, err := rankNovelty(newEstimator(), []string{"a b", "c d", "e f"}, 0)
	assert.Error(t, err)

	_, err = rankNovelty(newEstimator(), []string{"a b", "c d"}, 1)
	assert.Error(t, err)
}
