package pca

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewModelValidation(t *testing.T) {
	tests := []struct {
		name         string
		mean         []float64
		eigenvalues  []float64
		eigenvectors *mat.Dense
		wantErr      bool
	}{
		{
			name:         "valid",
			mean:         []float64{0, 0},
			eigenvalues:  []float64{2, 1},
			eigenvectors: mat.NewDense(1, 2, []float64{1, 0}),
		},
		{
			name:        "no retained axes",
			mean:        []float64{0, 0},
			eigenvalues: []float64{2, 1},
		},
		{
			name:    "empty mean",
			mean:    nil,
			wantErr: true,
		},
		{
			name:         "column mismatch",
			mean:         []float64{0, 0, 0},
			eigenvalues:  []float64{2, 1},
			eigenvectors: mat.NewDense(1, 2, []float64{1, 0}),
			wantErr:      true,
		},
		{
			name:         "fewer eigenvalues than eigenvectors",
			mean:         []float64{0, 0},
			eigenvalues:  []float64{2},
			eigenvectors: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
			wantErr:      true,
		},
		{
			name:        "negative eigenvalue",
			mean:        []float64{0, 0},
			eigenvalues: []float64{2, -1},
			wantErr:     true,
		},
		{
			name:        "ascending eigenvalues",
			mean:        []float64{0, 0},
			eigenvalues: []float64{1, 2},
			wantErr:     true,
		},
		{
			name:        "nan eigenvalue",
			mean:        []float64{0, 0},
			eigenvalues: []float64{math.NaN(), 1},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(tt.mean, tt.eigenvalues, tt.eigenvectors)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidModel)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestModelCopiesInputs(t *testing.T) {
	mean := []float64{1, 2}
	eig := []float64{3, 1}
	vecs := mat.NewDense(1, 2, []float64{1, 0})

	m, err := NewModel(mean, eig, vecs)
	require.NoError(t, err)

	mean[0], eig[0] = 100, 100
	vecs.Set(0, 0, 100)
	assert.Equal(t, 1.0, m.Mean().AtVec(0))
	assert.Equal(t, 3.0, m.Eigenvalue(0))
	assert.Equal(t, 1.0, m.Eigenvectors().At(0, 0))
}

func TestTruncate(t *testing.T) {
	m, err := NewModel([]float64{0, 0, 0}, []float64{3, 2, 1}, mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 1, 0,
	}))
	require.NoError(t, err)

	one, err := m.Truncate(1)
	require.NoError(t, err)
	assert.Equal(t, 1, one.Retained())
	assert.Equal(t, 3, one.NumEigenvalues())

	none, err := m.Truncate(0)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Retained())
	assert.Nil(t, none.Eigenvectors())

	_, err = m.Truncate(3)
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestSaveLoad(t *testing.T) {
	m, err := NewModel([]float64{1, 2, 3}, []float64{3, 2, 1}, mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 0, 1,
	}))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Save(&buf))
	got, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, m.Eigenvalues(), got.Eigenvalues())
	assert.Equal(t, m.Flatten(), got.Flatten())
	assert.True(t, mat.Equal(m.Mean(), got.Mean()))

	path := filepath.Join(t.TempDir(), "model.gob")
	none, err := m.Truncate(0)
	require.NoError(t, err)
	require.NoError(t, none.SaveFile(path))
	got, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Retained())
	assert.Equal(t, 3, got.Dim())
}

func TestFromFlatValidation(t *testing.T) {
	_, err := FromFlat([]float64{0, 0}, []float64{1, 1}, 2, []float64{1, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = FromFlat([]float64{0, 0}, []float64{1, 1}, 0, []float64{1, 0})
	assert.ErrorIs(t, err, ErrInvalidModel)

	m, err := FromFlat([]float64{0, 0}, []float64{1, 1}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Retained())
}
