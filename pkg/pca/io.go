package pca

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

const modelFormatVersion = 1

// modelFile is the on-disk layout of a Model.
type modelFile struct {
	Version      int
	Mean         []float64
	Eigenvalues  []float64
	Rows, Cols   int
	Eigenvectors []float64
}

// Save writes the model to w.
func (m *Model) Save(w io.Writer) error {
	f := modelFile{
		Version:      modelFormatVersion,
		Mean:         m.mean.RawVector().Data,
		Eigenvalues:  m.eigenvalues,
		Rows:         m.Retained(),
		Cols:         m.Dim(),
		Eigenvectors: m.Flatten(),
	}
	if err := gob.NewEncoder(w).Encode(&f); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Load reads a model previously written by Save.
func Load(r io.Reader) (*Model, error) {
	var f modelFile
	if err := gob.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if f.Version != modelFormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", f.Version)
	}
	return FromFlat(f.Mean, f.Eigenvalues, f.Rows, f.Eigenvectors)
}

// FromFlat builds a model from an eigenvector matrix stored row-major.
func FromFlat(mean, eigenvalues []float64, rows int, eigenvectors []float64) (*Model, error) {
	if rows == 0 || len(mean) == 0 {
		if len(eigenvectors) > 0 {
			return nil, fmt.Errorf("%w: %d eigenvector values for %d rows", ErrInvalidModel, len(eigenvectors), rows)
		}
		return NewModel(mean, eigenvalues, nil)
	}
	if len(eigenvectors) != rows*len(mean) {
		return nil, fmt.Errorf("%w: %d eigenvector values for %d rows of length %d", ErrInvalidModel, len(eigenvectors), rows, len(mean))
	}
	data := append([]float64(nil), eigenvectors...)
	return NewModel(mean, eigenvalues, mat.NewDense(rows, len(mean), data))
}

// Flatten returns the eigenvector rows concatenated row-major.
func (m *Model) Flatten() []float64 {
	if m.eigenvectors == nil {
		return nil
	}
	rows := m.Retained()
	out := make([]float64, 0, rows*m.Dim())
	for i := 0; i < rows; i++ {
		out = append(out, m.eigenvectors.RawRowView(i)...)
	}
	return out
}

// SaveFile writes the model to path.
func (m *Model) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Save(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadFile reads a model from path.
func LoadFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Load(file)
}
