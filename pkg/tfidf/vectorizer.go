package tfidf

import (
	"errors"
	"fmt"
	"math"

	"github.com/jdkato/prose/v2"
	"gonum.org/v1/gonum/mat"
)

// Vectorizer represents a TF-IDF vectorizer
type Vectorizer struct {
	vocabulary map[string]int
	idf        []float64
}

// NewVectorizer creates a new Vectorizer
func NewVectorizer() *Vectorizer {
	return &Vectorizer{
		vocabulary: make(map[string]int),
	}
}

// Tokenize normalizes text and splits it into word tokens.
func Tokenize(text string) ([]string, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(normalized,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	tokens := make([]string, 0, len(doc.Tokens()))
	for _, tok := range doc.Tokens() {
		tokens = append(tokens, tok.Text)
	}
	return tokens, nil
}

// Fit fits the vectorizer to the input documents
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return errors.New("no documents to fit")
	}
	docCount := len(docs)
	termDocCount := make(map[string]int)
	v.vocabulary = make(map[string]int)

	for _, doc := range docs {
		terms, err := Tokenize(doc)
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, term := range terms {
			if _, exists := v.vocabulary[term]; !exists {
				v.vocabulary[term] = len(v.vocabulary)
			}
			if !seen[term] {
				termDocCount[term]++
				seen[term] = true
			}
		}
	}

	// smoothed idf keeps terms present in every document non-zero
	v.idf = make([]float64, len(v.vocabulary))
	for term, count := range termDocCount {
		v.idf[v.vocabulary[term]] = math.Log(float64(1+docCount)/float64(1+count)) + 1
	}
	return nil
}

// Size returns the vocabulary size.
func (v *Vectorizer) Size() int {
	return len(v.vocabulary)
}

// Transform transforms the input documents to TF-IDF vectors. Terms outside
// the fitted vocabulary are ignored.
func (v *Vectorizer) Transform(docs []string) ([][]float64, error) {
	tfIdfVectors := make([][]float64, len(docs))

	for i, doc := range docs {
		terms, err := Tokenize(doc)
		if err != nil {
			return nil, err
		}
		tfIdf := make([]float64, len(v.vocabulary))
		for _, term := range terms {
			if j, ok := v.vocabulary[term]; ok {
				tfIdf[j]++
			}
		}
		for j := range tfIdf {
			tfIdf[j] *= v.idf[j]
		}
		tfIdfVectors[i] = tfIdf
	}

	return tfIdfVectors, nil
}

// FitTransform fits the vectorizer to the input documents and then transforms them
func (v *Vectorizer) FitTransform(docs []string) ([][]float64, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

// TransformMatrix returns the TF-IDF vectors as an N×V matrix, one row
// per document.
func (v *Vectorizer) TransformMatrix(docs []string) (*mat.Dense, error) {
	if len(docs) == 0 || v.Size() == 0 {
		return nil, errors.New("nothing to vectorize")
	}
	vecs, err := v.Transform(docs)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(docs), v.Size(), nil)
	for i, row := range vecs {
		out.SetRow(i, row)
	}
	return out, nil
}
