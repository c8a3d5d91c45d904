// Package pcadiffs scores samples against a PCA subspace as the sum of the
// distance in feature space (DIFS) and the distance from feature space
// (DFFS), which together approximate a Gaussian log-likelihood.
//
// DIFS is the Mahalanobis distance of a sample's projection under the
// diagonal covariance given by the retained eigenvalues. DFFS is the
// reconstruction residual divided by rho, the mean of the discarded
// eigenvalues.
//
// Reference: B. Moghaddam and A. Pentland, "Probabilistic visual learning
// for object detection", 1995.
package pcadiffs

import (
	"fmt"
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
)

// minParallelBatch is the smallest batch split across workers.
const minParallelBatch = 64

// Options controls how a score is reported.
type Options struct {
	// Normalize subtracts the log-partition constant of the Gaussian.
	Normalize bool
	// LogProbability reports log-likelihoods; otherwise exp is applied.
	LogProbability bool
}

// DefaultOptions returns unnormalized log-likelihoods.
func DefaultOptions() Options {
	return Options{LogProbability: true}
}

// Distance is the decomposition of one sample's score.
type Distance struct {
	DIFS    float64 `json:"difs"`
	DFFS    float64 `json:"dffs"`
	LogProb float64 `json:"log_prob"`
}

// Estimator evaluates sample batches against PCA models. It holds no
// per-call state and is safe for concurrent use.
type Estimator struct {
	projector pca.Projector
	workers   int
	logger    zerolog.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithProjector replaces the projection backend.
func WithProjector(p pca.Projector) Option {
	return func(e *Estimator) { e.projector = p }
}

// WithWorkers bounds the goroutines used for one batch. Values below one
// evaluate serially.
func WithWorkers(n int) Option {
	return func(e *Estimator) { e.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Estimator) { e.logger = l }
}

// NewEstimator returns an Estimator using gonum projection and one worker
// per available CPU unless configured otherwise.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		projector: pca.OrthoProjector{},
		workers:   runtime.GOMAXPROCS(0),
		logger:    log.With().Str("component", "pcadiffs").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Evaluate scores every column of the D×N samples matrix.
func (e *Estimator) Evaluate(samples mat.Matrix, model *pca.Model, opts Options) ([]float64, error) {
	if samples == nil {
		return nil, fmt.Errorf("%w: nil samples", ErrDimensionMismatch)
	}
	_, n := samples.Dims()
	out := make([]float64, n)
	if err := e.EvaluateTo(out, samples, model, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateTo scores samples into dst, which must have one element per
// column. dst is left untouched when an error is returned.
func (e *Estimator) EvaluateTo(dst []float64, samples mat.Matrix, model *pca.Model, opts Options) error {
	if samples == nil {
		return fmt.Errorf("%w: nil samples", ErrDimensionMismatch)
	}
	if _, n := samples.Dims(); len(dst) != n {
		return fmt.Errorf("%w: output has length %d, batch has %d samples", ErrDimensionMismatch, len(dst), n)
	}

	dists, err := e.Decompose(samples, model, opts.Normalize)
	if err != nil {
		return err
	}

	probs, err := Scores(dists, opts)
	if err != nil {
		return err
	}
	copy(dst, probs)
	return nil
}

// Scores converts decomposed distances into reported scores: the
// log-likelihoods, or their exponentials when opts.LogProbability is false.
// The normalization choice is already part of each Distance.
func Scores(dists []Distance, opts Options) ([]float64, error) {
	probs := make([]float64, len(dists))
	for i, d := range dists {
		probs[i] = d.LogProb
		if !opts.LogProbability {
			probs[i] = math.Exp(d.LogProb)
			if math.IsInf(probs[i], 0) {
				return nil, fmt.Errorf("%w: likelihood of sample %d overflows (log-likelihood %g)", ErrNumericDomain, i, d.LogProb)
			}
		}
	}
	return probs, nil
}

// EvaluateSample scores a single sample of length D.
func (e *Estimator) EvaluateSample(sample []float64, model *pca.Model, opts Options) (float64, error) {
	if len(sample) == 0 {
		return 0, fmt.Errorf("%w: empty sample", ErrDimensionMismatch)
	}
	var p [1]float64
	if err := e.EvaluateTo(p[:], mat.NewDense(len(sample), 1, sample), model, opts); err != nil {
		return 0, err
	}
	return p[0], nil
}

// Decompose returns DIFS, DFFS and the log-likelihood of every column of
// samples.
func (e *Estimator) Decompose(samples mat.Matrix, model *pca.Model, normalize bool) ([]Distance, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrDimensionMismatch)
	}
	if samples == nil {
		return nil, fmt.Errorf("%w: nil samples", ErrDimensionMismatch)
	}
	d, n := samples.Dims()
	if d != model.Dim() {
		return nil, fmt.Errorf("%w: samples have %d rows, model has dimension %d", ErrDimensionMismatch, d, model.Dim())
	}

	sc, err := newScales(model, normalize)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []Distance{}, nil
	}

	var proj *mat.Dense
	if sc.retained > 0 {
		proj, err = e.projector.Project(samples, model)
		if err != nil {
			return nil, err
		}
		if r, c := proj.Dims(); r != n || c != sc.retained {
			return nil, fmt.Errorf("%w: projection is %dx%d, want %dx%d", ErrDimensionMismatch, r, c, n, sc.retained)
		}
	}

	workers := e.workers
	if n < minParallelBatch {
		workers = 1
	}
	e.logger.Debug().
		Int("dim", d).
		Int("samples", n).
		Int("retained", sc.retained).
		Int("eigenvalues", model.NumEigenvalues()).
		Int("workers", workers).
		Msg("evaluating batch")

	out := make([]Distance, n)
	if workers == 1 {
		if err := sc.fill(out, 0, n, samples, proj, model.Mean()); err != nil {
			return nil, err
		}
		return out, nil
	}

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			return sc.fill(out, lo, hi, samples, proj, model.Mean())
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scales holds the per-model quantities shared by every sample.
type scales struct {
	retained int
	invSqrt  []float64 // 1/sqrt(eigenvalue) for the retained axes
	residual bool
	rho      float64
	normTerm float64
}

func newScales(model *pca.Model, normalize bool) (*scales, error) {
	m, nEig := model.Retained(), model.NumEigenvalues()
	sc := &scales{retained: m, residual: nEig > m}

	if m > 0 {
		sc.invSqrt = make([]float64, m)
		for i := 0; i < m; i++ {
			ev := model.Eigenvalue(i)
			if ev <= 0 {
				return nil, fmt.Errorf("%w: retained eigenvalue %d is %g", ErrNumericDomain, i, ev)
			}
			s := math.Sqrt(ev)
			sc.invSqrt[i] = 1 / s
			if normalize {
				sc.normTerm += math.Log(s)
			}
		}
		if normalize {
			sc.normTerm += math.Log(2*math.Pi) * float64(m) / 2
		}
	}

	if sc.residual {
		discarded := model.Eigenvalues()[m:]
		sc.rho = floats.Sum(discarded) / float64(len(discarded))
		if sc.rho <= 0 || math.IsNaN(sc.rho) {
			return nil, fmt.Errorf("%w: residual variance is %g", ErrNumericDomain, sc.rho)
		}
		if normalize {
			sc.normTerm += math.Log(2*math.Pi*sc.rho) * float64(len(discarded)) / 2
		}
	}
	return sc, nil
}

// fill scores columns [lo, hi) into out.
func (sc *scales) fill(out []Distance, lo, hi int, samples mat.Matrix, proj *mat.Dense, mean mat.Vector) error {
	d, _ := samples.Dims()
	var col, mu, scaled []float64
	if sc.residual {
		col = make([]float64, d)
		mu = make([]float64, d)
		for i := range mu {
			mu[i] = mean.AtVec(i)
		}
	}
	if sc.retained > 0 {
		scaled = make([]float64, sc.retained)
	}

	for j := lo; j < hi; j++ {
		var difs, dffs, projSq float64
		if sc.retained > 0 {
			row := proj.RawRowView(j)
			floats.MulTo(scaled, row, sc.invSqrt)
			difs = floats.Dot(scaled, scaled)
			projSq = floats.Dot(row, row)
		}
		if sc.residual {
			mat.Col(col, j, samples)
			floats.Sub(col, mu)
			// Orthogonal projection: the residual is what the projection
			// does not explain. Rounding can push it slightly below zero.
			raw := math.Max(floats.Dot(col, col)-projSq, 0)
			dffs = raw / sc.rho
		}

		lp := -difs/2 - dffs/2 - sc.normTerm
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return fmt.Errorf("%w: sample %d has log-likelihood %g", ErrNumericDomain, j, lp)
		}
		out[j] = Distance{DIFS: difs, DFFS: dffs, LogProb: lp}
	}
	return nil
}
