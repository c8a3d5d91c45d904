package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
)

// ErrModelNotFound is returned when no model has the requested name.
var ErrModelNotFound = errors.New("model not found")

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS pca_models (
	model_id     SERIAL PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	dim          INT NOT NULL,
	retained     INT NOT NULL,
	mean         DOUBLE PRECISION[] NOT NULL,
	eigenvalues  DOUBLE PRECISION[] NOT NULL,
	eigenvectors DOUBLE PRECISION[] NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	run_id      SERIAL PRIMARY KEY,
	model_id    INT NOT NULL REFERENCES pca_models (model_id),
	description TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sample_scores (
	run_id       INT NOT NULL REFERENCES runs (run_id),
	sample_index INT NOT NULL,
	difs         DOUBLE PRECISION NOT NULL,
	dffs         DOUBLE PRECISION NOT NULL,
	log_prob     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, sample_index)
);`

// Querier is the subset of *pgxpool.Pool used by Store.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store persists PCA models and scoring runs in Postgres.
type Store struct {
	db     Querier
	logger zerolog.Logger
}

// NewStore wraps a pool or connection.
func NewStore(db Querier) *Store {
	return &Store{
		db:     db,
		logger: log.With().Str("component", "store").Logger(),
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// SaveModel inserts or replaces the model stored under name and returns
// its id.
func (s *Store) SaveModel(ctx context.Context, name string, m *pca.Model) (int, error) {
	vecs := m.Flatten()
	if vecs == nil {
		vecs = []float64{}
	}
	mean := make([]float64, m.Dim())
	for i := range mean {
		mean[i] = m.Mean().AtVec(i)
	}

	var id int
	err := s.db.QueryRow(ctx, `
		INSERT INTO pca_models (name, dim, retained, mean, eigenvalues, eigenvectors)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			dim = EXCLUDED.dim,
			retained = EXCLUDED.retained,
			mean = EXCLUDED.mean,
			eigenvalues = EXCLUDED.eigenvalues,
			eigenvectors = EXCLUDED.eigenvectors,
			updated_at = now()
		RETURNING model_id`,
		name, m.Dim(), m.Retained(), mean, m.Eigenvalues(), vecs,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save model %q: %w", name, err)
	}
	s.logger.Info().Str("model", name).Int("model_id", id).Int("dim", m.Dim()).Int("retained", m.Retained()).Msg("model saved")
	return id, nil
}

// LoadModel reads the model stored under name.
func (s *Store) LoadModel(ctx context.Context, name string) (int, *pca.Model, error) {
	var (
		id                      int
		retained                int
		mean, eigenvalues, vecs []float64
	)
	err := s.db.QueryRow(ctx,
		"SELECT model_id, retained, mean, eigenvalues, eigenvectors FROM pca_models WHERE name = $1",
		name,
	).Scan(&id, &retained, &mean, &eigenvalues, &vecs)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load model %q: %w", name, err)
	}

	m, err := pca.FromFlat(mean, eigenvalues, retained, vecs)
	if err != nil {
		return 0, nil, fmt.Errorf("load model %q: %w", name, err)
	}
	return id, m, nil
}

// CreateRun records a new scoring run against a model.
func (s *Store) CreateRun(ctx context.Context, modelID int, description string) (int, error) {
	var runID int
	err := s.db.QueryRow(ctx,
		"INSERT INTO runs (model_id, description) VALUES ($1, $2) RETURNING run_id",
		modelID, description,
	).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return runID, nil
}

// InsertScores bulk loads the scores of a run, indexed by sample position.
func (s *Store) InsertScores(ctx context.Context, runID int, scores []pcadiffs.Distance) (int64, error) {
	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"sample_scores"},
		[]string{"run_id", "sample_index", "difs", "dffs", "log_prob"},
		&scoreSource{runID: runID, scores: scores, idx: -1},
	)
	if err != nil {
		return 0, fmt.Errorf("insert scores for run %d: %w", runID, err)
	}
	s.logger.Debug().Int("run_id", runID).Int64("rows", n).Msg("scores inserted")
	return n, nil
}

// RunScores returns the scores of a run ordered by sample index.
func (s *Store) RunScores(ctx context.Context, runID int) ([]pcadiffs.Distance, error) {
	rows, err := s.db.Query(ctx,
		"SELECT difs, dffs, log_prob FROM sample_scores WHERE run_id = $1 ORDER BY sample_index",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run %d: %w", runID, err)
	}
	scores, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pcadiffs.Distance, error) {
		var d pcadiffs.Distance
		err := row.Scan(&d.DIFS, &d.DFFS, &d.LogProb)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan run %d: %w", runID, err)
	}
	return scores, nil
}

// scoreSource implements the pgx.CopyFromSource interface
type scoreSource struct {
	runID  int
	scores []pcadiffs.Distance
	idx    int
}

func (s *scoreSource) Next() bool {
	s.idx++
	return s.idx < len(s.scores)
}

func (s *scoreSource) Values() ([]any, error) {
	d := s.scores[s.idx]
	return []any{s.runID, s.idx, d.DIFS, d.DFFS, d.LogProb}, nil
}

func (s *scoreSource) Err() error {
	return nil
}
