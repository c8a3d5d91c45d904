package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
)

type fakeRecorder struct {
	runs   int
	stored []pcadiffs.Distance
	fail   bool
}

func (f *fakeRecorder) CreateRun(ctx context.Context, modelID int, description string) (int, error) {
	if f.fail {
		return 0, errors.New("database down")
	}
	f.runs++
	return 100 + f.runs, nil
}

func (f *fakeRecorder) InsertScores(ctx context.Context, runID int, scores []pcadiffs.Distance) (int64, error) {
	f.stored = append(f.stored, scores...)
	return int64(len(scores)), nil
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, rec RunRecorder) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	model, err := pca.NewModel([]float64{0, 0, 0}, []float64{4, 1, 0.25}, mat.NewDense(2, 3, []float64{
		1, 0, 0,
		0, 1, 0,
	}))
	require.NoError(t, err)

	h := &Handler{
		Estimator: pcadiffs.NewEstimator(pcadiffs.WithLogger(zerolog.Nop())),
		Model:     model,
		Defaults:  pcadiffs.DefaultOptions(),
		Recorder:  rec,
		ModelID:   1,
	}
	router := gin.New()
	SetupRoutes(router, h, zerolog.Nop())
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestScoreBatch(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/v1/score",
		`{"samples": [[2, 1, 0.5], [0, 0, 0]], "decompose": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", env.Status)

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.InDeltaSlice(t, []float64{-1.5, 0}, resp.Scores, 1e-9)
	require.Len(t, resp.Distances, 2)
	assert.InDelta(t, 2.0, resp.Distances[0].DIFS, 1e-9)
	assert.InDelta(t, 1.0, resp.Distances[0].DFFS, 1e-9)
	assert.Zero(t, resp.RunID)
}

func TestScoreBatchProbability(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/v1/score",
		`{"samples": [[0, 0, 0]], "log_probability": false}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.InDeltaSlice(t, []float64{1}, resp.Scores, 1e-12)
	assert.Empty(t, resp.Distances)
}

func TestScoreBatchPersist(t *testing.T) {
	rec := &fakeRecorder{}
	router := newRouter(t, rec)

	w, env := do(t, router, http.MethodPost, "/v1/score",
		`{"samples": [[2, 1, 0.5]], "persist": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 101, resp.RunID)
	require.Len(t, rec.stored, 1)
	assert.InDelta(t, -1.5, rec.stored[0].LogProb, 1e-9)

	rec.fail = true
	w, env = do(t, router, http.MethodPost, "/v1/score", `{"samples": [[2, 1, 0.5]], "persist": true}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", env.Status)
}

func TestScoreBatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"samples": [`, http.StatusBadRequest},
		{"missing samples", `{}`, http.StatusBadRequest},
		{"wrong dimension", `{"samples": [[1, 2]]}`, http.StatusBadRequest},
		{"ragged batch", `{"samples": [[1, 2, 3], [1, 2]]}`, http.StatusBadRequest},
		{"persist without store", `{"samples": [[1, 2, 3]], "persist": true}`, http.StatusBadRequest},
	}

	router := newRouter(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, router, http.MethodPost, "/v1/score", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", env.Status)
			assert.NotEmpty(t, env.Message)
		})
	}
}

func TestScoreSingle(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/v1/score/single", `{"sample": [2, 1, 0.5]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.InDelta(t, -1.5, data.Score, 1e-9)

	w, _ = do(t, router, http.MethodPost, "/v1/score/single", `{"sample": [1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNumericDomainStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(pcadiffs.ErrNumericDomain))
	assert.Equal(t, http.StatusBadRequest, statusFor(pcadiffs.ErrDimensionMismatch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestModelAndHealth(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodGet, "/v1/model", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary ModelSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, ModelSummary{Dim: 3, Retained: 2, NumEigenvalues: 3, Eigenvalues: []float64{4, 1, 0.25}}, summary)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	model, err := pca.NewModel([]float64{0, 0}, []float64{1, 0.5}, mat.NewDense(1, 2, []float64{1, 0}))
	require.NoError(t, err)

	h := &Handler{
		Estimator: pcadiffs.NewEstimator(pcadiffs.WithLogger(zerolog.Nop())),
		Model:     model,
		Defaults:  pcadiffs.DefaultOptions(),
		Metrics:   NewMetrics(),
	}
	router := gin.New()
	SetupRoutes(router, h, zerolog.Nop())

	w, _ := do(t, router, http.MethodPost, "/v1/score", `{"samples": [[1, 0], [0, 1]]}`)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, router, http.MethodPost, "/v1/score", `{"samples": [[1, 0, 0]]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.Metrics.SamplesScored))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.Requests.WithLabelValues("/v1/score", "400")))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pcadiffs_samples_scored_total 2")
}
