// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING WITHOUT LIMITATION THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
	"github.com/TFMV/SubspaceLikelihood/pkg/utils"
)

// RunRecorder persists scored batches. *db.Store implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, modelID int, description string) (int, error)
	InsertScores(ctx context.Context, runID int, scores []pcadiffs.Distance) (int64, error)
}

// Handler serves likelihood scoring for a single model.
type Handler struct {
	Estimator *pcadiffs.Estimator
	Model     *pca.Model
	Defaults  pcadiffs.Options

	// Recorder and ModelID are optional; when set, batch requests may ask
	// for their scores to be stored.
	Recorder RunRecorder
	ModelID  int

	// Metrics is optional; when set, GET /metrics serves it.
	Metrics *Metrics
}

// ScoreRequest is the body of POST /v1/score. Samples are rows.
type ScoreRequest struct {
	Samples        [][]float64 `json:"samples" binding:"required"`
	Normalize      *bool       `json:"normalize"`
	LogProbability *bool       `json:"log_probability"`
	Decompose      bool        `json:"decompose"`
	Persist        bool        `json:"persist"`
	Description    string      `json:"description"`
}

// ScoreResponse is the data of a successful batch score.
type ScoreResponse struct {
	Scores    []float64           `json:"scores"`
	Distances []pcadiffs.Distance `json:"distances,omitempty"`
	RunID     int                 `json:"run_id,omitempty"`
}

// SingleRequest is the body of POST /v1/score/single.
type SingleRequest struct {
	Sample         []float64 `json:"sample" binding:"required"`
	Normalize      *bool     `json:"normalize"`
	LogProbability *bool     `json:"log_probability"`
}

// ModelSummary describes the served model.
type ModelSummary struct {
	Dim            int       `json:"dim"`
	Retained       int       `json:"retained"`
	NumEigenvalues int       `json:"num_eigenvalues"`
	Eigenvalues    []float64 `json:"eigenvalues"`
}

func (h *Handler) options(normalize, logProb *bool) pcadiffs.Options {
	opts := h.Defaults
	if normalize != nil {
		opts.Normalize = *normalize
	}
	if logProb != nil {
		opts.LogProbability = *logProb
	}
	return opts
}

// ScoreBatchHandler handles batch score requests
func (h *Handler) ScoreBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendError(c, http.StatusBadRequest, err)
			return
		}
		if req.Persist && h.Recorder == nil {
			utils.SendError(c, http.StatusBadRequest, errors.New("persistence is not configured"))
			return
		}
		opts := h.options(req.Normalize, req.LogProbability)

		batch, err := pcadiffs.Batch(req.Samples)
		if err != nil {
			utils.SendError(c, statusFor(err), err)
			return
		}
		dists, err := h.Estimator.Decompose(batch, h.Model, opts.Normalize)
		if err != nil {
			utils.SendError(c, statusFor(err), err)
			return
		}
		scores, err := pcadiffs.Scores(dists, opts)
		if err != nil {
			utils.SendError(c, statusFor(err), err)
			return
		}

		resp := ScoreResponse{Scores: scores}
		if req.Decompose {
			resp.Distances = dists
		}
		if req.Persist {
			description := req.Description
			if description == "" {
				description = "Batch Scoring"
			}
			runID, err := h.Recorder.CreateRun(c.Request.Context(), h.ModelID, description)
			if err != nil {
				utils.SendError(c, http.StatusInternalServerError, err)
				return
			}
			if _, err := h.Recorder.InsertScores(c.Request.Context(), runID, dists); err != nil {
				utils.SendError(c, http.StatusInternalServerError, fmt.Errorf("failed to store scores: %w", err))
				return
			}
			resp.RunID = runID
		}

		h.Metrics.addSamples(len(scores))
		utils.SendJSON(c, http.StatusOK, fmt.Sprintf("scored %d samples", len(scores)), resp)
	}
}

// ScoreSingleHandler handles single sample score requests
func (h *Handler) ScoreSingleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SingleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.SendError(c, http.StatusBadRequest, err)
			return
		}

		score, err := h.Estimator.EvaluateSample(req.Sample, h.Model, h.options(req.Normalize, req.LogProbability))
		if err != nil {
			utils.SendError(c, statusFor(err), err)
			return
		}
		h.Metrics.addSamples(1)
		utils.SendJSON(c, http.StatusOK, "", gin.H{"score": score})
	}
}

// ModelHandler describes the served model
func (h *Handler) ModelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.SendJSON(c, http.StatusOK, "", ModelSummary{
			Dim:            h.Model.Dim(),
			Retained:       h.Model.Retained(),
			NumEigenvalues: h.Model.NumEigenvalues(),
			Eigenvalues:    h.Model.Eigenvalues(),
		})
	}
}

// HealthCheckHandler handles health check requests
func HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		zuluTime := time.Now().UTC().Format(time.RFC3339)
		c.JSON(http.StatusOK, gin.H{
			"status":   "OK",
			"zuluTime": zuluTime,
		})
	}
}

// SetupRoutes registers the handlers on router.
func SetupRoutes(router *gin.Engine, h *Handler, logger zerolog.Logger) {
	router.Use(RequestLogger(logger), gin.Recovery())
	if h.Metrics != nil {
		router.Use(h.Metrics.Instrument())
		router.GET("/metrics", h.Metrics.Handler())
	}
	router.GET("/health", HealthCheckHandler())

	v1 := router.Group("/v1")
	v1.GET("/model", h.ModelHandler())
	v1.POST("/score", h.ScoreBatchHandler())
	v1.POST("/score/single", h.ScoreSingleHandler())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pcadiffs.ErrDimensionMismatch):
		return http.StatusBadRequest
	case errors.Is(err, pcadiffs.ErrNumericDomain):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
