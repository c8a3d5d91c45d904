package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/TFMV/SubspaceLikelihood/pkg/api"
	"github.com/TFMV/SubspaceLikelihood/pkg/config"
	"github.com/TFMV/SubspaceLikelihood/pkg/db"
	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
	"github.com/TFMV/SubspaceLikelihood/pkg/utils"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.ConfigureLogging(cfg.Log.Level)
	logger := utils.NewLogger("server", nil)
	utils.SetDefault(logger)
	logger.Info().Str("config", *configPath).Msg("config loaded")

	ctx := context.Background()
	handler := &api.Handler{
		Estimator: pcadiffs.NewEstimator(
			pcadiffs.WithWorkers(cfg.Scoring.Workers),
			pcadiffs.WithLogger(logger.With().Str("component", "pcadiffs").Logger()),
		),
		Defaults: pcadiffs.Options{
			Normalize:      cfg.Scoring.Normalize,
			LogProbability: cfg.LogProbability(),
		},
		Metrics: api.NewMetrics(),
	}

	var store *db.Store
	if cfg.DBCreds.Enabled() {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.NewConnection(connCtx, cfg.DBCreds)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create database connection pool")
		}
		defer pool.Close()

		store = db.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to create schema")
		}
		handler.Recorder = store
		logger.Info().Str("host", cfg.DBCreds.Host).Str("database", cfg.DBCreds.Database).Msg("database connected")
	}

	model, modelID, err := loadModel(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model")
	}
	handler.Model = model
	handler.ModelID = modelID
	logger.Info().
		Int("dim", model.Dim()).
		Int("retained", model.Retained()).
		Int("eigenvalues", model.NumEigenvalues()).
		Msg("model loaded")

	// Set up the HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	api.SetupRoutes(router, handler, logger)
	logger.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// loadModel reads the model from its file, or from the database when only a
// name is configured. A model read from a file is also stored when a database
// is available so that runs can reference it.
func loadModel(ctx context.Context, cfg *config.Config, store *db.Store) (*pca.Model, int, error) {
	var (
		model   *pca.Model
		modelID int
		err     error
	)
	switch {
	case cfg.Model.Path != "":
		model, err = pca.LoadFile(cfg.Model.Path)
		if err != nil {
			return nil, 0, err
		}
		if store != nil {
			name := cfg.Model.Name
			if name == "" {
				name = cfg.Model.Path
			}
			if modelID, err = store.SaveModel(ctx, name, model); err != nil {
				return nil, 0, err
			}
		}
	case cfg.Model.Name != "" && store != nil:
		modelID, model, err = store.LoadModel(ctx, cfg.Model.Name)
		if err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, fmt.Errorf("no model configured: set model.path or model.name")
	}

	if cfg.Model.Retain > 0 && cfg.Model.Retain < model.Retained() {
		if model, err = model.Truncate(cfg.Model.Retain); err != nil {
			return nil, 0, err
		}
	}
	return model, modelID, nil
}
