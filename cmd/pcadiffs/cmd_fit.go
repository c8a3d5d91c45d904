package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/TFMV/SubspaceLikelihood/pkg/config"
	"github.com/TFMV/SubspaceLikelihood/pkg/db"
	"github.com/TFMV/SubspaceLikelihood/pkg/pca"
	"github.com/TFMV/SubspaceLikelihood/pkg/utils"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a PCA model from CSV observations",
	Long: `Fit a PCA model from a CSV file with one observation per row and write it
as a model file. Every eigenvalue with variance is kept; only the leading
eigenvectors are retained.

Examples:
  pcadiffs fit --data train.csv --components 8 --out model.gob
  pcadiffs fit --data train.csv --components 8 --out model.gob --config config.yaml --name faces`,
	RunE: runFit,
}

var (
	fitData       string
	fitComponents int
	fitOut        string
	fitConfig     string
	fitName       string
)

func init() {
	rootCmd.AddCommand(fitCmd)

	fitCmd.Flags().StringVar(&fitData, "data", "", "CSV file of training observations (required)")
	fitCmd.Flags().IntVar(&fitComponents, "components", 0, "Eigenvectors to retain (0 keeps every axis with variance)")
	fitCmd.Flags().StringVar(&fitOut, "out", "model.gob", "Output model file")
	fitCmd.Flags().StringVar(&fitConfig, "config", "", "Config file; when it has db_creds the model is also stored")
	fitCmd.Flags().StringVar(&fitName, "name", "", "Name of the stored model (defaults to the output file)")
	_ = fitCmd.MarkFlagRequired("data")
}

func runFit(cmd *cobra.Command, args []string) error {
	X, err := utils.LoadMatrixFile(fitData)
	if err != nil {
		return fmt.Errorf("load %s: %w", fitData, err)
	}

	model, err := fitModel(X, fitComponents)
	if err != nil {
		return err
	}
	if err := model.SaveFile(fitOut); err != nil {
		return fmt.Errorf("write %s: %w", fitOut, err)
	}
	logger.Info().
		Str("out", fitOut).
		Int("dim", model.Dim()).
		Int("retained", model.Retained()).
		Int("eigenvalues", model.NumEigenvalues()).
		Msg("model written")

	if fitConfig == "" {
		return nil
	}
	cfg, err := config.LoadConfig(fitConfig)
	if err != nil {
		return err
	}
	if !cfg.DBCreds.Enabled() {
		return errors.New("config has no db_creds")
	}
	name := fitName
	if name == "" {
		name = fitOut
	}

	ctx := context.Background()
	pool, err := db.NewConnection(ctx, cfg.DBCreds)
	if err != nil {
		return err
	}
	defer pool.Close()
	store := db.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err = store.SaveModel(ctx, name, model)
	return err
}

// fitModel fits a model to X, an N×D matrix of observations.
func fitModel(X *mat.Dense, components int) (*pca.Model, error) {
	p := pca.NewPCA(components)
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Model()
}
