package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
	"github.com/TFMV/SubspaceLikelihood/pkg/utils"
)

var (
	logLevel string
	workers  int
	logger   zerolog.Logger
)

// rootCmd is the base command for the pcadiffs CLI
var rootCmd = &cobra.Command{
	Use:   "pcadiffs",
	Short: "Subspace likelihood scoring with DIFS and DFFS",
	Long: `pcadiffs fits PCA models and scores samples against them. A score is the
Gaussian log-likelihood approximated by the distance in feature space (DIFS)
plus the distance from feature space (DFFS).`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.ConfigureLogging(logLevel)
		logger = utils.NewLogger("pcadiffs", nil)
		utils.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (off|error|warn|info|debug)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Worker goroutines per batch (0 uses every CPU)")
}

func newEstimator() *pcadiffs.Estimator {
	opts := []pcadiffs.Option{pcadiffs.WithLogger(logger)}
	if workers > 0 {
		opts = append(opts, pcadiffs.WithWorkers(workers))
	}
	return pcadiffs.NewEstimator(opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
