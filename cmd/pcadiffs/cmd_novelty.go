package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TFMV/SubspaceLikelihood/pkg/pcadiffs"
	"github.com/TFMV/SubspaceLikelihood/pkg/tfidf"
)

var noveltyCmd = &cobra.Command{
	Use:   "novelty",
	Short: "Rank text lines by distance from their principal subspace",
	Long: `Vectorize each line of a text file with TF-IDF, fit a PCA model to the
lines and rank them by DFFS. Lines the leading components explain poorly come
first.

Examples:
  pcadiffs novelty --input addresses.txt --components 5
  pcadiffs novelty --input addresses.txt --components 5 --top 20`,
	RunE: runNovelty,
}

var (
	noveltyInput      string
	noveltyComponents int
	noveltyTop        int
)

func init() {
	rootCmd.AddCommand(noveltyCmd)

	noveltyCmd.Flags().StringVar(&noveltyInput, "input", "", "Text file, one document per line (required)")
	noveltyCmd.Flags().IntVar(&noveltyComponents, "components", 2, "Eigenvectors to retain")
	noveltyCmd.Flags().IntVar(&noveltyTop, "top", 10, "Lines to print (0 prints all)")
	_ = noveltyCmd.MarkFlagRequired("input")
}

// novelLine is one ranked document.
type novelLine struct {
	Line string
	pcadiffs.Distance
}

func runNovelty(cmd *cobra.Command, args []string) error {
	file, err := os.Open(noveltyInput)
	if err != nil {
		return err
	}
	defer file.Close()

	lines, err := readLines(file)
	if err != nil {
		return err
	}
	ranked, err := rankNovelty(newEstimator(), lines, noveltyComponents)
	if err != nil {
		return err
	}
	if noveltyTop > 0 && noveltyTop < len(ranked) {
		ranked = ranked[:noveltyTop]
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DFFS\tDIFS\tLINE")
	for _, r := range ranked {
		fmt.Fprintf(tw, "%.6g\t%.6g\t%s\n", r.DFFS, r.DIFS, r.Line)
	}
	return tw.Flush()
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// rankNovelty orders lines by decreasing DFFS against a model fitted to the
// lines themselves.
func rankNovelty(e *pcadiffs.Estimator, lines []string, components int) ([]novelLine, error) {
	if components < 1 {
		return nil, errors.New("components must be at least 1")
	}
	if len(lines) < components+2 {
		return nil, fmt.Errorf("need at least %d lines for %d components, got %d", components+2, components, len(lines))
	}

	vectorizer := tfidf.NewVectorizer()
	if err := vectorizer.Fit(lines); err != nil {
		return nil, err
	}
	X, err := vectorizer.TransformMatrix(lines)
	if err != nil {
		return nil, err
	}
	model, err := fitModel(X, components)
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Int("lines", len(lines)).
		Int("vocabulary", vectorizer.Size()).
		Int("retained", model.Retained()).
		Msg("novelty model fitted")

	dists, err := e.Decompose(X.T(), model, false)
	if err != nil {
		return nil, err
	}

	ranked := make([]novelLine, len(lines))
	for i, d := range dists {
		ranked[i] = novelLine{Line: lines[i], Distance: d}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DFFS > ranked[j].DFFS
	})
	return ranked, nil
}
