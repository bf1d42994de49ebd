package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/lungrag/internal/embedding"
	"github.com/matsen/lungrag/internal/rag"
)

var noProgress bool

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or rebuild the index from the corpus directory",
	Long: `Build or rebuild the vector index from every PDF in the corpus directory.

Pages without a text layer are rasterized and OCRed with tesseract. The
new index replaces the saved one only after it has been written in full.
With the default Ollama backend, run 'ollama pull all-minilm:l6-v2' first.`,
	RunE: runBuild,
}

// BuildResult is the response for the build command.
type BuildResult struct {
	Status string `json:"status"`
	*rag.BuildStats
	DurationSeconds float64 `json:"duration_seconds"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(ctx, cfg)
	defer a.Close()
	checkEmbedder(ctx, a.embedder)

	stats := mustBuild(ctx, a)

	if humanOutput {
		printBuildHuman(stats)
		return nil
	}
	return outputJSON(BuildResult{Status: "complete", BuildStats: stats, DurationSeconds: stats.Duration.Seconds()})
}

// mustBuild runs a synchronous build with optional progress, exiting on
// failure.
func mustBuild(ctx context.Context, a *app) *rag.BuildStats {
	showProgress := humanOutput && !noProgress
	if showProgress {
		fmt.Fprintf(os.Stderr, "Building index from %s...\n", cfg.CorpusDir)
		a.builder.SetProgressReporter(embedding.ProgressFunc(printProgress))
	}

	stats, err := a.pipeline.Build(ctx)
	if showProgress {
		clearProgress()
	}
	if err != nil {
		exitWithError(exitCodeFor(err), "building index: %v", err)
	}
	return stats
}

func printBuildHuman(s *rag.BuildStats) {
	fmt.Printf("\n%s\n", good("Build complete"))
	fmt.Printf("  Documents: %d\n", s.Documents)
	fmt.Printf("  Pages: %d (%d via OCR)\n", s.Pages, s.OCRPages)
	fmt.Printf("  Chunks: %d\n", s.Chunks)
	fmt.Printf("  Time elapsed: %s\n", formatDuration(s.Duration))
	fmt.Printf("  Index: %s (%s)\n", s.IndexPath, formatBytes(s.IndexBytes))
	fmt.Printf("  Model: %s (%d dimensions)\n", s.Model, s.Dimensions)

	var problems int
	for _, f := range s.Files {
		if f.Err != nil || f.DroppedPages > 0 {
			problems++
		}
	}
	if problems == 0 {
		return
	}
	fmt.Printf("\n%s\n", warn(fmt.Sprintf("%d file(s) with problems:", problems)))
	for _, f := range s.Files {
		switch {
		case f.Err != nil:
			fmt.Printf("  %s: %s\n", f.Document.Name, f.ErrorMessage())
		case f.DroppedPages > 0:
			fmt.Printf("  %s: %d page(s) without text\n", f.Document.Name, f.DroppedPages)
		}
	}
}
