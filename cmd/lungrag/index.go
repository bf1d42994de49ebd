package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/lungrag/internal/catalog"
	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/pdf"
	"github.com/matsen/lungrag/internal/vectorindex"
)

var historyLimit int

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexCheckCmd)
	indexCmd.AddCommand(indexInfoCmd)

	indexInfoCmd.Flags().IntVar(&historyLimit, "history", 5, "Number of past builds to list")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the saved index",
	Long:  `Commands for checking and describing the saved vector index.`,
}

// IndexCheckResult is the response for the index check command.
type IndexCheckResult struct {
	Status         string   `json:"status"`
	IndexPath      string   `json:"index_path"`
	Entries        int      `json:"entries"`
	Model          string   `json:"model"`
	IndexCreated   string   `json:"index_created"`
	LastBuildID    int64    `json:"last_build_id,omitempty"`
	DocumentsTotal int      `json:"documents_total"`
	Added          []string `json:"added"`
	Changed        []string `json:"changed"`
	Removed        []string `json:"removed"`
	Recommendation string   `json:"recommendation,omitempty"`
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether the index matches the corpus",
	Long: `Compare the PDFs in the corpus directory with those recorded for the last
successful build. Exits with code 6 if files were added, changed or removed.`,
	RunE: runIndexCheck,
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	idx := mustLoadIndex()

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		exitWithError(ExitError, "opening build catalog: %v", err)
	}
	defer cat.Close()

	result := IndexCheckResult{
		IndexPath:    cfg.IndexPath,
		Entries:      idx.Size(),
		Model:        idx.Model(),
		IndexCreated: idx.CreatedAt().Format(time.RFC3339),
	}

	current, err := corpusFingerprints(cfg.CorpusDir)
	if err != nil {
		exitWithError(exitCodeFor(err), "scanning corpus: %v", err)
	}
	result.DocumentsTotal = len(current)

	var recorded []catalog.DocumentRecord
	build, err := cat.LastSuccessfulBuild()
	switch {
	case errors.Is(err, catalog.ErrNoBuilds):
		// An index without catalog history cannot be vouched for.
	case err != nil:
		exitWithError(ExitError, "reading build catalog: %v", err)
	default:
		result.LastBuildID = build.ID
		recorded, err = cat.DocumentsForBuild(build.ID)
		if err != nil {
			exitWithError(ExitError, "reading build documents: %v", err)
		}
	}

	st := catalog.Compare(recorded, current)
	result.Added, result.Changed, result.Removed = st.Added, st.Changed, st.Removed

	result.Status = "healthy"
	exitCode := ExitSuccess
	if st.Stale() || build == nil {
		result.Status = "stale"
		result.Recommendation = "Run 'lungrag build' to update the index"
		exitCode = ExitIndexStale
	}

	if humanOutput {
		status := good(result.Status)
		if exitCode != ExitSuccess {
			status = warn(result.Status)
		}
		fmt.Printf("Index Status: %s\n\n", status)
		fmt.Printf("Corpus:\n")
		fmt.Printf("  PDFs in %s: %d\n", cfg.CorpusDir, result.DocumentsTotal)
		fmt.Printf("  Added since build: %d\n", len(st.Added))
		fmt.Printf("  Changed since build: %d\n", len(st.Changed))
		fmt.Printf("  Removed since build: %d\n", len(st.Removed))
		for _, name := range st.Added {
			fmt.Printf("    + %s\n", name)
		}
		for _, name := range st.Changed {
			fmt.Printf("    ~ %s\n", name)
		}
		for _, name := range st.Removed {
			fmt.Printf("    - %s\n", name)
		}
		fmt.Printf("\nIndex Info:\n")
		fmt.Printf("  Entries: %d\n", result.Entries)
		fmt.Printf("  Model: %s\n", result.Model)
		fmt.Printf("  Created: %s\n", idx.CreatedAt().Format("2006-01-02 15:04:05"))
		if result.Recommendation != "" {
			fmt.Printf("\n%s\n", result.Recommendation)
		}
	} else {
		outputJSON(result)
	}

	exit(exitCode)
	return nil
}

// corpusFingerprints returns the fingerprint of every PDF in dir, keyed by
// file name.
func corpusFingerprints(dir string) (map[string]string, error) {
	paths, err := pdf.ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		fp, err := document.Fingerprint(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", pdf.ErrIO, filepath.Base(p), err)
		}
		out[filepath.Base(p)] = fp
	}
	return out, nil
}

// IndexInfoResult is the response for the index info command.
type IndexInfoResult struct {
	vectorindex.Info
	Path      string          `json:"path"`
	SizeBytes int64           `json:"size_bytes"`
	Builds    []catalog.Build `json:"builds"`
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the saved index and recent builds",
	RunE:  runIndexInfo,
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	idx := mustLoadIndex()
	size, _ := vectorindex.FileSize(cfg.IndexPath)

	result := IndexInfoResult{Info: idx.Info(), Path: cfg.IndexPath, SizeBytes: size, Builds: []catalog.Build{}}
	if cat, err := catalog.Open(cfg.CatalogPath); err == nil {
		if builds, err := cat.ListBuilds(historyLimit); err == nil {
			result.Builds = builds
		}
		cat.Close()
	}

	if !humanOutput {
		return outputJSON(result)
	}

	fmt.Printf("%s\n", heading("Index"))
	fmt.Printf("  Path: %s (%s)\n", result.Path, formatBytes(size))
	fmt.Printf("  Format version: %d\n", result.Version)
	fmt.Printf("  Model: %s (%d dimensions)\n", result.Model, result.Dimensions)
	fmt.Printf("  Entries: %d\n", result.Entries)
	fmt.Printf("  Created: %s\n", result.CreatedAt.Format("2006-01-02 15:04:05"))
	if len(result.Builds) == 0 {
		return nil
	}
	fmt.Printf("\n%s\n", heading("Recent builds"))
	for _, b := range result.Builds {
		line := fmt.Sprintf("  #%d %s %s", b.ID, b.StartedAt.Format("2006-01-02 15:04"), b.Status)
		switch b.Status {
		case catalog.StatusSucceeded:
			fmt.Printf("%s  %d docs, %d chunks\n", good(line), b.Documents, b.Chunks)
		case catalog.StatusFailed:
			fmt.Printf("%s  %s\n", warn(line), b.Error)
		default:
			fmt.Println(line)
		}
	}
	return nil
}

// mustLoadIndex loads the saved index or exits.
func mustLoadIndex() *vectorindex.Index {
	idx, err := vectorindex.Load(cfg.IndexPath)
	if err != nil {
		if errors.Is(err, vectorindex.ErrNotFound) {
			exitWithError(ExitIndexNotBuilt, "Index not found at %s\n\nRun 'lungrag build' to create it.", cfg.IndexPath)
		}
		exitWithError(ExitError, "loading index: %v", err)
	}
	return idx
}
