package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/lungrag/internal/document"
	"github.com/matsen/lungrag/internal/rag"
	"github.com/matsen/lungrag/internal/vectorindex"
)

var (
	buildIfMissing bool
	showPassages   bool
	searchLimit    int
)

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)

	queryCmd.Flags().BoolVar(&buildIfMissing, "build-if-missing", false, "Build the index first if none has been saved")
	queryCmd.Flags().BoolVar(&showPassages, "passages", false, "Include the retrieved passages in the output")
	queryCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output when building")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Number of passages to return (default: retrieval.top_k)")
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from the indexed literature",
	Long: `Answer a question using the passages nearest to it in the index.

The answer cites its sources as [file p.N]. If the chat model is
unreachable, the retrieved sources are still reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Show the passages nearest to a text, without asking the chat model",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

// QueryResult is the response for the query command.
type QueryResult struct {
	Status   string               `json:"status"`
	Query    string               `json:"query"`
	Answer   string               `json:"answer"`
	Sources  []document.Citation  `json:"sources"`
	Model    string               `json:"model"`
	Passages []vectorindex.Result `json:"passages,omitempty"`
}

// SearchResult is the response for the search command.
type SearchResult struct {
	Status  string               `json:"status"`
	Query   string               `json:"query"`
	Results []vectorindex.Result `json:"results"`
	Sources []document.Citation  `json:"sources"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	question := strings.Join(args, " ")
	a := newApp(ctx, cfg)
	defer a.Close()

	if a.pipeline.State() != rag.StateReady && buildIfMissing {
		checkEmbedder(ctx, a.embedder)
		mustBuild(ctx, a)
	}

	ans, err := a.answerer(cfg).Answer(ctx, question)
	if err != nil {
		var upstream *rag.UpstreamError
		if errors.As(err, &upstream) && !humanOutput {
			outputJSON(ErrorResponse{Status: "error", Error: err.Error(), Sources: upstream.Sources})
			os.Exit(ExitUpstream)
		}
		if errors.Is(err, rag.ErrIndexNotBuilt) {
			exitWithError(ExitIndexNotBuilt, "No index has been built\n\nRun 'lungrag build' or pass --build-if-missing.")
		}
		exitWithError(exitCodeFor(err), "%v", err)
	}

	if humanOutput {
		fmt.Printf("%s\n\n", heading(ans.Query))
		fmt.Printf("%s\n", wrapText(ans.Text, TextWrapWidth, ""))
		fmt.Printf("\n%s\n", heading("Sources"))
		for _, c := range ans.Sources {
			fmt.Printf("  %s\n", c)
		}
		if showPassages {
			printPassagesHuman(ans.Retrieved)
		}
		return nil
	}

	result := QueryResult{
		Status:  "success",
		Query:   ans.Query,
		Answer:  ans.Text,
		Sources: ans.Sources,
		Model:   ans.Model,
	}
	if showPassages {
		result.Passages = ans.Retrieved
	}
	return outputJSON(result)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if searchLimit < 0 {
		exitWithError(ExitError, "--limit must be positive")
	}

	a := newApp(ctx, cfg)
	defer a.Close()

	ret, err := a.answerer(cfg).Retrieve(ctx, strings.Join(args, " "), searchLimit)
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}

	if humanOutput {
		printPassagesHuman(ret.Results)
		return nil
	}
	return outputJSON(SearchResult{Status: "success", Query: ret.Query, Results: ret.Results, Sources: ret.Sources})
}

func printPassagesHuman(results []vectorindex.Result) {
	if len(results) == 0 {
		fmt.Println("No passages found.")
		return
	}
	fmt.Println()
	for i, r := range results {
		fmt.Printf("%d. [%.2f] %s\n", i+1, r.Similarity, heading(r.Citation()))
		fmt.Printf("   %s\n\n", faint(truncateString(oneLine(r.Text), SnippetMaxLen)))
	}
}
