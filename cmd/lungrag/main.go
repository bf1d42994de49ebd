// Package main provides the lungrag CLI entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/lungrag/internal/config"
	"github.com/matsen/lungrag/internal/logger"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	logLevel    string

	// cfg is loaded before every command runs.
	cfg            *config.Config
	loadedFromPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(ExitError, "%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lungrag",
	Short: "Question answering over a folder of lung-disease literature",
	Long: `lungrag indexes a directory of medical PDFs and answers questions about
them with citations.

PDF text is extracted directly, with OCR for scanned pages, split into
overlapping windows and embedded. Questions retrieve the nearest windows,
which a hosted chat model uses to write a grounded answer. All commands
output JSON by default; use --human for readable output.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./lungrag.yml or ~/.config/lungrag/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.Version = Version
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, path, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	logger.Setup(c.Logging.Level, c.Logging.Format)

	cfg = c
	loadedFromPath = path
	return nil
}

// exit terminates with code unless it is ExitSuccess.
func exit(code int) {
	if code != ExitSuccess {
		os.Exit(code)
	}
}
