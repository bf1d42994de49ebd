package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/lungrag/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

// ConfigShowResult is the response for config show.
type ConfigShowResult struct {
	Source string         `json:"source"`
	Config *config.Config `json:"config"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		red := cfg.Redacted()
		if humanOutput {
			outputHuman("# source: %s\n", sourceLabel())
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(red)
		}
		return outputJSON(ConfigShowResult{Source: sourceLabel(), Config: red})
	},
}

// ConfigPathResult is the response for config path.
type ConfigPathResult struct {
	Loaded string `json:"loaded"`
	Global string `json:"global"`
	Local  string `json:"local"`
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which config files are consulted",
	RunE: func(cmd *cobra.Command, args []string) error {
		res := ConfigPathResult{
			Loaded: sourceLabel(),
			Global: config.GlobalConfigPath(),
			Local:  config.LocalConfigFile,
		}
		if humanOutput {
			outputHuman("loaded: %s\nglobal: %s\nlocal:  %s\n", res.Loaded, res.Global, res.Local)
			return nil
		}
		return outputJSON(res)
	},
}

func sourceLabel() string {
	if loadedFromPath == "" {
		return "defaults"
	}
	return loadedFromPath
}
