package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/docstore"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docstore",
	Short: "A backend-agnostic document store with a demo blog API",
	Long: `docstore runs typed documents over MongoDB or an in-memory backend.
Configuration comes from an optional YAML file, then from the environment
(DOCSTORE_BACKEND, MONGODB_CONNECTION_STRING, MONGODB_DB_NAME, LOG_LEVEL).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// loadConfig layers the config file, the environment and --verbose over the
// defaults and validates the result.
func loadConfig() (docstore.Config, error) {
	cfg := docstore.DefaultConfig()
	if configPath != "" {
		loaded, err := docstore.LoadConfig(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, cfg docstore.Config) *slog.Logger {
	level, err := docstore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
