package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navigator-cli/internal/config"
	"github.com/xkilldash9x/navigator-cli/internal/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd is the base command; all behavior lives in subcommands.
var rootCmd = &cobra.Command{
	Use:     "navigator-cli",
	Short:   "Navigator drives a real browser with an LLM to complete web tasks.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			// Fallback logger so the error itself is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "navigator-cli"})
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Debug("Starting navigator-cli", zap.String("version", Version))
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./navigator.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
