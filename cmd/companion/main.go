package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TanguyBaudrin/familly-companion/internal/config"
	"github.com/TanguyBaudrin/familly-companion/internal/logging"
)

const programName = "companion"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// commonRun loads the config stashed in the command context and sets up
// logging from it.
func commonRun(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, nil, fmt.Errorf("no config found in context")
	}
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	return cfg, logging.Setup(level), nil
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Family task and reward tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	}

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(ledgerCommand())
	rootCmd.AddCommand(statsCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
