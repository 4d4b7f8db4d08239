package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"metricwatch/internal/config"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "metricwatch",
	Short:         "Host metrics sampler with a windowed query API",
	Long:          `metricwatch samples CPU, memory, swap, disk and network usage on a fixed cadence, keeps a bounded in-memory history and serves it over HTTP and WebSocket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}

		l, err := NewLogger(loaded.Log.Level, loaded.Log.Format, os.Stderr)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath,
		"config",
		os.Getenv(config.EnvPrefix+"CONFIG"),
		"Path to the YAML configuration file.",
	)
	rootCmd.PersistentFlags().StringVar(&logLevel,
		"log-level",
		"info",
		"Log level. One of debug, info, warn, error.",
	)

	rootCmd.AddCommand(serveCmd, tokenCmd, sampleCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
