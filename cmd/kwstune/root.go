package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/kwstune/internal/config"
)

// cli carries state shared by all subcommands.
type cli struct {
	configPath string
	logLevel   string

	level *slog.LevelVar
	cfg   *config.Config
	out   io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{level: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:   "kwstune",
		Short: "Tune keyword-spotting thresholds against reviewed recordings",
		Long: `kwstune searches for the decoder threshold that maximises the F1 score of a
keyword spotter on reviewed audio recordings.

A search is resumable: every step prints a token that continues it. An empty
token starts a fresh search; an empty next token means the search finished
and the best threshold was written to the detector profile.

Examples:
  # One step at a time
  kwstune step
  kwstune step --token gqdWZXJzaW9uAQ

  # Run to completion
  kwstune run --description "kitchen mic"

  # HTTP surface
  kwstune serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "kwstune.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	root.AddCommand(
		c.stepCmd(),
		c.runCmd(),
		c.ledgerCmd(),
		c.historyCmd(),
		c.serveCmd(),
	)
	return root
}

// init loads the configuration and installs the default logger.
func (c *cli) init(cmd *cobra.Command) error {
	c.out = cmd.OutOrStdout()

	cfg, err := config.Load(c.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found", c.configPath)
		}
		return err
	}
	if c.logLevel != "" {
		lvl := config.LogLevel(c.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("invalid --log-level %q", c.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	c.cfg = cfg

	c.level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: c.level})))
	return nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
