// Package cmd implements the CLI commands for amppipe using Cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gaurav-prasanna/amppipe/config"
)

// Global flag variables.
var (
	flagConfig   string
	flagLogLevel string
	flagMode     string
	flagDisable  []string
)

// Loaded by the root command before any subcommand runs.
var (
	settings  = config.New()
	appConfig *config.Config
	logger    = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "amppipe",
	Short: "Rewrite HTML pages into AMP HTML",
	Long: `amppipe rewrites server-rendered HTML documents into valid AMP HTML.

It converts single files, fetched pages or whole sites, and can run as a
reverse proxy that serves AMP versions of an upstream site under /amp/.

Usage:
  amppipe convert <file|-|url> [flags]
  amppipe serve --upstream <url> [flags]`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagMode, "mode", "full", "Step set: full or minimal")
	rootCmd.PersistentFlags().StringSliceVar(&flagDisable, "disable", nil, "Steps to skip, e.g. --disable amp-form,clean-attributes")

	bindFlag(rootCmd.PersistentFlags().Lookup("log-level"), "log_level")
	bindFlag(rootCmd.PersistentFlags().Lookup("mode"), "mode")
	bindFlag(rootCmd.PersistentFlags().Lookup("disable"), "disabled_steps")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges .env, the config file, AMPPIPE_* variables and flags,
// then sets up the logger.
func loadConfig(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(settings, flagConfig)
	if err != nil {
		return err
	}

	appConfig = cfg
	logger = cfg.Logger()
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "file", flagConfig, "mode", cfg.Mode)
	return nil
}

// bindFlag ties a flag to a config key so an explicit flag overrides the
// file and environment.
func bindFlag(f *pflag.Flag, key string) {
	if err := settings.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("binding flag for %s: %v", key, err))
	}
}
