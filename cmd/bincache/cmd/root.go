package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/binary-cache/internal/config"
	"github.com/oshokin/binary-cache/internal/logger"
	"github.com/oshokin/binary-cache/internal/service/bincache"
	"github.com/oshokin/binary-cache/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// logLevel overrides the logging level from settings.
	logLevel string

	// Per-subcommand override flags mirroring the library's override
	// surface.
	overridePath string
	overrideURL  string

	// check makes `run` fail on a non-zero child exit code.
	check bool
	// cleanAll removes every cached version instead of a single one.
	cleanAll bool
	// cleanForce skips the running-process guard on clean.
	cleanForce bool

	// rootCmd represents the base command managing the local binary cache.
	rootCmd = &cobra.Command{
		Use:   "bincache",
		Short: "Download, cache and run versioned binaries.",
		Long: `Manage a host-local cache of versioned executables.

Binaries live under <cache_root>/<name>/<version>/<name>, where the
cache root comes from XDG_CACHE_HOME (or $HOME/.cache). A binary is
downloaded at most once per version and reused from the cache
afterwards. Per-invocation overrides can point at a local binary or an
alternate download URL instead.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			chosen := cfg.LogLevel
			if cmd.Flags().Changed("log-level") {
				chosen = logLevel
			}

			if level, ok := logger.ParseLogLevel(chosen); ok {
				logger.SetLevel(level)
			}

			return nil
		},
	}

	downloadCmd = &cobra.Command{
		Use:   "download <name> <version>",
		Short: "Ensure a binary is cached and print its path.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext()
			defer stop()

			path, err := bincache.Download(ctx, serviceOptions(args))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		},
	}

	runCmd = &cobra.Command{
		Use:   "run <name> <version> [-- args...]",
		Short: "Run a cached binary, downloading it first if needed.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := notifyContext()
			defer stop()

			code, err := bincache.Run(ctx, serviceOptions(args), args[2:], check)
			if err != nil {
				return err
			}

			if code != 0 {
				// Mirror the child's exit status.
				os.Exit(code)
			}

			return nil
		},
	}

	pathCmd = &cobra.Command{
		Use:   "path <name> <version>",
		Short: "Print the deterministic cache path of a binary.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext()
			defer stop()

			path, err := bincache.CachePath(ctx, serviceOptions(args))
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		},
	}

	cleanCmd = &cobra.Command{
		Use:   "clean <name> [version]",
		Short: "Remove a cached binary from this host.",
		Long: `Remove the cached copy of a binary, one version or all of them.

This is the manual cache clearing counterpart to download: the cache is
never evicted automatically. Unless --force is set, a binary that is
currently running on this host is left alone.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := notifyContext()
			defer stop()

			opts := &bincache.Options{
				ConfigPath: configPath,
				BinaryName: args[0],
			}
			if len(args) > 1 {
				opts.Version = args[1]
			}

			return bincache.Clean(ctx, opts, cleanAll, cleanForce)
		},
	}
)

// notifyContext sets up graceful shutdown handling.
func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// serviceOptions maps positional args and override flags to service
// layer options.
func serviceOptions(args []string) *bincache.Options {
	return &bincache.Options{
		ConfigPath:   configPath,
		BinaryName:   args[0],
		Version:      args[1],
		OverridePath: overridePath,
		OverrideURL:  overrideURL,
	}
}

// Execute runs the bincache CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error(context.Background(), err.Error())
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "logging level (debug, info, warn, error)")

	for _, command := range []*cobra.Command{downloadCmd, runCmd} {
		command.Flags().StringVar(&overridePath, "override-path", "",
			"use this local binary instead of downloading")
		command.Flags().StringVar(&overrideURL, "override-url", "",
			"download from this URL instead of the default template")
	}

	runCmd.Flags().BoolVar(&check, "check", false, "fail when the binary exits non-zero")

	cleanCmd.Flags().BoolVar(&cleanAll, "all", false, "remove every cached version of the binary")
	cleanCmd.Flags().BoolVar(&cleanForce, "force", false, "remove even if the binary appears to be running")

	rootCmd.AddCommand(downloadCmd, runCmd, pathCmd, cleanCmd)
}
