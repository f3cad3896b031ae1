package bincache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	binarycache "github.com/oshokin/binary-cache"
	"github.com/oshokin/binary-cache/internal/config"
	"github.com/oshokin/binary-cache/internal/logger"
)

var (
	errBinaryInUse    = errors.New("binary appears to be running, pass --force to remove anyway")
	errVersionNeeded  = errors.New("a version is required unless --all is set")
	errNothingToClean = errors.New("nothing cached for this binary")
)

// Options are the inputs shared by the bincache subcommands.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// BinaryName is the name of the managed binary.
	BinaryName string
	// Version is the managed binary's version string.
	Version string
	// OverridePath points at a local binary to use instead of
	// downloading anything.
	OverridePath string
	// OverrideURL replaces the remote source when a download happens.
	OverrideURL string
}

// newManager assembles a library manager from CLI options and settings.
func newManager(ctx context.Context, opts *Options) (*binarycache.Manager, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	managerOptions := []binarycache.Option{
		binarycache.WithLogger(logger.FromContext(ctx)),
		binarycache.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		// The CLI always exposes the override surface, so preset both,
		// empty or not; this also keeps the library from warning about
		// a missing flag round trip.
		binarycache.WithOverridePath(opts.OverridePath),
		binarycache.WithOverrideURL(opts.OverrideURL),
	}

	if cfg.BaseURL != "" {
		managerOptions = append(managerOptions, binarycache.WithBaseURL(cfg.BaseURL))
	}

	return binarycache.New(opts.BinaryName, opts.Version, managerOptions...), nil
}

// Download ensures the binary is present in the cache and returns its
// local path.
func Download(ctx context.Context, opts *Options) (string, error) {
	ctx = logger.WithName(ctx, "bincache")

	m, err := newManager(ctx, opts)
	if err != nil {
		return "", err
	}

	return m.DownloadBinary(ctx)
}

// CachePath resolves the deterministic cache path without downloading
// anything.
func CachePath(ctx context.Context, opts *Options) (string, error) {
	m, err := newManager(ctx, opts)
	if err != nil {
		return "", err
	}

	return m.CachedBinaryPath()
}

// Run executes the managed binary with the child's output streamed to
// this process, downloading it first when the cache is cold. It returns
// the child's exit code; with check enabled a non-zero exit comes back
// as an error instead.
func Run(ctx context.Context, opts *Options, args []string, check bool) (int, error) {
	ctx = logger.WithName(ctx, "bincache")

	m, err := newManager(ctx, opts)
	if err != nil {
		return 0, err
	}

	result, err := m.RunBinary(ctx, args, &binarycache.RunOptions{
		CheckExitCode: check,
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	})
	if err != nil {
		return 0, err
	}

	return result.ExitCode, nil
}

// Clean removes the cached binary for the given version, or the whole
// per-binary cache subtree when allVersions is set. This is the manual
// cache clearing the library itself never performs. Unless force is
// set, it refuses to touch the cache of a binary that is currently
// running on this host.
func Clean(ctx context.Context, opts *Options, allVersions, force bool) error {
	ctx = logger.WithName(ctx, "bincache")

	if !allVersions && opts.Version == "" {
		return errVersionNeeded
	}

	if !force {
		running, err := isProcessRunning(opts.BinaryName)
		if err != nil {
			logger.Warnf(ctx, "Could not inspect the process list: %v", err)
		} else if running {
			return fmt.Errorf("%s: %w", opts.BinaryName, errBinaryInUse)
		}
	}

	m, err := newManager(ctx, opts)
	if err != nil {
		return err
	}

	target, err := m.CachedBinaryRoot()
	if err != nil {
		return err
	}

	if !allVersions {
		target = filepath.Join(target, opts.Version)
	}

	if _, err = os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", opts.BinaryName, errNothingToClean)
		}

		return fmt.Errorf("inspect cache: %w", err)
	}

	if err = os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove cached binary: %w", err)
	}

	logger.InfoKV(ctx, "Removed cached binary",
		"binary", opts.BinaryName, "path", target)

	return nil
}

// isProcessRunning reports whether another process with the given
// executable name is alive on this host.
func isProcessRunning(executable string) (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == executable {
			return true, nil
		}
	}

	return false, nil
}
