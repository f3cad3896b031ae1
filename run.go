package binarycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// RunOptions controls a single invocation of the managed binary.
// The zero value streams nothing, checks nothing and decodes as UTF-8;
// DefaultRunOptions mirrors the usual wrapper behavior instead.
type RunOptions struct {
	// CaptureOutput collects stdout and stderr into the Result.
	// Mutually exclusive with explicit Stdout/Stderr writers.
	CaptureOutput bool

	// CheckExitCode turns a non-zero exit status into a
	// *ProcessExecutionError instead of a populated Result.
	CheckExitCode bool

	// Encoding names the text encoding of the binary's output, by IANA
	// name. Empty means UTF-8. Only meaningful with CaptureOutput.
	Encoding string

	// ExtraEnv is appended to the current process environment.
	ExtraEnv map[string]string

	// WorkingDir is the child process working directory. Empty means
	// inherit.
	WorkingDir string

	// Stdin is the child's standard input. Nil means no input.
	Stdin io.Reader

	// Stdout and Stderr stream the child's output directly. Mutually
	// exclusive with CaptureOutput.
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultRunOptions returns the conventional configuration: capture
// both output streams, fail on non-zero exit, decode as UTF-8.
func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		CaptureOutput: true,
		CheckExitCode: true,
	}
}

// Result describes a completed invocation of the managed binary.
type Result struct {
	// ExitCode is the process exit status.
	ExitCode int
	// Stdout and Stderr hold the decoded output when capture was
	// enabled, empty otherwise.
	Stdout string
	Stderr string
}

// RunBinary executes the managed binary with the given arguments, waits
// for it to finish and returns the completed result. A nil opts is
// treated as DefaultRunOptions.
//
// The binary path is the override path when set; otherwise the full
// download flow runs first, which may hit the network once per
// (name, version) pair and is a no-op afterwards.
func (m *Manager) RunBinary(ctx context.Context, args []string, opts *RunOptions) (*Result, error) {
	if opts == nil {
		opts = DefaultRunOptions()
	}

	if opts.CaptureOutput && (opts.Stdout != nil || opts.Stderr != nil) {
		return nil, &ConfigurationError{
			Reason: "CaptureOutput and explicit Stdout/Stderr writers are mutually exclusive",
		}
	}

	decode, err := outputDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}

	if !m.overridesConfigured() {
		m.logger.Warnw("Override flags were never registered or consumed; "+
			"end users cannot customize the binary path or source URL",
			"binary", m.binaryName)
	}

	binaryPath := m.overridePath
	if binaryPath == "" {
		binaryPath, err = m.DownloadBinary(ctx)
		if err != nil {
			return nil, err
		}
	}

	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Stdin = opts.Stdin

	if len(opts.ExtraEnv) > 0 {
		env := os.Environ()
		for key, value := range opts.ExtraEnv {
			env = append(env, key+"="+value)
		}

		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer

	if opts.CaptureOutput {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
	}

	m.logger.Debugw("Running binary", "path", binaryPath, "args", args)

	runErr := cmd.Run()

	result := &Result{}

	if opts.CaptureOutput {
		if result.Stdout, err = decode(stdout.Bytes()); err != nil {
			return nil, fmt.Errorf("decode stdout: %w", err)
		}

		if result.Stderr, err = decode(stderr.Bytes()); err != nil {
			return nil, fmt.Errorf("decode stderr: %w", err)
		}
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", binaryPath, runErr)
		}

		result.ExitCode = exitErr.ExitCode()

		if opts.CheckExitCode {
			return nil, &ProcessExecutionError{
				Path:     binaryPath,
				Args:     args,
				ExitCode: result.ExitCode,
				Stderr:   result.Stderr,
			}
		}
	}

	return result, nil
}

// outputDecoder resolves an IANA encoding name into a byte-to-string
// decoder. Empty and UTF-8 names use a plain conversion.
func outputDecoder(name string) (func([]byte) (string, error), error) {
	trimmed := strings.TrimSpace(name)

	switch strings.ToLower(trimmed) {
	case "", "utf-8", "utf8":
		return func(data []byte) (string, error) {
			return string(data), nil
		}, nil
	}

	enc, err := ianaindex.IANA.Encoding(trimmed)
	if err != nil || enc == nil {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("unknown output encoding %q", name),
			Err:    err,
		}
	}

	return func(data []byte) (string, error) {
		decoded, decodeErr := enc.NewDecoder().Bytes(data)
		if decodeErr != nil {
			return "", decodeErr
		}

		return string(decoded), nil
	}, nil
}
