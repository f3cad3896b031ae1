package binarycache

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Tests below spawn real child processes through /bin/sh and are
// skipped on Windows, same as the binaries they stand in for.

func writeScript(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("test scripts require a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-binary")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))

	return path
}

func TestRunBinaryCapturesOutput(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "echo out\necho err >&2\n")
	m := New("foo", "1.0", WithOverridePath(script))

	result, err := m.RunBinary(context.Background(), nil, DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
}

func TestRunBinaryPassesArguments(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `printf 'Args: %s %s\n' "$1" "$2"`+"\n")
	m := New("foo", "1.0", WithOverridePath(script))

	result, err := m.RunBinary(context.Background(), []string{"alpha", "beta"}, DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, "Args: alpha beta\n", result.Stdout)
}

// TestRunBinaryCheckedFailure covers the documented scenario: a binary
// that exits 1 under exit-code checking produces a process execution
// error carrying the code and captured stderr.
func TestRunBinaryCheckedFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "echo broken >&2\nexit 1\n")
	m := New("foo", "1.0", WithOverridePath(script))

	_, err := m.RunBinary(context.Background(), []string{"--version"}, DefaultRunOptions())
	require.Error(t, err)

	var procErr *ProcessExecutionError

	require.True(t, errors.As(err, &procErr))
	assert.Equal(t, 1, procErr.ExitCode)
	assert.Equal(t, "broken\n", procErr.Stderr)
	assert.Contains(t, procErr.Error(), "--version")
}

// TestRunBinaryUncheckedFailure returns a populated result instead of
// an error when checking is disabled.
func TestRunBinaryUncheckedFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "exit 3\n")
	m := New("foo", "1.0", WithOverridePath(script))

	result, err := m.RunBinary(context.Background(), nil, &RunOptions{CaptureOutput: true})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

// TestRunBinaryCaptureRedirectConflict rejects capture plus explicit
// writers before any process is spawned.
func TestRunBinaryCaptureRedirectConflict(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "ran")
	script := writeScript(t, "touch "+marker+"\n")
	m := New("foo", "1.0", WithOverridePath(script))

	_, err := m.RunBinary(context.Background(), nil, &RunOptions{
		CaptureOutput: true,
		Stdout:        os.Stdout,
	})
	require.Error(t, err)

	var confErr *ConfigurationError

	require.True(t, errors.As(err, &confErr))

	_, err = os.Stat(marker)
	require.True(t, errors.Is(err, os.ErrNotExist), "process must not have been spawned")
}

// TestRunBinaryOverridePathSkipsDownload never touches the network when
// a local override is set, cached file or not.
func TestRunBinaryOverridePathSkipsDownload(t *testing.T) {
	t.Parallel()

	server := newFakeAssetServer(t, []byte("bin"), http.StatusOK)
	script := writeScript(t, "echo local\n")

	m := New("foo", "1.0",
		WithOverridePath(script),
		WithOverrideURL(server.URL+"/foo"),
		WithEnviron(envMap(nil)))

	result, err := m.RunBinary(context.Background(), nil, DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, "local\n", result.Stdout)
	require.EqualValues(t, 0, server.hits.Load())
}

// TestRunBinaryDownloadsWhenCold exercises the full flow: cold cache,
// download, chmod, execute.
func TestRunBinaryDownloadsWhenCold(t *testing.T) {
	t.Parallel()

	server := newFakeAssetServer(t, []byte("#!/bin/sh\necho fetched\n"), http.StatusOK)
	env, _ := cacheEnv(t)

	m := New("foo", "1.0", WithEnviron(env), WithBaseURL(server.URL))

	result, err := m.RunBinary(context.Background(), nil, DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, "fetched\n", result.Stdout)

	// Second run reuses the cache.
	_, err = m.RunBinary(context.Background(), nil, DefaultRunOptions())
	require.NoError(t, err)
	require.EqualValues(t, 1, server.hits.Load())
}

func TestRunBinaryExtraEnvAndWorkingDir(t *testing.T) {
	t.Parallel()

	workDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	script := writeScript(t, `printf '%s\n' "$BINCACHE_TEST_VALUE"`+"\npwd\n")
	m := New("foo", "1.0", WithOverridePath(script))

	result, err := m.RunBinary(context.Background(), nil, &RunOptions{
		CaptureOutput: true,
		CheckExitCode: true,
		ExtraEnv:      map[string]string{"BINCACHE_TEST_VALUE": "hello"},
		WorkingDir:    workDir,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n"+workDir+"\n", result.Stdout)
}

// TestRunBinaryDecodesOutput decodes non-UTF-8 child output by IANA
// encoding name.
func TestRunBinaryDecodesOutput(t *testing.T) {
	t.Parallel()

	// 0xE9 is "é" in ISO-8859-1.
	script := writeScript(t, `printf '\351\n'`+"\n")
	m := New("foo", "1.0", WithOverridePath(script))

	result, err := m.RunBinary(context.Background(), nil, &RunOptions{
		CaptureOutput: true,
		CheckExitCode: true,
		Encoding:      "ISO-8859-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "é\n", result.Stdout)
}

func TestRunBinaryUnknownEncoding(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "echo hi\n")
	m := New("foo", "1.0", WithOverridePath(script))

	_, err := m.RunBinary(context.Background(), nil, &RunOptions{
		CaptureOutput: true,
		Encoding:      "no-such-charset",
	})
	require.Error(t, err)

	var confErr *ConfigurationError

	require.True(t, errors.As(err, &confErr))
}

// TestRunBinaryWarnsWithoutFlagPlumbing emits a non-fatal warning when
// neither the flag round trip nor construction-time overrides
// configured the manager.
func TestRunBinaryWarnsWithoutFlagPlumbing(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	script := writeScript(t, "echo hi\n")

	// Override set directly, bypassing both options and flags, so the
	// manager cannot tell users were given a way to customize it.
	m := New("foo", "1.0", WithLogger(zap.New(core).Sugar()))
	m.overridePath = script

	result, err := m.RunBinary(context.Background(), nil, DefaultRunOptions())
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result.Stdout)
	require.Equal(t, 1, logs.Len())

	// The preset options suppress the warning.
	logs.TakeAll()

	m = New("foo", "1.0",
		WithLogger(zap.New(core).Sugar()),
		WithOverridePath(script))

	_, err = m.RunBinary(context.Background(), nil, DefaultRunOptions())
	require.NoError(t, err)
	require.Equal(t, 0, logs.Len())
}
