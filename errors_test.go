package binarycache

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err      error
		expected string
	}{
		"configuration": {
			err:      &ConfigurationError{Reason: "HOME is not set"},
			expected: "configuration: HOME is not set",
		},
		"download": {
			err:      &DownloadError{URL: "https://example.com/foo", Err: io.ErrUnexpectedEOF},
			expected: "download https://example.com/foo: unexpected EOF",
		},
		"filesystem": {
			err:      &FilesystemError{Op: "create cache directory", Path: "/tmp/c/foo", Err: io.ErrClosedPipe},
			expected: "create cache directory /tmp/c/foo: io: read/write on closed pipe",
		},
		"process": {
			err:      &ProcessExecutionError{Path: "/tmp/foo", Args: []string{"--version"}, ExitCode: 1, Stderr: "boom\n"},
			expected: "/tmp/foo --version exited with code 1: boom",
		},
	}

	for name, tc := range cases {
		tc := tc

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestErrorUnwrapping(t *testing.T) {
	t.Parallel()

	cause := io.ErrUnexpectedEOF

	require.True(t, errors.Is(&DownloadError{URL: "u", Err: cause}, cause))
	require.True(t, errors.Is(&FilesystemError{Op: "op", Path: "p", Err: cause}, cause))
	require.True(t, errors.Is(&ConfigurationError{Reason: "r", Err: cause}, cause))
}
