package binarycache

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or contradictory configuration,
// such as an unset cache-home environment or mutually exclusive output
// capture settings. It is always detected before any external effect.
type ConfigurationError struct {
	// Reason is a human-readable description of what is misconfigured.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}

	return "configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DownloadError reports a failed fetch of the remote binary,
// either a transport failure or a non-OK HTTP status.
type DownloadError struct {
	// URL is the remote location the fetch was attempted against.
	URL string
	// Err is the underlying transport or status error.
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// FilesystemError reports a failed filesystem operation while placing
// the downloaded binary into the cache. Permission-fix failures are
// not reported this way; they are downgraded to log warnings.
type FilesystemError struct {
	// Op names the operation that failed, e.g. "create cache directory".
	Op string
	// Path is the filesystem path the operation targeted.
	Path string
	// Err is the underlying OS error.
	Err error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ProcessExecutionError reports that the managed binary exited with a
// non-zero status while exit-code checking was enabled.
type ProcessExecutionError struct {
	// Path is the binary that was executed.
	Path string
	// Args are the arguments the binary was invoked with.
	Args []string
	// ExitCode is the non-zero exit status.
	ExitCode int
	// Stderr holds the decoded standard error output when capture was
	// enabled, empty otherwise.
	Stderr string
}

func (e *ProcessExecutionError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.commandLine(), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}

	return msg
}

func (e *ProcessExecutionError) commandLine() string {
	if len(e.Args) == 0 {
		return e.Path
	}

	return e.Path + " " + strings.Join(e.Args, " ")
}
