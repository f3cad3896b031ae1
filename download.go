package binarycache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/binary-cache/internal/version"
)

const (
	// cacheFileMode is the permission set applied to cached binaries:
	// owner read/write/execute, group and others read/execute.
	cacheFileMode os.FileMode = 0o755

	// cacheDirMode is the permission set for created cache directories.
	cacheDirMode os.FileMode = 0o755
)

var errUnexpectedStatus = errors.New("unexpected http status")

// DownloadBinary ensures the binary is present in the local cache and
// returns its path.
//
// A file already sitting at the cache path short-circuits the whole
// operation; its content is never re-validated. Otherwise the remote
// bytes are fetched into a temporary file, moved into place with an
// atomic rename, and marked executable. Concurrent downloaders on the
// same host race benignly: the rename makes the last writer win without
// partially-written binaries ever being observable.
func (m *Manager) DownloadBinary(ctx context.Context) (string, error) {
	targetPath, err := m.CachedBinaryPath()
	if err != nil {
		return "", err
	}

	if _, err = os.Stat(targetPath); err == nil {
		m.logger.Infow("Binary already cached",
			"binary", m.binaryName, "path", targetPath)

		return targetPath, nil
	}

	remoteURL := m.RemoteBinaryURL()

	temporaryFile, err := m.fetch(ctx, remoteURL)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = os.Remove(temporaryFile)
	}()

	targetDir := filepath.Dir(targetPath)
	if err = os.MkdirAll(targetDir, cacheDirMode); err != nil {
		return "", &FilesystemError{Op: "create cache directory", Path: targetDir, Err: err}
	}

	if err = m.moveIntoCache(temporaryFile, targetPath); err != nil {
		return "", err
	}

	// Best effort: a non-executable cached binary fails later at
	// invocation time with a clear OS-level error anyway.
	if err = os.Chmod(targetPath, cacheFileMode); err != nil {
		m.logger.Warnw("Could not set executable permissions on cached binary",
			"path", targetPath, "error", err)
	}

	m.logger.Infow("Downloaded binary",
		"binary", m.binaryName, "url", remoteURL, "path", targetPath)

	return targetPath, nil
}

// fetch downloads the raw binary bytes into a temporary file and
// returns its path. The caller owns the file.
func (m *Manager) fetch(ctx context.Context, remoteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, http.NoBody)
	if err != nil {
		return "", &DownloadError{URL: remoteURL, Err: err}
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := m.client.Do(req)
	if err != nil {
		return "", &DownloadError{URL: remoteURL, Err: err}
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return "", &DownloadError{
			URL: remoteURL,
			Err: fmt.Errorf("%s: %w", response.Status, errUnexpectedStatus),
		}
	}

	outputFile, err := os.CreateTemp("", m.binaryName+"-download-")
	if err != nil {
		return "", &FilesystemError{Op: "create temporary file", Path: os.TempDir(), Err: err}
	}

	outputFileName := outputFile.Name()

	if _, err = io.Copy(outputFile, response.Body); err != nil {
		_ = outputFile.Close()
		_ = os.Remove(outputFileName)

		return "", &DownloadError{URL: remoteURL, Err: err}
	}

	if err = outputFile.Close(); err != nil {
		_ = os.Remove(outputFileName)

		return "", &FilesystemError{Op: "write temporary file", Path: outputFileName, Err: err}
	}

	return outputFileName, nil
}

// moveIntoCache places the downloaded file at the target path so that
// the path only ever holds a complete binary: readers either see
// nothing or the full bytes, never a partial write.
func (m *Manager) moveIntoCache(downloadedFile, targetPath string) error {
	if _, err := os.Stat(targetPath); err == nil {
		// A concurrent downloader won the race since our fast-path
		// check; swap its copy out with a rename-based apply,
		// last writer wins.
		return m.swapExisting(downloadedFile, targetPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return &FilesystemError{Op: "stat cache target", Path: targetPath, Err: err}
	}

	// First download: stage the bytes in the target directory under a
	// unique hidden name, then rename into place in one atomic step.
	// Staging in the same directory keeps the rename on one filesystem.
	staged, err := m.stageInCacheDir(downloadedFile, targetPath)
	if err != nil {
		return err
	}

	if err = os.Rename(staged, targetPath); err != nil {
		_ = os.Remove(staged)

		return &FilesystemError{Op: "move binary into cache", Path: targetPath, Err: err}
	}

	return nil
}

// stageInCacheDir copies the downloaded file into the target's
// directory under a unique hidden name and returns that path. The
// caller owns the staged file.
func (m *Manager) stageInCacheDir(downloadedFile, targetPath string) (string, error) {
	contents, err := os.Open(downloadedFile)
	if err != nil {
		return "", &FilesystemError{Op: "open downloaded file", Path: downloadedFile, Err: err}
	}

	defer func() {
		_ = contents.Close()
	}()

	staged, err := os.CreateTemp(filepath.Dir(targetPath), "."+m.binaryName+"-*.new")
	if err != nil {
		return "", &FilesystemError{Op: "stage binary in cache directory", Path: filepath.Dir(targetPath), Err: err}
	}

	stagedPath := staged.Name()

	if _, err = io.Copy(staged, contents); err != nil {
		_ = staged.Close()
		_ = os.Remove(stagedPath)

		return "", &FilesystemError{Op: "stage binary in cache directory", Path: stagedPath, Err: err}
	}

	if err = staged.Close(); err != nil {
		_ = os.Remove(stagedPath)

		return "", &FilesystemError{Op: "stage binary in cache directory", Path: stagedPath, Err: err}
	}

	// The staged copy carries the final mode already; the post-move
	// chmod only remains as a warn-only safety net against the umask.
	if err = os.Chmod(stagedPath, cacheFileMode); err != nil {
		m.logger.Warnw("Could not set executable permissions on staged binary",
			"path", stagedPath, "error", err)
	}

	return stagedPath, nil
}

// swapExisting replaces a binary already sitting at the target path
// with the downloaded one via a rename-based apply.
func (m *Manager) swapExisting(downloadedFile, targetPath string) error {
	contents, err := os.Open(downloadedFile)
	if err != nil {
		return &FilesystemError{Op: "open downloaded file", Path: downloadedFile, Err: err}
	}

	defer func() {
		_ = contents.Close()
	}()

	options := goupdate.Options{
		TargetPath: targetPath,
		TargetMode: cacheFileMode,
	}

	if err = goupdate.Apply(contents, options); err != nil {
		return &FilesystemError{Op: "move binary into cache", Path: targetPath, Err: err}
	}

	oldFileName := targetPath + ".old"
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}
