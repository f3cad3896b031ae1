package binarycache

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the asset host the default remote URL template
	// points at. The full default URL for a binary is
	// <DefaultBaseURL>/<name>/<version>/bin/<name>.
	DefaultBaseURL = "https://storage.googleapis.com/pre-commit-assets"

	// cacheHomeEnv names the environment variable holding the cache root.
	cacheHomeEnv = "XDG_CACHE_HOME"

	// homeEnv names the fallback environment variable used to derive
	// the cache root when cacheHomeEnv is unset.
	homeEnv = "HOME"

	// defaultDownloadTimeout bounds a single fetch when no custom HTTP
	// client is injected.
	defaultDownloadTimeout = 5 * time.Minute
)

// Manager resolves, downloads and executes a single cached, versioned
// binary. The binary name doubles as the filesystem segment under the
// cache root and as the user-facing label in flag names and log output,
// so do not create two managers with the same binary name: they would
// share a cache path and register clashing flags. Nothing enforces
// this; it is a caller responsibility.
//
// The zero value is not usable, construct with New.
type Manager struct {
	binaryName string
	version    string

	overridePath string
	overrideURL  string
	// overridesPreset records that overrides were supplied at
	// construction time, which makes skipping the flag plumbing fine.
	overridesPreset bool

	flagsAdded   bool
	flagsHandled bool

	baseURL   string
	client    *http.Client
	logger    *zap.SugaredLogger
	lookupEnv func(string) (string, bool)
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithLogger injects the structured logger used for progress and
// warning messages. The default is a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithHTTPClient injects the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// WithBaseURL replaces the default asset host, e.g. to point at a
// mirror. The per-binary path layout <name>/<version>/bin/<name> stays
// the same. An explicit override URL still wins over the template.
func WithBaseURL(baseURL string) Option {
	return func(m *Manager) {
		if baseURL != "" {
			m.baseURL = baseURL
		}
	}
}

// WithOverridePath presets the local-binary override, bypassing
// download entirely. Equivalent to the end user passing
// --override-<name>-path.
func WithOverridePath(path string) Option {
	return func(m *Manager) {
		m.overridePath = path
		m.overridesPreset = true
	}
}

// WithOverrideURL presets the remote-source override, used only when a
// download is actually needed. Equivalent to the end user passing
// --override-<name>-url.
func WithOverrideURL(url string) Option {
	return func(m *Manager) {
		m.overrideURL = url
		m.overridesPreset = true
	}
}

// WithEnviron replaces the environment lookup used for cache path
// resolution. Intended for tests.
func WithEnviron(lookup func(string) (string, bool)) Option {
	return func(m *Manager) {
		if lookup != nil {
			m.lookupEnv = lookup
		}
	}
}

// New creates a Manager for the given binary name and version.
func New(binaryName, version string, opts ...Option) *Manager {
	m := &Manager{
		binaryName: binaryName,
		version:    version,
		baseURL:    DefaultBaseURL,
		client:     &http.Client{Timeout: defaultDownloadTimeout},
		logger:     zap.NewNop().Sugar(),
		lookupEnv:  os.LookupEnv,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// BinaryName returns the managed binary's name.
func (m *Manager) BinaryName() string { return m.binaryName }

// Version returns the managed binary's version string.
func (m *Manager) Version() string { return m.version }

// CachedBinaryRoot returns the root directory holding all cached
// versions of this binary: <cache_root>/<name>. The cache root comes
// from XDG_CACHE_HOME, falling back to $HOME/.cache.
func (m *Manager) CachedBinaryRoot() (string, error) {
	if cacheHome, ok := m.lookupEnv(cacheHomeEnv); ok && cacheHome != "" {
		return filepath.Join(cacheHome, m.binaryName), nil
	}

	home, ok := m.lookupEnv(homeEnv)
	if !ok || home == "" {
		return "", &ConfigurationError{
			Reason: fmt.Sprintf("neither %s nor %s is set, cannot resolve cache root", cacheHomeEnv, homeEnv),
		}
	}

	return filepath.Join(home, ".cache", m.binaryName), nil
}

// CachedBinaryPath returns the deterministic cache location of the
// binary: <cache_root>/<name>/<version>/<name>.
func (m *Manager) CachedBinaryPath() (string, error) {
	root, err := m.CachedBinaryRoot()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, m.version, m.binaryName), nil
}

// RemoteBinaryURL returns the URL a download would fetch from: the
// override URL when set, otherwise the default template.
func (m *Manager) RemoteBinaryURL() string {
	if m.overrideURL != "" {
		return m.overrideURL
	}

	return fmt.Sprintf("%s/%s/%s/bin/%s", m.baseURL, m.binaryName, m.version, m.binaryName)
}

// overridesConfigured reports whether the flag plumbing ran or
// overrides were preset, used to decide if RunBinary should warn about
// a likely incomplete CLI integration.
func (m *Manager) overridesConfigured() bool {
	return m.overridesPreset || (m.flagsAdded && m.flagsHandled)
}
