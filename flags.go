package binarycache

import (
	"fmt"

	"github.com/spf13/pflag"
)

// OverridePathFlag returns the name of the local-path override flag,
// --override-<name>-path.
func (m *Manager) OverridePathFlag() string {
	return fmt.Sprintf("override-%s-path", m.binaryName)
}

// OverrideURLFlag returns the name of the remote-source override flag,
// --override-<name>-url.
func (m *Manager) OverrideURLFlag() string {
	return fmt.Sprintf("override-%s-url", m.binaryName)
}

// AddFlags registers the two override flags on the provided flag set.
// Call it while assembling the CLI, before the flag set is parsed, and
// pass the parsed set back through HandleFlags.
func (m *Manager) AddFlags(fs *pflag.FlagSet) {
	m.flagsAdded = true

	targetPath, err := m.CachedBinaryPath()
	if err != nil {
		// Help text only; resolution errors surface again, fatally,
		// when a download is attempted.
		targetPath = "the local cache"
	}

	fs.String(m.OverridePathFlag(), "",
		fmt.Sprintf("path to a local copy of %s to use; when set, %s is not downloaded and the local copy is used directly",
			m.binaryName, m.binaryName))
	fs.String(m.OverrideURLFlag(), "",
		fmt.Sprintf("URL to download %s from when no copy exists at %s; "+
			"if the URL serves a version of %s other than %s this may be confusing, since %s is part of that path",
			m.binaryName, targetPath, m.binaryName, m.version, m.version))
}

// HandleFlags reads the override values out of the parsed flag set into
// the manager. It must run before RunBinary for end-user overrides to
// take effect.
func (m *Manager) HandleFlags(fs *pflag.FlagSet) error {
	m.flagsHandled = true

	overridePath, err := fs.GetString(m.OverridePathFlag())
	if err != nil {
		return &ConfigurationError{Reason: "override flags were not registered on this flag set", Err: err}
	}

	overrideURL, err := fs.GetString(m.OverrideURLFlag())
	if err != nil {
		return &ConfigurationError{Reason: "override flags were not registered on this flag set", Err: err}
	}

	m.overridePath = overridePath
	m.overrideURL = overrideURL

	return nil
}
