// Package binarycache manages a single cached, versioned executable on
// the local host.
//
// A Manager resolves a deterministic cache path under XDG_CACHE_HOME
// (or $HOME/.cache), downloads the binary from its remote location when
// the cache is cold, fixes the executable permission bits, and runs the
// binary as a child process. End users can redirect the manager at a
// local binary or an alternate URL through two flags the manager
// registers on a pflag flag set.
//
// The cache layout is <cache_root>/<name>/<version>/<name>; a file at
// that path is treated as immutable and is never re-validated or
// evicted by this package.
package binarycache
