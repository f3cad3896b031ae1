// Package bincache is the service layer between the cobra commands and
// the binarycache library.
//
// It translates CLI options and YAML settings into a configured
// manager, runs the requested operation (download, run, path, clean),
// and keeps operator-only concerns like process-aware cache clearing
// out of the library itself.
package bincache
