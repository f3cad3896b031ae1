// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a sane console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, InfoKV, etc.).
//
// The CLI binaries extract the logger from the context for scoped,
// structured logging; the binarycache library itself takes an injected
// logger instead and never touches this package's global state.
package logger
