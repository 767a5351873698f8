// Package logging provides the structured logging sink used across the
// receiver. It is a thin wrapper over log/slog configured from config.yaml.
package logging
