// Package logging builds the slog loggers used across the daemon and CLI and
// provides the standardized attribute helpers and context-derived fields that
// keep pipeline logs correlatable per job and stage.
package logging
