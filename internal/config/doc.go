// Package config loads, validates, and normalizes the TOML configuration for
// the vignette daemon and CLI.
package config
