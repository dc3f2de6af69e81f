// Package config loads, normalizes, and validates mediaforge configuration.
//
// Configuration is read from TOML (~/.config/mediaforge/config.toml or
// ./mediaforge.toml), overlaid with environment overrides (optionally sourced
// from a .env file), expanded to absolute paths, and validated before any
// store or worker is constructed.
package config
