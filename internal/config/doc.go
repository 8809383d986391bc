// Package config handles loading and parsing Finch configuration files.
//
// # Overview
//
// This package reads Finch's TOML configuration to discover the Perch
// service endpoint, the local data directory, and the refresh cadence
// knobs. Sensible defaults make the config file optional: Finch works
// out-of-the-box against a locally running service.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/finch/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Config file: ~/.config/finch/config.toml
//   - Service endpoint: 127.0.0.1:8470
//   - Data directory: ~/.local/share/finch
//   - Photo cache: <data_dir>/photos
//   - Calendar poll interval: 300 seconds
//   - Thread sync delay step: 1 second, capped at 300 seconds
//
// # TOML Format
//
// Example finch config.toml:
//
//	service_url = "https://perch.example.com"
//	data_dir = "~/.local/share/finch"
//	poll_interval_seconds = 300
//	sync_step_seconds = 1
//	sync_max_seconds = 300
//
// All fields are optional. Tilde expansion is performed automatically
// for data_dir, and non-positive intervals fall back to defaults.
//
// # Error Handling
//
// Load returns errors for:
//   - Path expansion failures (e.g., cannot determine home directory)
//   - File read errors (except os.ErrNotExist, which triggers defaults)
//   - TOML parsing errors
//
// Missing config files are NOT an error - defaults are used instead.
//
// The config package is read-only and stateless - it loads configuration
// once at startup and returns an immutable Config struct. No global state
// or singleton patterns are used.
package config
