// Package config provides configuration loading and validation for the call
// bridge. It handles YAML-based configuration with ${VAR} environment
// expansion, defaults for every unset field and per-section validation.
package config
