// Package config handles configuration loading for membank.
//
// # Configuration File
//
// Lookup order when no --config flag is given:
//
//  1. Path from the MEMBANK_CONFIG environment variable
//  2. ./membank.yaml, ./membank.yml, ./membank.toml
//  3. Built-in defaults
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${MEMBANK_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// stream.heartbeat_interval and stream.write_timeout take Go duration
// strings ("15s", "1m"). A heartbeat interval of "0s" disables heartbeats.
package config
