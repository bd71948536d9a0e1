// Package config loads runtime configuration for the MedGuard client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend REST API
//	-i int      online status check interval (seconds)
//	-t int      request timeout (seconds)
//	-d string   path to the local database file
//	-r int      retry cap for one queued offline write
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_base_url": "http://127.0.0.1:8080",
//	  "request_timeout": "10s",
//	  "online_check_interval": "3s",
//	  "database_path": "medguard.db",
//	  "max_replay_attempts": 5
//	}
//
// Primary API
//
//   - type Config                     runtime settings for the client
//   - func LoadConfig() *Config       builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
