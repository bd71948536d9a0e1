package config

import "time"

// Config holds runtime settings for the MedGuard client.
//
// Fields:
//   - ServerBaseURL: base URL of the backend REST API.
//   - RequestTimeout: per-request deadline for server calls.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - DatabasePath: location of the on-device SQLite database file.
//   - MaxReplayAttempts: retry cap for one queued offline write.
//
// Units: RequestTimeout and OnlineCheckInterval are time.Durations
// (e.g., 3*time.Second).
type Config struct {
	ServerBaseURL       string
	RequestTimeout      time.Duration
	OnlineCheckInterval time.Duration
	DatabasePath        string
	MaxReplayAttempts   int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.RequestTimeout = 10 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "medguard.db"
	c.MaxReplayAttempts = 5
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
