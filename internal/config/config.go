// Package config holds Icepeak's process configuration, populated from CLI
// flags by cmd/icepeakd. Environment variables are not read.
package config

import "time"

// Config is the full set of knobs needed to run an icepeakd server.
type Config struct {
	// DataFile is the snapshot file holding the document.
	DataFile string
	// JournalFile is the write-ahead log file. Empty disables journaling.
	JournalFile string
	// Addr is the HTTP/WS listen address, e.g. ":8080".
	Addr string
	// MetricsAddr is the Prometheus scrape listen address, e.g. ":9090".
	MetricsAddr string
	// SyncInterval is how often the coordinator syncs the snapshot to disk.
	SyncInterval time.Duration
	// JWTSecret signs and verifies bearer tokens. Empty disables auth.
	JWTSecret string
	// LogLevel is one of debug/info/warn/error.
	LogLevel string
	// LogJSON selects JSON log output over console output.
	LogJSON bool
}

// Default returns a Config with Icepeak's out-of-the-box defaults.
func Default() Config {
	return Config{
		DataFile:     "icepeak.json",
		JournalFile:  "icepeak.journal",
		Addr:         ":8080",
		MetricsAddr:  ":9090",
		SyncInterval: 5 * time.Second,
		LogLevel:     "info",
	}
}
