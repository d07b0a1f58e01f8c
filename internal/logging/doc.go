// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing.
// Records go to the systemd journal when journald is reachable and to stdout
// when a terminal, pipe or file is connected. Every record is also kept in a
// ring buffer that backs the live log stream of the API.
//
// Attribute values whose key looks like a credential (password, api_key,
// token, secret, authorization) are replaced with [REDACTED] in every output.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"camera": "debug",   // Per-module overrides
//			"api":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("mymodule")
//	logger.Info("Starting up", "port", 8080)
//	logger.Debug("Details", "config", cfg)
//	logger.Warn("Something unusual", "error", err)
//	logger.Error("Failed", "error", err)
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("camera").With("camera_id", id)
//	logger.Info("Camera added")  // Includes camera_id in all logs
//
// # Log Levels
//
//	debug - Verbose debugging information
//	info  - General operational messages
//	warn  - Warning conditions
//	error - Error conditions
//
// # Output Destinations
//
// Each handler chain is built from what is reachable when the logger is
// created:
//
//	stdout   terminal, pipe, socket or regular file (not /dev/null)
//	journal  journald socket present, see [github.com/coreos/go-systemd/v22/journal.Enabled]
//	buffer   always; the last 1000 entries, numbered for stream resumption
//
// When neither stdout nor the journal is usable, stdout is kept anyway.
//
// # Viewing Logs
//
// When running as a systemd service or on a system with journald:
//
//	journalctl -t watchnode              # All watchnode logs
//	journalctl -t watchnode -f           # Follow live
//	journalctl -t watchnode --since "5m" # Last 5 minutes
//	journalctl -t watchnode -p err       # Errors only
//
// Filter by structured fields:
//
//	journalctl -t watchnode MODULE=scheduler
//	journalctl -t watchnode CAMERA_ID=front
//
// # Configuration
//
// Log levels can be set globally or per-module. Module-specific levels
// override the global level for that module only.
//
// Levels can also be changed while running through the API; those changes
// are not persisted.
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	camera = "debug"
//	api = "warn"
//	notify = "error"
package logging
