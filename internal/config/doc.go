// Package config loads, normalizes, and validates shmath configuration data.
//
// It supplies defaults equal to the daemon's historical constants (pipe at
// /tmp/shmathp, mode 0666, 4096 byte reads, "exit" sentinel), expands user
// paths including tilde shortcuts, reads TOML files, and honours the
// SHMATH_PIPE and SHMATH_LOG_LEVEL environment overrides.
//
// Always obtain settings through this package so the daemon and the control
// CLI agree on the pipe path, lock file and log locations.
package config
