// Package logging assembles the structured slog loggers used by the shmath
// daemon and its control CLI.
//
// It owns the console and JSON handlers, the syslog sink that carries the
// fixed daemon identifier, a fanout handler for teeing one record into
// several sinks, and the attribute helpers that keep field names consistent
// across packages. A NOTICE level sits between INFO and WARN for received
// commands, mirroring the syslog priority the daemon has always used.
//
// Build loggers through New or NewFromConfig rather than hand-rolled slog
// setup so every component emits the same shape of record.
package logging
