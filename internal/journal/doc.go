// Package journal keeps a SQLite history of daemon runs and the commands
// they received. The daemon appends to it; the CLI reads it for `history`.
package journal
