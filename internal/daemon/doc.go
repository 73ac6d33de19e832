// Package daemon coordinates one shmathd lifetime around the channel server.
//
// It takes the flock-based instance lock beside the pipe so two daemons never
// read the same pipe, records the run and every command in the journal,
// feeds the metrics recorder and exports it when the run ends. Process-level
// concerns (signals, log files, pid file) belong to daemonrun.
package daemon
