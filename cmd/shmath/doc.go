// Package main hosts the shmath control CLI.
//
// The Cobra command tree starts and stops shmathd, writes commands into its
// pipe, and reads status and command history from the filesystem and the
// journal. Nothing here talks to the daemon except through the pipe.
package main
