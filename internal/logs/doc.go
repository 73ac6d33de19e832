// Package logs reads the daemon log for `shmath logs`.
//
// Tail prints the last lines of a log and, in follow mode, keeps emitting
// lines as they are appended. The daemon's shmathd.log is a pointer that is
// replaced on every run; a follower notices the replacement and starts over
// at the top of the new file.
package logs
