// Package preflight provides readiness checks for the filesystem paths and
// services shmathd depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll at startup and logs every failure as a warning.
//   - The CLI "shmath status" command renders the same results.
//
// Each check is gated by its config toggle. Disabled features are skipped.
package preflight
