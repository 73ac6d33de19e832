// Package daemonctl holds the client side of shmathd: launching a detached
// daemon, waiting for its pipe, writing commands into it, stopping it and
// probing its status without talking to it.
package daemonctl
