// Package fifo serves commands read from a named pipe.
//
// A Server owns one pipe for its whole life. It creates the pipe, waits for
// a writer, drains every read into a Handler and reopens the pipe when the
// last writer goes away. A command beginning with the sentinel (default
// "exit") stops the server and unlinks the pipe. Cancelling the context
// passed to Run does the same.
//
// The lifecycle is an explicit state machine:
//
//	starting -> awaiting_client -> serving -> shutting_down -> stopped
//	                 ^                 |
//	                 +---- EOF --------+
//
// Observers see every transition. The OS pipe sits behind the Channel
// interface so the loop can run against MemoryChannel in tests.
package fifo
