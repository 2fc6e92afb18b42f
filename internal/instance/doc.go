// Package instance guarantees that one process per application and user acts
// as the primary instance, and forwards the command line of every later
// launch to it.
//
// A Coordinator runs the election once per process. The winner starts a
// relay listener in the executable directory and receives the arguments of
// later launches through its Receiver; a loser writes its own command line
// to the relay and reports false so the caller can exit. Cleanup releases
// the election at process exit.
//
// Relay failures are never surfaced to the caller. They are logged at debug
// level and passed to Options.Discard, if set.
package instance
