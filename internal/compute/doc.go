// Package compute drives bounded iterative numeric jobs one step at a time.
//
// A Job checks its context before every step, publishes a ProgressEvent
// after every completed step and waits a fixed interval between steps. The
// wait itself is cancellable, so a cancelled context stops the run before
// the next step begins. Cancellation is reported through Outcome.Cancelled
// and is never returned as an error.
package compute
