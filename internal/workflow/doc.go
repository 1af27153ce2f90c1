// Package workflow drives a conversion submission from raw input to outcome.
//
// An Orchestrator accepts one submission at a time. Each submission re-probes
// the Core ML toolchain if it was last seen missing, builds a job descriptor,
// takes the cross-process job lock, and runs the converter exactly once.
// Busy signaling brackets the converter run and is always cleared. Successful
// runs update the stored preferences; failed runs leave them untouched.
package workflow
