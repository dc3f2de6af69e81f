// Package worker executes dispatched work units.
//
// Worker.Execute carries one unit from processing to a terminal job status:
// it resolves the input asset, builds the transform command, runs the engine,
// probes the output, and records the derived asset. Every step reports a
// stepResult and a single finalize call writes the outcome, so each path ends
// in exactly one status write.
//
// Pool runs a fixed number of workers against a dispatch.Consumer, sends
// heartbeats while a unit executes, and periodically reclaims units whose
// worker went silent.
package worker
