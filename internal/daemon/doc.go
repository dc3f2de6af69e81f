// Package daemon coordinates the long-running mediaforge process.
//
// It wires the job store, the dispatch queue, the worker pool, and the HTTP
// API into a single lifecycle with flock-based locking to prevent multiple
// instances from sharing a data directory. Job execution lives in the worker
// package; the daemon only starts, stops, and reports on it.
package daemon
