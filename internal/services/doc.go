// Package services defines shared utilities consumed by the worker, the
// submission boundary and the external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp external job IDs, operation kinds, worker
//     slots and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the pipeline taxonomy (validation, not found, precondition,
//     processing, persistence).
//
// Use these helpers when wiring new pipeline steps so error handling and
// observability stay uniform.
package services
