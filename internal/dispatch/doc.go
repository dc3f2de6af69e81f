// Package dispatch moves work units from submission to workers.
//
// Enqueue returns as soon as the unit is durable. Workers Claim units, send
// Heartbeats while executing, and Ack when the job reached a terminal status.
// A claimed unit whose heartbeats stop is returned to the queue by Reclaim, so
// delivery is at-least-once.
//
// Two backends exist: SQLite (a work_units table in the job database) and
// Redis (a reliable list queue with per-delivery leases).
package dispatch
