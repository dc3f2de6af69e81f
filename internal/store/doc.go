// Package store persists assets, jobs, and queued work units in SQLite.
//
// Assets form a derivation lineage: every derived asset names the asset it was
// produced from, and a parent is always persisted before its children. Jobs
// follow a forward-only lifecycle (pending, processing, then completed or
// failed) and terminal states are absorbing: repeated terminal updates return
// the stored record untouched.
//
// Callers that need a dedicated connection for a unit of work use Acquire and
// release the Session when done. The Store itself embeds a pool-backed Session
// for one-off reads and writes.
//
// Schema changes bump schemaVersion in schema.go; users delete the database to
// adopt the new schema.
package store
