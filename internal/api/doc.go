// Package api defines the wire types of the daemon's HTTP API and a client
// for them.
//
// Job and asset payloads reuse the submit package views, so the HTTP status
// query returns exactly what the CLI prints: the job's flattened parameters
// carry produced_asset_id on success and error on failure. JSON keys are
// snake_case throughout.
//
// Errors travel as {"error": "..."} with a status code derived from the
// error kind (validation 400, not found 404, precondition 409, everything
// else 500). The client maps them back onto the services markers so callers
// can keep using errors.Is.
package api
