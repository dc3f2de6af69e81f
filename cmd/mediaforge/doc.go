// Command mediaforge is the CLI for the mediaforge media job pipeline.
//
// The daemon subcommand runs the worker pool and HTTP API in the foreground.
// Other subcommands talk to a running daemon over that API, except for
// configuration helpers and asset export, which work against local state.
package main
