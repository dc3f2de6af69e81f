// Package preflight runs environment checks reported by the daemon status
// endpoint and logged at startup: directory access for the data, media, and
// log paths, the optional overlay catalog, and Redis reachability when Redis
// dispatch is configured.
//
// Binary availability lives in the deps package.
package preflight
