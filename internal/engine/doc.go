// Package engine runs the external transform engine (ffmpeg).
//
// Each call is bounded by a timeout. On expiry or cancellation the whole
// child process group is killed and any partial output is removed, so a
// failed transform never leaves a file behind.
package engine
