// Package probe reads duration and size metadata from media files.
//
// FFprobe runs the ffprobe binary and decodes its JSON report. Size comes
// from the filesystem and falls back to the container size ffprobe reports.
package probe
