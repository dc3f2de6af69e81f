// Package command translates validated operations into transform engine
// arguments.
//
// Everything here is pure: no I/O, no clock, no process state. Build returns a
// Descriptor that the engine combines with concrete input and output paths.
package command
