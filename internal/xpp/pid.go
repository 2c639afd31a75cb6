// File: internal/xpp/pid.go
// Author: natyamatsya
// License: Apache-2.0
//
// Platform-independent entry points over the per-OS pid_*.go probes.

package xpp

// CurrentPID returns this process's PID, as recorded alongside a lock
// word or connection slot for later dead-holder/dead-peer detection.
func CurrentPID() int32 { return currentPID() }

// PIDAlive reports whether pid still refers to a live process.
func PIDAlive(pid int32) bool { return pidAlive(pid) }
