//go:build linux

// File: internal/xpp/pid_linux.go
// Author: natyamatsya
// License: Apache-2.0

package xpp

import (
	"os"

	"golang.org/x/sys/unix"
)

func currentPID() int32 { return int32(os.Getpid()) }

// pidAlive probes liveness of pid via kill(pid, 0): delivers no signal
// but still performs existence/permission checks, the standard
// substitute for PTHREAD_MUTEX_ROBUST-style dead-holder detection.
func pidAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but we lack permission to signal
	// it, which still counts as alive.
	return err == unix.EPERM
}
