//go:build !linux && !windows

// File: internal/xpp/pid_stub.go
// Author: natyamatsya
// License: Apache-2.0

package xpp

import (
	"os"

	"golang.org/x/sys/unix"
)

func currentPID() int32 { return int32(os.Getpid()) }

func pidAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(int(pid), 0)
	return err == nil || err == unix.EPERM
}
