//go:build windows

// File: internal/xpp/pid_windows.go
// Author: natyamatsya
// License: Apache-2.0

package xpp

import (
	"os"

	"golang.org/x/sys/windows"
)

func currentPID() int32 { return int32(os.Getpid()) }

// pidAlive opens the process with the minimal query right and checks
// it has not exited.
func pidAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(h, &exitCode); err != nil {
		return false
	}
	const stillActive = 259
	return exitCode == stillActive
}
