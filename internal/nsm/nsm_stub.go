//go:build !linux && !windows

// File: internal/nsm/nsm_stub.go
// Author: natyamatsya
// License: Apache-2.0
//
// Fallback named-shared-memory backend for platforms without a
// dedicated implementation. Uses a regular file under os.TempDir
// as the backing object and
// golang.org/x/sys/unix's POSIX mmap, which is available on every
// unix-family GOOS x/sys/unix supports (darwin, freebsd, ...).

package nsm

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type regionMapping struct {
	fd   int
	data []byte
}

func (m *regionMapping) refcount() uint32 {
	return atomic.LoadUint32((*uint32)(ptr32(m.data)))
}

func (m *regionMapping) close() error {
	if m.data != nil {
		unix.Munmap(m.data)
		m.data = nil
	}
	if m.fd != 0 {
		unix.Close(m.fd)
		m.fd = 0
	}
	return nil
}

func backingPath(canonical string) string {
	return filepath.Join(os.TempDir(), "nsm"+canonical)
}

func platformAcquire(canonical string, size uint64, mode Mode) (*regionMapping, uint64, bool, error) {
	path := backingPath(canonical)
	switch mode {
	case Create:
		return createFile(path, size, true)
	case Open:
		return openFile(path)
	default:
		m, actual, owner, err := createFile(path, size, true)
		if err == nil {
			return m, actual, owner, nil
		}
		m, actual, owner, err = openFile(path)
		if err != nil || actual >= size {
			return m, actual, owner, err
		}
		// Existing object is smaller than requested: recreate as owner.
		_ = m.close()
		_ = os.Remove(path)
		return createFile(path, size, true)
	}
}

func createFile(path string, size uint64, exclusive bool) (*regionMapping, uint64, bool, error) {
	flags := unix.O_RDWR | unix.O_CREAT
	if exclusive {
		flags |= unix.O_EXCL
	}
	fd, err := unix.Open(path, flags, 0o600)
	if err != nil {
		return nil, 0, false, osErr("open", "no-resources", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, 0, false, osErr("ftruncate", "no-resources", err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, 0, false, osErr("mmap", "no-resources", err)
	}
	return &regionMapping{fd: fd, data: data}, size, true, nil
}

func openFile(path string) (*regionMapping, uint64, bool, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, 0, false, osErr("open", "no-resources", err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, 0, false, osErr("fstat", "no-resources", err)
	}
	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, 0, false, osErr("mmap", "no-resources", err)
	}
	return &regionMapping{fd: fd, data: data}, uint64(stat.Size), false, nil
}

func platformUnlink(canonical string) error {
	err := os.Remove(backingPath(canonical))
	if err != nil && !os.IsNotExist(err) {
		return osErr("unlink", "no-resources", err)
	}
	return nil
}
