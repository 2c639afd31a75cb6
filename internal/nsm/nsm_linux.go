//go:build linux

// File: internal/nsm/nsm_linux.go
// Author: natyamatsya
// License: Apache-2.0
//
// Linux named shared memory backed by /dev/shm, the same tmpfs-backed
// approach glibc's shm_open uses internally. Pure Go via
// golang.org/x/sys/unix: no cgo.

package nsm

import (
	"fmt"
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
		if err := unix.Munmap(m.data); err != nil {
			return osErr("munmap", "no-resources", err)
		}
		m.data = nil
	}
	if m.fd != 0 {
		unix.Close(m.fd)
		m.fd = 0
	}
	return nil
}

func shmPath(canonical string) string {
	return "/dev/shm" + canonical
}

func platformAcquire(canonical string, size uint64, mode Mode) (*regionMapping, uint64, bool, error) {
	path := shmPath(canonical)

	switch mode {
	case Create:
		return createRegion(path, size)
	case Open:
		return openRegion(path, size)
	default: // CreateOrOpen
		m, actual, owner, err := createRegion(path, size)
		if err == nil {
			return m, actual, owner, nil
		}
		if oe, ok := err.(*OsError); !ok || oe.Code != "exists" {
			return nil, 0, false, err
		}
		m, actual, owner, err = openRegion(path, size)
		if err != nil {
			return nil, 0, false, err
		}
		if actual >= size {
			return m, actual, owner, nil
		}
		// Existing object is smaller than requested: recreate as owner.
		_ = m.close()
		if err := unix.Unlink(path); err != nil && err != unix.ENOENT {
			return nil, 0, false, osErr("unlink", "no-resources", err)
		}
		return createRegion(path, size)
	}
}

func createRegion(path string, size uint64) (*regionMapping, uint64, bool, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o666)
	if err != nil {
		if err == unix.EEXIST {
			return nil, 0, false, &OsError{Op: "open", Code: "exists", Err: err}
		}
		return nil, 0, false, osErr("open", classifyErrno(err), err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, 0, false, osErr("ftruncate", "no-resources", err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, 0, false, osErr("mmap", "no-resources", err)
	}
	return &regionMapping{fd: fd, data: data}, size, true, nil
}

func openRegion(path string, requested uint64) (*regionMapping, uint64, bool, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, 0, false, osErr("open", classifyErrno(err), err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, 0, false, osErr("fstat", "no-resources", err)
	}
	actual := uint64(stat.Size)
	if actual < requested {
		// Some platforms round object sizes to the page size and
		// refuse in-place resize; a caller-visible size at or above
		// what was requested is accepted as-is, but truly smaller
		// objects are a genuine mismatch for the opener to resolve.
		if err := unix.Ftruncate(fd, int64(requested)); err == nil {
			actual = requested
		}
	}
	data, err := unix.Mmap(fd, 0, int(actual), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, 0, false, osErr("mmap", "no-resources", err)
	}
	return &regionMapping{fd: fd, data: data}, actual, false, nil
}

func platformUnlink(canonical string) error {
	err := unix.Unlink(shmPath(canonical))
	if err != nil && err != unix.ENOENT {
		return osErr("unlink", classifyErrno(err), err)
	}
	return nil
}

func classifyErrno(err error) string {
	switch err {
	case unix.EACCES, unix.EPERM:
		return "permission"
	case unix.EEXIST:
		return "exists"
	default:
		return fmt.Sprintf("errno:%v", err)
	}
}
