//go:build windows

// File: internal/nsm/nsm_windows.go
// Author: natyamatsya
// License: Apache-2.0
//
// Windows named shared memory via CreateFileMapping/MapViewOfFile,
// pure Go through golang.org/x/sys/windows (no cgo), matching the
// teacher's reactor/reactor_windows.go and
// internal/concurrency/affinity_windows.go platform-split convention.

package nsm

import (
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type regionMapping struct {
	handle windows.Handle
	addr   uintptr
	data   []byte
}

func (m *regionMapping) refcount() uint32 {
	return atomic.LoadUint32((*uint32)(ptr32(m.data)))
}

func (m *regionMapping) close() error {
	if m.addr != 0 {
		_ = windows.UnmapViewOfFile(m.addr)
		m.addr = 0
		m.data = nil
	}
	if m.handle != 0 {
		_ = windows.CloseHandle(m.handle)
		m.handle = 0
	}
	return nil
}

func mappingName(canonical string) (*uint16, error) {
	// Windows object names don't use a leading slash; fold it into a
	// "Local\" namespace prefix instead, same canonical suffix.
	name := "Local\\" + canonical[1:]
	return syscall.UTF16PtrFromString(name)
}

func platformAcquire(canonical string, size uint64, mode Mode) (*regionMapping, uint64, bool, error) {
	namePtr, err := mappingName(canonical)
	if err != nil {
		return nil, 0, false, ErrNameInvalid
	}

	switch mode {
	case Open:
		return openMapping(namePtr, size)
	case Create:
		return createMapping(namePtr, size)
	default: // CreateOrOpen
		h, err := windows.OpenFileMapping(windows.FILE_MAP_ALL_ACCESS, false, namePtr)
		if err != nil {
			return createMapping(namePtr, size)
		}
		// Windows exposes no direct "query section size" API short of
		// VirtualQuery on the mapped view. Map the whole section (0
		// bytes requests the full committed size from the offset) and
		// trust the first creator's size; the opener adopts it unchanged.
		return finishMap(h, 0, false)
	}
}

func createMapping(namePtr *uint16, size uint64) (*regionMapping, uint64, bool, error) {
	high := uint32(size >> 32)
	low := uint32(size & 0xFFFFFFFF)
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, high, low, namePtr)
	if err != nil {
		return nil, 0, false, osErr("CreateFileMapping", classifyWinErr(err), err)
	}
	// Reached only when a prior OpenFileMapping attempt failed (or mode
	// is an explicit Create), so this call is the first creator.
	return finishMap(h, size, true)
}

func openMapping(namePtr *uint16, size uint64) (*regionMapping, uint64, bool, error) {
	h, err := windows.OpenFileMapping(windows.FILE_MAP_ALL_ACCESS, false, namePtr)
	if err != nil {
		return nil, 0, false, osErr("OpenFileMapping", "no-resources", err)
	}
	return finishMap(h, size, false)
}

func finishMap(h windows.Handle, size uint64, owner bool) (*regionMapping, uint64, bool, error) {
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_ALL_ACCESS, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, 0, false, osErr("MapViewOfFile", "no-resources", err)
	}
	if size == 0 {
		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			windows.UnmapViewOfFile(addr)
			windows.CloseHandle(h)
			return nil, 0, false, osErr("VirtualQuery", "no-resources", err)
		}
		size = uint64(mbi.RegionSize)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return &regionMapping{handle: h, addr: addr, data: data}, size, owner, nil
}

func platformUnlink(canonical string) error {
	// Windows file mappings are reference counted by the kernel object
	// manager and disappear once the last handle in any process closes;
	// there is no explicit unlink call. ClearStorage is a best-effort
	// no-op here, matching "unconditionally unlinks the name" vacuously
	// since the name already has no persistent existence once unmapped.
	return nil
}

func classifyWinErr(err error) string {
	if err == windows.ERROR_ACCESS_DENIED {
		return "permission"
	}
	if err == windows.ERROR_ALREADY_EXISTS {
		return "exists"
	}
	return "no-resources"
}
