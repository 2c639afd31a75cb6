// File: internal/nsm/nsm.go
// Package nsm implements Named Shared Memory acquisition, mapping,
// refcounting and teardown.
// Author: natyamatsya
// License: Apache-2.0
//
// A region is identified by a logical name. Layout is fixed at
// first-creator time; a 32-bit refcount at a well-known offset tracks
// live mappings. Creators and subsequent openers negotiate size
// consistently: first-creator wins, openers must accept an existing
// size >= requested.

package nsm

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Mode selects how Acquire negotiates the backing object.
type Mode int

const (
	// Create fails if the object already exists.
	Create Mode = iota
	// Open fails if the object does not already exist.
	Open
	// CreateOrOpen adopts an existing object if its size is sufficient,
	// otherwise recreates it. On Windows an existing mapping is adopted
	// at whatever size it has and is never recreated.
	CreateOrOpen
)

// Sentinel error kinds callers can match against with errors.Is.
var (
	ErrNameInvalid       = errors.New("nsm: name invalid")
	ErrResourceExhausted = errors.New("nsm: resource exhausted")
)

// OsError wraps an OS-level failure (permission, exists, no-resources).
type OsError struct {
	Op   string
	Code string
	Err  error
}

func (e *OsError) Error() string {
	return fmt.Sprintf("nsm: os error during %s (%s): %v", e.Op, e.Code, e.Err)
}

func (e *OsError) Unwrap() error { return e.Err }

func osErr(op, code string, err error) error {
	if err == nil {
		return nil
	}
	return &OsError{Op: op, Code: code, Err: err}
}

// regionHeaderSize is the fixed prologue every region carries: a 32-bit
// refcount at offset 0. Everything after that is caller payload.
const regionHeaderSize = 64

// RefcountOffset is the well-known offset of the 32-bit atomic refcount.
const RefcountOffset = 0

// HeaderSize is exported so callers can lay out their payload starting
// at this offset within the mapped region.
const HeaderSize = regionHeaderSize

// Handle is a process-local reference to a mapped named region.
type Handle struct {
	name      string
	canonical string
	size      uint64
	owner     bool // true if this process-local mapping was the first creator
	impl      *regionMapping
}

// Name returns the logical name this handle was acquired with.
func (h *Handle) Name() string { return h.name }

// Size returns the full mapped size, including the region header.
func (h *Handle) Size() uint64 { return h.size }

// Base returns the mapped base address as a byte slice covering the
// whole region (header included).
func (h *Handle) Base() []byte {
	return h.impl.data
}

// Payload returns the byte slice after the fixed region header, where
// caller-defined layouts (ring header+slots, mutex word, etc.) begin.
func (h *Handle) Payload() []byte {
	return h.impl.data[regionHeaderSize:]
}

// Acquire opens or creates a named region of at least size bytes
// (excluding the region header, which is added automatically).
func Acquire(name string, size uint64, mode Mode) (*Handle, error) {
	canonical, err := Canonicalize(name)
	if err != nil {
		return nil, err
	}
	total := size + regionHeaderSize

	h, err := processCache.acquire(canonical, total, mode)
	if err != nil {
		return nil, err
	}
	atomic.AddUint32((*uint32)(ptr32(h.mapping.data)), 1)
	return &Handle{
		name:      name,
		canonical: canonical,
		size:      h.size,
		owner:     h.owner,
		impl:      h.mapping,
	}, nil
}

// Release decrements the region's refcount (shared across every
// process that mapped it) and unmaps this process's local mapping
// once its own local refcount reaches zero. It does not unlink the
// name; see ClearStorage for explicit teardown.
func Release(h *Handle) error {
	if h == nil || h.impl == nil {
		return nil
	}
	atomic.AddUint32((*uint32)(ptr32(h.impl.data)), ^uint32(0))
	return processCache.release(h.canonical)
}

// ClearStorage unconditionally unlinks the named region. Idempotent:
// unlinking a name that does not exist is not an error.
func ClearStorage(name string) error {
	canonical, err := Canonicalize(name)
	if err != nil {
		return err
	}
	return platformUnlink(canonical)
}

// Ref returns a snapshot of the region's refcount (sum across all local
// handles in this process that reference the mapping; cross-process the
// OS-level mapping refcount is approximated by this same atomic word
// since it lives inside the shared region itself).
func Ref(h *Handle) uint32 {
	if h == nil || h.impl == nil {
		return 0
	}
	return h.impl.refcount()
}
