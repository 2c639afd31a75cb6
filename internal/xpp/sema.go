// File: internal/xpp/sema.go
// Author: natyamatsya
// License: Apache-2.0
//
// Process-shared counting semaphore. Implemented as a non-negative
// atomic counter with CAS-based Wait and the same try+adaptive-backoff
// schedule used for timed lock emulation, for platforms lacking a
// native _timedwait.

package xpp

import (
	"sync/atomic"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

const semaRegionSize = 4

// Sema is a process-shared counting semaphore.
type Sema struct {
	handle  *nsm.Handle
	counter *uint32
}

// OpenSema acquires (creating if necessary) the named region backing
// a process-shared semaphore.
func OpenSema(name string, mode nsm.Mode) (*Sema, error) {
	h, err := nsm.Acquire(name, semaRegionSize, mode)
	if err != nil {
		return nil, err
	}
	return &Sema{handle: h, counter: u32At(h.Payload(), 0)}, nil
}

// Close releases this process's local mapping.
func (s *Sema) Close() error {
	return nsm.Release(s.handle)
}

// Post increments the counter by n, waking any waiters that can now
// proceed.
func (s *Sema) Post(n uint32) {
	atomic.AddUint32(s.counter, n)
}

// TryWait attempts to consume one unit without blocking.
func (s *Sema) TryWait() bool {
	for {
		cur := atomic.LoadUint32(s.counter)
		if cur == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.counter, cur, cur-1) {
			return true
		}
	}
}

// Wait blocks until a unit is available or timeout elapses.
func (s *Sema) Wait(timeout ipctime.Timeout) bool {
	if s.TryWait() {
		return true
	}
	if timeout == ipctime.Try {
		return false
	}
	deadline, hasDeadline := ipctime.Deadline(timeout)
	b := NewBackoff()
	for {
		if s.TryWait() {
			return true
		}
		if ipctime.Expired(deadline, hasDeadline) {
			return false
		}
		b.Pause()
	}
}

// Value returns a snapshot of the current counter value.
func (s *Sema) Value() uint32 {
	return atomic.LoadUint32(s.counter)
}
