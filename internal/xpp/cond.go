// File: internal/xpp/cond.go
// Author: natyamatsya
// License: Apache-2.0
//
// Process-shared condition variable embedded in a 1-object NSM region.
// There is no cross-process futex available portably from pure Go, so
// waiting is emulated with a generation counter plus the same
// try+adaptive-backoff schedule used elsewhere for timed-wait
// emulation: NotifyOne/NotifyAll both bump the generation and waiters
// simply poll for it to change, which is safe as long as the
// generation is only ever bumped while the paired mutex is held (see
// Wait) -- exactly the condvar contract callers must already follow.

package xpp

import (
	"sync/atomic"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

const condRegionSize = 4

// Cond is a process-shared condition variable.
type Cond struct {
	handle     *nsm.Handle
	generation *uint32
}

// OpenCond acquires (creating if necessary) the named region backing a
// process-shared condition variable.
func OpenCond(name string, mode nsm.Mode) (*Cond, error) {
	h, err := nsm.Acquire(name, condRegionSize, mode)
	if err != nil {
		return nil, err
	}
	return &Cond{handle: h, generation: u32At(h.Payload(), 0)}, nil
}

// Close releases this process's local mapping.
func (c *Cond) Close() error {
	return nsm.Release(c.handle)
}

// Wait releases mutex, waits for a notification or the timeout, then
// reacquires mutex before returning. Caller must hold mutex. Returns
// false on timeout.
func (c *Cond) Wait(mutex *Mutex, timeout ipctime.Timeout) bool {
	gen := atomic.LoadUint32(c.generation)
	mutex.Unlock()

	deadline, hasDeadline := ipctime.Deadline(timeout)
	b := NewBackoff()
	ok := true
	for atomic.LoadUint32(c.generation) == gen {
		if ipctime.Expired(deadline, hasDeadline) {
			ok = false
			break
		}
		b.Pause()
	}

	mutex.Lock(ipctime.Infinite)
	return ok
}

// NotifyOne wakes at least one waiter. Since waiters only poll a
// shared generation counter (no per-waiter wake list is available
// without a kernel futex), this has the same observable effect as
// NotifyAll: every waiter re-checks its predicate. Spurious wakeups
// are always permitted by the condvar contract, so this is a
// conforming (if less selective) implementation.
func (c *Cond) NotifyOne() {
	atomic.AddUint32(c.generation, 1)
}

// NotifyAll wakes every waiter.
func (c *Cond) NotifyAll() {
	atomic.AddUint32(c.generation, 1)
}
