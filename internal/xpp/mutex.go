// File: internal/xpp/mutex.go
// Author: natyamatsya
// License: Apache-2.0
//
// Process-shared mutex embedded in a 1-object NSM region. Stores the
// holder's PID alongside the lock word so a waiter whose wait exceeds
// a threshold can probe liveness and, if the holder is dead,
// reinitialise the lock in place and retry. Never destroyed in place;
// released only by unmapping.

package xpp

import (
	"sync/atomic"
	"time"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipclog"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

const mutexRegionSize = 8

const (
	mutexUnlocked uint32 = 0
	mutexLocked   uint32 = 1
)

// deadHolderThreshold is how long a waiter must have been stalled on a
// held lock before it starts probing the holder PID for liveness. A
// short threshold would make a merely slow (not dead) holder's lock
// get reinitialised from under it, corrupting the critical section.
const deadHolderThreshold = 50 * time.Millisecond

// Mutex is a cross-process mutual-exclusion lock.
type Mutex struct {
	handle *nsm.Handle
	state  *uint32
	holder *int32
}

// OpenMutex acquires (creating if necessary) the named region backing
// a process-shared mutex.
func OpenMutex(name string, mode nsm.Mode) (*Mutex, error) {
	h, err := nsm.Acquire(name, mutexRegionSize, mode)
	if err != nil {
		return nil, err
	}
	payload := h.Payload()
	return &Mutex{
		handle: h,
		state:  u32At(payload, 0),
		holder: i32At(payload, 4),
	}, nil
}

// Close releases this process's local mapping. It does not unlink the
// name; see nsm.ClearStorage for final teardown.
func (m *Mutex) Close() error {
	return nsm.Release(m.handle)
}

// TryLock attempts to acquire the lock without blocking.
func (m *Mutex) TryLock() bool {
	if atomic.CompareAndSwapUint32(m.state, mutexUnlocked, mutexLocked) {
		atomic.StoreInt32(m.holder, currentPID())
		return true
	}
	return false
}

// Unlock releases the lock. Unlocking a mutex this process does not
// hold is a caller error.
func (m *Mutex) Unlock() {
	atomic.StoreInt32(m.holder, 0)
	atomic.StoreUint32(m.state, mutexUnlocked)
}

// Lock blocks until the mutex is acquired or timeout elapses.
// ipctime.Infinite blocks forever; ipctime.Try is equivalent to TryLock.
func (m *Mutex) Lock(timeout ipctime.Timeout) bool {
	if m.TryLock() {
		return true
	}
	if timeout == ipctime.Try {
		return false
	}
	deadline, hasDeadline := ipctime.Deadline(timeout)
	b := NewBackoff()
	stalledSince := time.Now()
	for {
		if m.TryLock() {
			return true
		}
		if ipctime.Expired(deadline, hasDeadline) {
			return false
		}
		if time.Since(stalledSince) >= deadHolderThreshold {
			if m.recoverIfHolderDead() {
				b.Reset()
				stalledSince = time.Now()
				continue
			}
		}
		b.Pause()
	}
}

// recoverIfHolderDead probes the recorded holder PID; if it is
// confirmed dead, reinitialises the lock word in place and returns
// true so the caller immediately retries acquisition. This substitutes
// for PTHREAD_MUTEX_ROBUST where the platform lacks it.
func (m *Mutex) recoverIfHolderDead() bool {
	holder := atomic.LoadInt32(m.holder)
	if holder == 0 {
		return false
	}
	if pidAlive(holder) {
		return false
	}
	// Holder confirmed dead: force the lock back to unlocked so the
	// next CAS in TryLock can succeed. A poisoned mutex recovered this
	// way never surfaces as an error to the caller.
	ipclog.Component("xpp").Warn().Int32("holder_pid", holder).Msg("reinitialising mutex abandoned by dead holder")
	atomic.StoreInt32(m.holder, 0)
	atomic.StoreUint32(m.state, mutexUnlocked)
	return true
}
