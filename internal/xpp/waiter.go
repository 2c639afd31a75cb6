// File: internal/xpp/waiter.go
// Author: natyamatsya
// License: Apache-2.0
//
// Composite (mutex + cond + counter) used to park consumers until a
// monitored predicate becomes true. The ring uses one Waiter per
// region: every producer write and every
// consumer read broadcasts without touching the counter, and every
// blocked party (a consumer waiting for data, or a producer waiting for
// a slot to free) re-checks its own predicate against ring state.

package xpp

import (
	"sync/atomic"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

const waiterRegionSize = mutexRegionSize + condRegionSize + 4

// Waiter is a cross-process (mutex, cond, counter) triple.
type Waiter struct {
	handle  *nsm.Handle
	mutex   *Mutex
	cond    *Cond
	counter *uint32
}

// OpenWaiter acquires (creating if necessary) the named region backing
// a composite waiter. The mutex, cond and counter all live in the one
// region acquired under name, so a single logical handle covers all
// three sub-primitives with one Acquire/Release pair.
func OpenWaiter(name string, mode nsm.Mode) (*Waiter, error) {
	h, err := nsm.Acquire(name, waiterRegionSize, mode)
	if err != nil {
		return nil, err
	}
	payload := h.Payload()
	w := &Waiter{
		handle: h,
		mutex: &Mutex{
			state:  u32At(payload, 0),
			holder: i32At(payload, 4),
		},
		cond: &Cond{
			generation: u32At(payload, mutexRegionSize),
		},
		counter: u32At(payload, mutexRegionSize+condRegionSize),
	}
	return w, nil
}

// Close releases this process's local mapping.
func (w *Waiter) Close() error {
	return nsm.Release(w.handle)
}

// Counter returns a snapshot of the monitored counter.
func (w *Waiter) Counter() uint32 {
	return atomic.LoadUint32(w.counter)
}

// Bump increments the monitored counter by delta (which may be
// negative via two's complement wraparound semantics, matching
// unsigned cursor arithmetic used throughout the ring) and wakes every
// waiter so it can re-check its predicate.
func (w *Waiter) Bump(delta uint32) {
	atomic.AddUint32(w.counter, delta)
	w.Broadcast()
}

// Broadcast wakes every party blocked in WaitWhile without changing
// the counter, used when the predicate depends on state outside the
// counter (e.g. a connection bitmask living in the ring header).
func (w *Waiter) Broadcast() {
	w.mutex.Lock(ipctime.Infinite)
	w.cond.NotifyAll()
	w.mutex.Unlock()
}

// WaitWhile blocks while predicate(currentCounterValue) is true, or
// until timeout elapses. Returns false on timeout.
func (w *Waiter) WaitWhile(predicate func(counter uint32) bool, timeout ipctime.Timeout) bool {
	deadline, hasDeadline := ipctime.Deadline(timeout)

	w.mutex.Lock(ipctime.Infinite)
	defer w.mutex.Unlock()

	for predicate(atomic.LoadUint32(w.counter)) {
		remaining := ipctime.Remaining(deadline, hasDeadline)
		if ipctime.Expired(deadline, hasDeadline) {
			return false
		}
		if !w.cond.Wait(w.mutex, remaining) && ipctime.Expired(deadline, hasDeadline) {
			return false
		}
	}
	return true
}
