// File: internal/ring/unicast.go
// Author: natyamatsya
// License: Apache-2.0
//
// Unicast write: any number of producers may call Send concurrently,
// so the cursor-check-then-advance sequence that a lone broadcaster
// can do unguarded must be serialised. writerLock is a lightweight
// test-and-set spinlock covering exactly that critical section,
// distinct from the cross-process xpp.Mutex used for the connection
// waiter: it never outlives a single Send call, so dead-holder
// recovery is unneeded.

package ring

import (
	"sync/atomic"
	"time"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/xpp"
)

const (
	writerUnlocked = uint32(0)
	writerLocked   = uint32(1)
)

func (r *Ring) acquireWriterLock() bool {
	return atomic.CompareAndSwapUint32(r.writerLock, writerUnlocked, writerLocked)
}

func (r *Ring) releaseWriterLock() {
	atomic.StoreUint32(r.writerLock, writerUnlocked)
}

// trySendUnicast attempts one non-blocking write, serialised against
// other producers via writerLock. Returns (wrote, slotWasFull): the
// caller only needs to wait on slotWasFull, never on lock contention,
// which is expected to be resolved within a handful of spin cycles.
func (r *Ring) trySendUnicast(desc Descriptor) (wrote, slotWasFull bool) {
	if !r.acquireWriterLock() {
		return false, false
	}
	defer r.releaseWriterLock()

	cursor := atomic.LoadUint64(r.producerCursor)
	slot := r.slotBase(cursor)
	maskPtr := u64At(slot, slotOffMask)
	if atomic.LoadUint64(maskPtr) != 0 {
		return false, true
	}

	writeDescriptor(slot, desc.Kind, desc.Size, desc.ChunkKey, desc.Inline)
	mask := atomic.LoadUint64(r.connMask)
	if desc.OnMaskResolved != nil {
		desc.OnMaskResolved(uint32(popcount(mask)))
	}
	atomic.StoreUint64(maskPtr, mask)
	atomic.StoreUint64(r.producerCursor, cursor+1)
	return true, false
}

// SendUnicast publishes desc exactly once, to whichever readers are
// connected at write time, serialising against concurrent producers.
func (r *Ring) SendUnicast(desc Descriptor, timeout ipctime.Timeout) error {
	deadline, hasDeadline := ipctime.Deadline(timeout)
	backoff := xpp.NewBackoff()
	var stalledSince time.Time
	if r.deadReaderProbe > 0 {
		stalledSince = time.Now()
	}

	for {
		wrote, full := r.trySendUnicast(desc)
		if wrote {
			r.waiter.Broadcast()
			return nil
		}
		if !full {
			// Lost the writer-lock race with a sibling producer; this is
			// expected to resolve in a handful of cycles, not a wait-worthy
			// condition.
			if ipctime.Expired(deadline, hasDeadline) {
				return ErrTimeout
			}
			backoff.Pause()
			continue
		}
		backoff.Reset()

		if r.deadReaderProbe > 0 && time.Since(stalledSince) >= r.deadReaderProbe {
			stalledSince = time.Now()
			r.ReapDeadConnections()
			continue
		}

		cursor := atomic.LoadUint64(r.producerCursor)
		slot := r.slotBase(cursor)
		maskPtr := u64At(slot, slotOffMask)
		stillBlocked := func(uint32) bool { return atomic.LoadUint64(maskPtr) != 0 }
		wait := ipctime.Remaining(deadline, hasDeadline)
		if r.deadReaderProbe > 0 {
			if left := r.deadReaderProbe - time.Since(stalledSince); left < wait {
				wait = max(left, 0)
			}
		}
		if !r.waiter.WaitWhile(stillBlocked, wait) && ipctime.Expired(deadline, hasDeadline) {
			return ErrTimeout
		}
	}
}
