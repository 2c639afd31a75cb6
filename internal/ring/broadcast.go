// File: internal/ring/broadcast.go
// Author: natyamatsya
// License: Apache-2.0
//
// Broadcast write: a single producer advances the shared cursor
// directly, no serialisation needed since there is only ever one
// writer. Fan-out to every connected reader happens by stamping the
// slot's outstanding mask with a snapshot of the connection bitmask at
// write time.

package ring

import (
	"sync/atomic"
	"time"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
)

// trySendBroadcast attempts one non-blocking write at the current
// producer cursor. It fails if the slot still carries unread bits
// from a prior lap (the slowest connected reader hasn't caught up).
func (r *Ring) trySendBroadcast(desc Descriptor) bool {
	cursor := atomic.LoadUint64(r.producerCursor)
	slot := r.slotBase(cursor)
	maskPtr := u64At(slot, slotOffMask)
	if atomic.LoadUint64(maskPtr) != 0 {
		return false
	}

	writeDescriptor(slot, desc.Kind, desc.Size, desc.ChunkKey, desc.Inline)
	mask := atomic.LoadUint64(r.connMask)
	if desc.OnMaskResolved != nil {
		desc.OnMaskResolved(uint32(popcount(mask)))
	}
	atomic.StoreUint64(maskPtr, mask)
	atomic.StoreUint64(r.producerCursor, cursor+1)
	return true
}

// SendBroadcast publishes desc to every currently connected reader,
// blocking (subject to timeout) while the slot a full lap back is
// still outstanding for some reader.
func (r *Ring) SendBroadcast(desc Descriptor, timeout ipctime.Timeout) error {
	deadline, hasDeadline := ipctime.Deadline(timeout)
	var stalledSince time.Time
	if r.deadReaderProbe > 0 {
		stalledSince = time.Now()
	}

	for {
		if r.trySendBroadcast(desc) {
			r.waiter.Broadcast()
			return nil
		}

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
