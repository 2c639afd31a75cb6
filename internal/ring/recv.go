// File: internal/ring/recv.go
// Author: natyamatsya
// License: Apache-2.0
//
// A receiver's progress is purely a function of its own cursor and the
// outstanding bit it was granted at Connect time. Consumption is
// bit-clearing, not cursor-vs-cursor comparison, so a slow reader
// never blocks a fast one and a fast producer can lap a reader's
// unread slot only once that reader's bit is cleared.

package ring

import (
	"sync/atomic"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
)

// TryRecv attempts one non-blocking read for connID. ErrWouldBlock
// means no new slot is outstanding for this connection yet.
func (r *Ring) TryRecv(connID int) (Descriptor, error) {
	if r.connState(connID) != ConnConnected {
		return Descriptor{}, ErrClosed
	}

	cursor := atomic.LoadUint64(r.connCursors[connID])
	slot := r.slotBase(cursor)
	maskPtr := u64At(slot, slotOffMask)
	bit := uint64(1) << uint(connID)

	if atomic.LoadUint64(maskPtr)&bit == 0 {
		return Descriptor{}, ErrWouldBlock
	}

	desc := readDescriptor(slot)
	clearBit(maskPtr, bit)
	atomic.StoreUint64(r.connCursors[connID], cursor+1)
	r.waiter.Broadcast()
	return desc, nil
}

// Recv reads the next message addressed to connID, blocking (subject
// to timeout) until the producer stamps this connection's bit.
func (r *Ring) Recv(connID int, timeout ipctime.Timeout) (Descriptor, error) {
	for {
		desc, err := r.TryRecv(connID)
		if err == nil {
			return desc, nil
		}
		if err == ErrClosed {
			return Descriptor{}, err
		}

		cursor := atomic.LoadUint64(r.connCursors[connID])
		slot := r.slotBase(cursor)
		maskPtr := u64At(slot, slotOffMask)
		bit := uint64(1) << uint(connID)
		noData := func(uint32) bool {
			return r.connState(connID) == ConnConnected && atomic.LoadUint64(maskPtr)&bit == 0
		}
		if !r.waiter.WaitWhile(noData, timeout) {
			if r.connState(connID) != ConnConnected {
				return Descriptor{}, ErrClosed
			}
			return Descriptor{}, ErrTimeout
		}
	}
}
