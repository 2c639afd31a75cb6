// File: internal/ring/ring.go
// Author: natyamatsya
// License: Apache-2.0

package ring

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/xpp"
)

var (
	// ErrResourceExhausted is returned when the connection bitmask is
	// already full.
	ErrResourceExhausted = errors.New("ring: connection bitmask exhausted")
	// ErrClosed is returned to a caller whose handle has disconnected
	// or whose peer has.
	ErrClosed = errors.New("ring: closed")
	// ErrTimeout is returned when a deadline elapses before the
	// operation could proceed.
	ErrTimeout = errors.New("ring: timeout")
	// ErrWouldBlock is returned by try_* variants that would otherwise
	// have to block.
	ErrWouldBlock = errors.New("ring: would block")
)

// Descriptor is what a slot carries: either the payload is embedded
// inline, or it is a reference into the chunk store.
type Descriptor struct {
	Kind     uint32
	Size     uint32
	ChunkKey uint64
	Inline   []byte

	// OnMaskResolved, if set, is called with the outstanding-reader
	// popcount exactly once, after the connection bitmask snapshot for
	// this write is taken but before it is published to the slot. A
	// chunk-backed send uses this to stamp the chunk store's refcount
	// with the same reader count the slot's mask will carry, so a
	// concurrent Connect/Disconnect can never leave the two counts out
	// of step with each other.
	OnMaskResolved func(outstanding uint32)
}

// Ring is the shared-memory circular buffer backing both Route
// (broadcast) and Channel (unicast) transports.
type Ring struct {
	handle      *nsm.Handle
	waiter      *xpp.Waiter
	capacity    uint32
	payloadSize uint32

	producerCursor *uint64
	connMask       *uint64
	writerLock     *uint32
	connCursors    []*uint64
	connStates     []*uint32
	connPIDs       []*int32

	// deadReaderProbe, when nonzero, is how long a blocked Send waits
	// before calling ReapDeadConnections itself rather than waiting
	// for a background sweep to get to it. Zero (the default) leaves
	// reclamation entirely to whatever background reaper is running,
	// if any.
	deadReaderProbe time.Duration
}

// SetDeadReaderProbe configures how long SendBroadcast/SendUnicast
// wait on a full slot before probing for and reclaiming a dead
// connection themselves.
func (r *Ring) SetDeadReaderProbe(d time.Duration) {
	r.deadReaderProbe = d
}

// Open acquires (creating if necessary) the named ring region and its
// companion waiter region.
func Open(name string, capacity, payloadSize uint32, mode nsm.Mode) (*Ring, error) {
	size := RegionSize(capacity, payloadSize)
	h, err := nsm.Acquire(name, size, mode)
	if err != nil {
		return nil, err
	}
	w, err := xpp.OpenWaiter(name+"#wait", mode)
	if err != nil {
		nsm.Release(h)
		return nil, err
	}

	payload := h.Payload()
	r := &Ring{
		handle:         h,
		waiter:         w,
		capacity:       capacity,
		payloadSize:    payloadSize,
		producerCursor: u64At(payload, offProducerCursor),
		connMask:       u64At(payload, offConnMask),
		writerLock:     u32At(payload, offWriterLock),
	}
	for i := 0; i < MaxConnections; i++ {
		r.connCursors = append(r.connCursors, u64At(payload, offConnCursors+i*8))
		r.connStates = append(r.connStates, u32At(payload, offConnStates+i*4))
		r.connPIDs = append(r.connPIDs, i32At(payload, offConnPIDs+i*4))
	}
	return r, nil
}

// Close releases this process's local mappings (ring region + waiter).
func (r *Ring) Close() error {
	err1 := nsm.Release(r.handle)
	err2 := r.waiter.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Capacity returns the slot count.
func (r *Ring) Capacity() uint32 { return r.capacity }

// PayloadSize returns the per-slot inline payload size, the threshold
// above which Send must overflow to the chunk store.
func (r *Ring) PayloadSize() uint32 { return r.payloadSize }

func (r *Ring) slotBase(cursor uint64) []byte {
	payload := r.handle.Payload()
	idx := cursor % uint64(r.capacity)
	stride := uint64(SlotStride(r.payloadSize))
	start := uint64(HeaderSize) + idx*stride
	return payload[start : start+stride]
}

// --- connection registration: Empty -> Connected -> Disconnected ---

// Connect claims a free bit in the connection bitmask and initialises
// its cursor to the current producer cursor, so it observes only
// messages sent after it joins.
func (r *Ring) Connect() (connID int, err error) {
	for {
		mask := atomic.LoadUint64(r.connMask)
		bit := firstClearBit(mask)
		if bit < 0 {
			return 0, ErrResourceExhausted
		}
		newMask := mask | (uint64(1) << uint(bit))
		if atomic.CompareAndSwapUint64(r.connMask, mask, newMask) {
			atomic.StoreUint64(r.connCursors[bit], atomic.LoadUint64(r.producerCursor))
			atomic.StoreUint32(r.connStates[bit], ConnConnected)
			atomic.StoreInt32(r.connPIDs[bit], int32(xpp.CurrentPID()))
			r.waiter.Broadcast()
			return bit, nil
		}
	}
}

// Disconnect clears connID's bit in the connection bitmask and in
// every slot still carrying it, so a slow-reader's back-pressure
// cannot outlive its connection.
func (r *Ring) Disconnect(connID int) {
	bit := uint64(1) << uint(connID)
	for {
		mask := atomic.LoadUint64(r.connMask)
		if mask&bit == 0 {
			break
		}
		if atomic.CompareAndSwapUint64(r.connMask, mask, mask&^bit) {
			break
		}
	}
	atomic.StoreUint32(r.connStates[connID], ConnDisconnected)
	atomic.StoreInt32(r.connPIDs[connID], 0)

	for i := uint32(0); i < r.capacity; i++ {
		slot := r.slotBase(uint64(i))
		clearBit(u64At(slot, slotOffMask), bit)
	}
	r.waiter.Broadcast()
}

func (r *Ring) connState(connID int) uint32 {
	return atomic.LoadUint32(r.connStates[connID])
}

// ConnectedCount returns the population count of the connection
// bitmask (used by wait_for_recv).
func (r *Ring) ConnectedCount() int {
	return popcount(atomic.LoadUint64(r.connMask))
}

// WaitForConnections blocks until at least n connections are present
// or timeout elapses.
func (r *Ring) WaitForConnections(n int, timeout ipctime.Timeout) bool {
	return r.waiter.WaitWhile(func(uint32) bool {
		return popcount(atomic.LoadUint64(r.connMask)) < n
	}, timeout)
}

func firstClearBit(mask uint64) int {
	for i := 0; i < MaxConnections; i++ {
		if mask&(uint64(1)<<uint(i)) == 0 {
			return i
		}
	}
	return -1
}

func popcount(mask uint64) int {
	count := 0
	for mask != 0 {
		mask &= mask - 1
		count++
	}
	return count
}

func clearBit(word *uint64, bit uint64) (result uint64) {
	for {
		cur := atomic.LoadUint64(word)
		next := cur &^ bit
		if next == cur {
			return cur
		}
		if atomic.CompareAndSwapUint64(word, cur, next) {
			return next
		}
	}
}
