// File: internal/chunkstore/chunkstore.go
// Author: natyamatsya
// License: Apache-2.0

package chunkstore

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipclog"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

// ErrResourceExhausted is returned when no free chunk remains in the
// class large enough for the requested size.
var ErrResourceExhausted = errors.New("chunkstore: resource exhausted")

// ErrTooLarge is returned when a payload exceeds every size class.
var ErrTooLarge = errors.New("chunkstore: payload exceeds largest class")

// Store is a fixed-capacity, size-classed overflow arena living in a
// named shared-memory region.
type Store struct {
	handle         *nsm.Handle
	chunksPerClass int
	classBase      [NumClasses]int // byte offset of class c's first chunk slot
}

// Open acquires (creating if necessary) the named chunk-store region
// and, on first creation, threads every class's free list through all
// of its chunk slots.
func Open(name string, chunksPerClass int, mode nsm.Mode) (*Store, error) {
	size := RegionSize(chunksPerClass)
	h, err := nsm.Acquire(name, size, mode)
	if err != nil {
		return nil, err
	}

	s := &Store{handle: h, chunksPerClass: chunksPerClass}
	offset := headerSize
	for c := range ClassSizes {
		s.classBase[c] = offset
		offset += chunksPerClass * int(chunkStride(c))
	}

	if nsm.Ref(h) == 1 {
		s.initFreeLists()
	}
	return s, nil
}

// Close releases this process's local mapping.
func (s *Store) Close() error {
	return nsm.Release(s.handle)
}

func (s *Store) initFreeLists() {
	for c := range ClassSizes {
		head := noFree
		for i := s.chunksPerClass - 1; i >= 0; i-- {
			slot := s.chunkSlot(c, i)
			atomic.StoreUint32(u32At(slot, chunkOffRefcount), 0)
			atomic.StoreInt32(i32At(slot, chunkOffNextFree), head)
			head = int32(i)
		}
		atomic.StoreInt32(s.classFreeHead(c), head)
		atomic.StoreUint32(s.classSpinlock(c), 0)
	}
}

func (s *Store) classSpinlock(classIdx int) *uint32 {
	return u32At(s.handle.Payload(), classIdx*classHeaderStride+classHeaderOffSpinlock)
}

func (s *Store) classFreeHead(classIdx int) *int32 {
	return i32At(s.handle.Payload(), classIdx*classHeaderStride+classHeaderOffFreeHead)
}

func (s *Store) chunkSlot(classIdx, slotIdx int) []byte {
	stride := int(chunkStride(classIdx))
	start := s.classBase[classIdx] + slotIdx*stride
	return s.handle.Payload()[start : start+stride]
}

func classFor(size uint32) (int, bool) {
	for c, cs := range ClassSizes {
		if size <= cs {
			return c, true
		}
	}
	return 0, false
}

func (s *Store) lockClass(classIdx int) {
	lock := s.classSpinlock(classIdx)
	for !atomic.CompareAndSwapUint32(lock, 0, 1) {
		runtime.Gosched()
	}
}

func (s *Store) unlockClass(classIdx int) {
	atomic.StoreUint32(s.classSpinlock(classIdx), 0)
}

// Alloc reserves the smallest size class fitting size, copies data
// into it, and returns a key identifying the chunk. The refcount is
// left at zero; the caller sets it via SetRefcount once the
// outstanding connection mask at write time is known.
func (s *Store) Alloc(data []byte) (Key, error) {
	classIdx, ok := classFor(uint32(len(data)))
	if !ok {
		return 0, ErrTooLarge
	}

	s.lockClass(classIdx)
	head := atomic.LoadInt32(s.classFreeHead(classIdx))
	if head == noFree {
		s.unlockClass(classIdx)
		ipclog.Component("chunkstore").Warn().Int("class", classIdx).Uint32("class_size", ClassSizes[classIdx]).
			Msg("chunk class exhausted")
		return 0, ErrResourceExhausted
	}
	slotIdx := int(head)
	next := atomic.LoadInt32(i32At(s.chunkSlot(classIdx, slotIdx), chunkOffNextFree))
	atomic.StoreInt32(s.classFreeHead(classIdx), next)
	s.unlockClass(classIdx)

	slot := s.chunkSlot(classIdx, slotIdx)
	copy(slot[chunkOffPayload:], data)
	atomic.StoreUint32(u32At(slot, chunkOffRefcount), 0)
	return makeKey(classIdx, slotIdx), nil
}

// SetRefcount stamps the number of outstanding readers expected to
// consume this chunk, mirroring the ring slot's outstanding-mask
// population count.
func (s *Store) SetRefcount(key Key, n uint32) {
	slot := s.chunkSlot(key.classIdx(), key.slotIdx())
	atomic.StoreUint32(u32At(slot, chunkOffRefcount), n)
}

// Fetch copies out the chunk's payload (sized by the caller from the
// ring slot's descriptor, since the chunk itself only knows its
// rounded-up class size).
func (s *Store) Fetch(key Key, size uint32) []byte {
	slot := s.chunkSlot(key.classIdx(), key.slotIdx())
	return append([]byte(nil), slot[chunkOffPayload:chunkOffPayload+int(size)]...)
}

// Release decrements key's refcount; the last decrement returns the
// chunk to its class's free list.
func (s *Store) Release(key Key) {
	classIdx, slotIdx := key.classIdx(), key.slotIdx()
	slot := s.chunkSlot(classIdx, slotIdx)
	refPtr := u32At(slot, chunkOffRefcount)

	for {
		cur := atomic.LoadUint32(refPtr)
		if cur == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(refPtr, cur, cur-1) {
			if cur-1 == 0 {
				s.free(classIdx, slotIdx)
			}
			return
		}
	}
}

func (s *Store) free(classIdx, slotIdx int) {
	s.lockClass(classIdx)
	head := atomic.LoadInt32(s.classFreeHead(classIdx))
	atomic.StoreInt32(i32At(s.chunkSlot(classIdx, slotIdx), chunkOffNextFree), head)
	atomic.StoreInt32(s.classFreeHead(classIdx), int32(slotIdx))
	s.unlockClass(classIdx)
}
