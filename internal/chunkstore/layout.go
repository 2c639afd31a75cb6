// File: internal/chunkstore/layout.go
// Package chunkstore implements the overflow arena for payloads too
// large to embed in a ring slot: one free list per size class, the
// same shape as a process-local slab allocator, except the free list
// and refcounts live in shared memory rather than a process-local
// queue, so a short spinlock per class replaces a lock-free queue.
// Author: natyamatsya
// License: Apache-2.0
package chunkstore

import "unsafe"

// ClassSizes are the size classes chunks are rounded up to: powers of
// two from 128 bytes up to 64KB.
var ClassSizes = [...]uint32{128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768, 65536}

const NumClasses = len(ClassSizes)

// Per-class header entry: [spinlock uint32][freeHead int32]
const classHeaderStride = 8

const (
	classHeaderOffSpinlock = 0
	classHeaderOffFreeHead = 4
)

// Per-chunk slot header: [refcount uint32][nextFree int32][payload...]
const chunkHeaderSize = 8

const (
	chunkOffRefcount = 0
	chunkOffNextFree = 4
	chunkOffPayload  = chunkHeaderSize
)

var headerSize = NumClasses * classHeaderStride

// noFree marks an empty free list / list terminator.
const noFree = int32(-1)

func u32At(data []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&data[offset]))
}

func i32At(data []byte, offset int) *int32 {
	return (*int32)(unsafe.Pointer(&data[offset]))
}

// chunkStride returns the byte stride of one chunk slot in class idx.
func chunkStride(classIdx int) uint32 {
	return chunkHeaderSize + ClassSizes[classIdx]
}

// Key encodes a chunk's class and index within that class's array so
// Release/Fetch can locate it without a separate lookup table.
type Key uint64

func makeKey(classIdx, slotIdx int) Key {
	return Key(uint64(classIdx)<<32 | uint64(uint32(slotIdx)))
}

func (k Key) classIdx() int { return int(k >> 32) }
func (k Key) slotIdx() int  { return int(uint32(k)) }

// RegionSize returns the total NSM payload size for a chunk store
// where chunksPerClass chunks are provisioned in every size class.
func RegionSize(chunksPerClass int) uint64 {
	total := uint64(headerSize)
	for c := range ClassSizes {
		total += uint64(chunksPerClass) * uint64(chunkStride(c))
	}
	return total
}
