// File: internal/ring/slot.go
// Author: natyamatsya
// License: Apache-2.0

package ring

func writeDescriptor(slot []byte, kind, size uint32, chunkKey uint64, inline []byte) {
	if kind == KindInline {
		copy(slot[slotOffPayload:slotOffPayload+int(size)], inline)
	}
	*u32At(slot, slotOffKind) = kind
	*u32At(slot, slotOffSize) = size
	*u64At(slot, slotOffChunkKey) = chunkKey
}

func readDescriptor(slot []byte) Descriptor {
	kind := *u32At(slot, slotOffKind)
	size := *u32At(slot, slotOffSize)
	chunkKey := *u64At(slot, slotOffChunkKey)
	d := Descriptor{Kind: kind, Size: size, ChunkKey: chunkKey}
	if kind == KindInline {
		d.Inline = append([]byte(nil), slot[slotOffPayload:slotOffPayload+int(size)]...)
	}
	return d
}
