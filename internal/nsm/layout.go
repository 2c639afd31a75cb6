// File: internal/nsm/layout.go
// Author: natyamatsya
// License: Apache-2.0
//
// Shared helper for reinterpreting the region header's refcount word.
// Kept separate from the platform files since it is identical on every
// target: the refcount always lives at byte offset 0 of the mapping.

package nsm

import "unsafe"

func ptr32(data []byte) unsafe.Pointer {
	return unsafe.Pointer(&data[0])
}
