// File: internal/xpp/layout.go
// Package xpp implements cross-process synchronisation primitives
// (mutex, condition variable, counting semaphore, composite waiter)
// living inside NSM regions so that multiple processes can map and
// operate on the same primitive.
// Author: natyamatsya
// License: Apache-2.0

package xpp

import "unsafe"

func u32At(data []byte, offset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&data[offset]))
}

func i32At(data []byte, offset int) *int32 {
	return (*int32)(unsafe.Pointer(&data[offset]))
}
