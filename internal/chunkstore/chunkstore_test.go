// File: internal/chunkstore/chunkstore_test.go
// Author: natyamatsya
// License: Apache-2.0

package chunkstore

import (
	"bytes"
	"testing"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

func openTestStore(t *testing.T, name string, chunksPerClass int) *Store {
	t.Helper()
	s, err := Open(name, chunksPerClass, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		nsm.ClearStorage(name)
	})
	return s
}

func TestAllocFetchRelease(t *testing.T) {
	s := openTestStore(t, "chunkstore-test-basic", 4)

	payload := bytes.Repeat([]byte{0xAB}, 300)
	key, err := s.Alloc(payload)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	s.SetRefcount(key, 2)

	got := s.Fetch(key, uint32(len(payload)))
	if !bytes.Equal(got, payload) {
		t.Fatalf("Fetch mismatch")
	}

	s.Release(key)
	got2 := s.Fetch(key, uint32(len(payload)))
	if !bytes.Equal(got2, payload) {
		t.Fatalf("chunk freed too early after first release")
	}

	s.Release(key)
	// Second release brings refcount to zero and returns the chunk to
	// the free list; re-allocating the same class should now succeed
	// again even though the class only has 4 chunks.
	for i := 0; i < 4; i++ {
		if _, err := s.Alloc(bytes.Repeat([]byte{0x01}, 300)); err != nil {
			t.Fatalf("re-alloc[%d]: %v", i, err)
		}
	}
}

func TestAllocExhaustion(t *testing.T) {
	s := openTestStore(t, "chunkstore-test-exhaustion", 2)

	for i := 0; i < 2; i++ {
		if _, err := s.Alloc([]byte("small")); err != nil {
			t.Fatalf("Alloc[%d]: %v", i, err)
		}
	}
	if _, err := s.Alloc([]byte("small")); err != ErrResourceExhausted {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}
}

func TestAllocTooLarge(t *testing.T) {
	s := openTestStore(t, "chunkstore-test-toolarge", 1)

	oversized := make([]byte, ClassSizes[NumClasses-1]+1)
	if _, err := s.Alloc(oversized); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestAllocPicksSmallestFittingClass(t *testing.T) {
	s := openTestStore(t, "chunkstore-test-classpick", 1)

	key, err := s.Alloc([]byte("tiny"))
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if key.classIdx() != 0 {
		t.Fatalf("expected smallest class (0) for a tiny payload, got %d", key.classIdx())
	}
}
