// File: internal/nsm/naming.go
// Author: natyamatsya
// License: Apache-2.0
//
// Deterministic name mangling: a fixed single-slash prefix, then the
// caller's logical name. If the platform enforces a maximum length L,
// names that would exceed L after canonicalisation are shortened to
// "/ipc_<16-hex-FNV-1a-hash>" taken over the pre-truncation canonical
// form, so all participants collide identically regardless of process,
// ABI, or release.

package nsm

import (
	"fmt"
	"hash/fnv"
)

const namePrefix = "/ipc_"

// maxNameLength is the platform's naming constraint. POSIX shm_open
// names and Win32 CreateFileMapping names are both comfortably within
// this budget, but some platforms (notably macOS) cap shm names at 31
// bytes; we canonicalise to the tightest common denominator so a given
// logical name mangles identically everywhere.
const maxNameLength = 30

func Canonicalize(name string) (string, error) {
	if name == "" {
		return "", ErrNameInvalid
	}
	for _, r := range name {
		if r == 0 {
			return "", ErrNameInvalid
		}
	}

	canonical := namePrefix + name
	if len(canonical) <= maxNameLength {
		return canonical, nil
	}
	return hashName(canonical), nil
}

// hashName derives a stable short name from the pre-truncation
// canonical form using FNV-1a.
func hashName(canonical string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(canonical))
	return fmt.Sprintf("/ipc_%016x", h.Sum64())
}
