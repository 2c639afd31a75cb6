// File: ipc/doc.go
// Author: natyamatsya
// License: Apache-2.0

// Package ipc is the public transport facade: Route (1-producer,
// N-consumer broadcast) and Channel (N-producer, N-consumer), both
// backed by a shared-memory ring, an overflow chunk store for
// payloads larger than one slot, and cross-process synchronisation
// primitives. See internal/ring, internal/chunkstore and internal/xpp
// for the mechanisms; this package only assembles them behind send,
// recv, try_send, try_recv, wait_for_recv and clear_storage.
package ipc
