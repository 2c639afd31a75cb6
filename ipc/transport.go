// File: ipc/transport.go
// Author: natyamatsya
// License: Apache-2.0
//
// Shared plumbing behind Route and Channel: both assemble the same
// ring + chunk store + timeout handling; they differ only in which
// ring head variant Send drives (broadcast.go vs unicast.go) and in
// how many concurrent senders are valid for that topology.

package ipc

import (
	"github.com/natyamatsya/cpp-ipc-sub001/internal/chunkstore"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipclog"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/reaper"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ring"
)

// Mode selects whether a handle sends or receives.
type Mode int

const (
	// ModeSender marks a handle as a producer; it never claims a
	// connection bitmask bit.
	ModeSender Mode = iota
	// ModeReceiver marks a handle as a consumer; it claims a bit via
	// ring.Connect and must Disconnect to release it.
	ModeReceiver
)

type sendFunc func(*ring.Ring, ring.Descriptor, ipctime.Timeout) error

type handle struct {
	name     string
	mode     Mode
	connID   int
	ring     *ring.Ring
	chunks   *chunkstore.Store
	cfg      *Config
	send     sendFunc
	reap     *reaper.Reaper
	ownsReap bool
}

// openHandle assembles a ring+chunk-store pair for name and applies
// cfg's logging and liveness-sweep settings. When reap is nil and
// cfg.ReapInterval is positive, it starts and owns a reaper for this
// handle's ring; callers that want several handles to share one
// background sweep construct their own *reaper.Reaper and pass it in.
func openHandle(name string, mode Mode, cfg *Config, send sendFunc, reap *reaper.Reaper) (*handle, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyLogging(cfg)

	r, err := ring.Open(name, cfg.RingCapacity, cfg.SlotPayloadSize, nsm.CreateOrOpen)
	if err != nil {
		return nil, wrapOsError("open ring", err)
	}
	r.SetDeadReaderProbe(cfg.DeadReaderProbe)

	cs, err := chunkstore.Open(name+"#chunks", cfg.chunkStoreChunksPerClass(), nsm.CreateOrOpen)
	if err != nil {
		r.Close()
		return nil, wrapOsError("open chunk store", err)
	}

	ownsReap := false
	if reap == nil && cfg.ReapInterval > 0 {
		reap = reaper.New(cfg.ReapInterval)
		ownsReap = true
	}

	h := &handle{name: name, mode: mode, connID: -1, ring: r, chunks: cs, cfg: cfg, send: send, reap: reap, ownsReap: ownsReap}

	if mode == ModeReceiver {
		connID, err := r.Connect()
		if err != nil {
			cs.Close()
			r.Close()
			if ownsReap {
				reap.Close()
			}
			return nil, newError(ErrCodeResourceExhausted, "ring connection bitmask exhausted").withContext("name", name)
		}
		h.connID = connID
	}

	if reap != nil {
		reap.Register(name, r)
	}
	return h, nil
}

func wrapOsError(op string, err error) error {
	var oe *nsm.OsError
	if e, ok := err.(*nsm.OsError); ok {
		oe = e
	}
	e := newError(ErrCodeOsError, op+": "+err.Error())
	if oe != nil {
		e = e.withContext("os_code", oe.Code)
	}
	return e
}

// Disconnect releases this handle's ring connection (if a receiver)
// and its local mappings. Safe to call once.
func (h *handle) Disconnect() error {
	if h.reap != nil {
		h.reap.Unregister(h.name)
		if h.ownsReap {
			h.reap.Close()
		}
	}
	if h.mode == ModeReceiver && h.connID >= 0 {
		h.ring.Disconnect(h.connID)
	}
	err1 := h.chunks.Close()
	err2 := h.ring.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send publishes data, overflowing to the chunk store when it exceeds
// the ring's inline slot payload size.
func (h *handle) Send(data []byte, timeout ipctime.Timeout) error {
	if h.mode != ModeSender {
		return newError(ErrCodeClosed, "handle is not a sender")
	}

	if uint32(len(data)) <= h.ring.PayloadSize() {
		err := h.send(h.ring, ring.Descriptor{Kind: ring.KindInline, Size: uint32(len(data)), Inline: data}, timeout)
		return translateRingErr(err)
	}

	key, err := h.chunks.Alloc(data)
	if err != nil {
		return newError(ErrCodeResourceExhausted, "chunk store exhausted").withContext("size", len(data))
	}

	desc := ring.Descriptor{
		Kind:     ring.KindChunk,
		Size:     uint32(len(data)),
		ChunkKey: uint64(key),
		OnMaskResolved: func(outstanding uint32) {
			h.chunks.SetRefcount(key, outstanding)
		},
	}
	if err := h.send(h.ring, desc, timeout); err != nil {
		// The write never happened, so no reader holds the chunk; give
		// it a single reference so Release returns it to the free list.
		h.chunks.SetRefcount(key, 1)
		h.chunks.Release(key)
		return translateRingErr(err)
	}
	return nil
}

// TrySend is Send with a non-blocking deadline.
func (h *handle) TrySend(data []byte) error {
	return h.Send(data, ipctime.Try)
}

// Recv reads the next message addressed to this handle's connection,
// fetching from the chunk store and decrementing its refcount when
// the slot carried an overflow descriptor.
func (h *handle) Recv(timeout ipctime.Timeout) ([]byte, error) {
	if h.mode != ModeReceiver {
		return nil, newError(ErrCodeClosed, "handle is not a receiver")
	}

	desc, err := h.ring.Recv(h.connID, timeout)
	if err != nil {
		return nil, translateRingErr(err)
	}
	if desc.Kind == ring.KindInline {
		return desc.Inline, nil
	}

	key := chunkstore.Key(desc.ChunkKey)
	payload := h.chunks.Fetch(key, desc.Size)
	h.chunks.Release(key)
	return payload, nil
}

// TryRecv is Recv with a non-blocking deadline.
func (h *handle) TryRecv() ([]byte, error) {
	return h.Recv(ipctime.Try)
}

// WaitForRecv blocks until n receivers are connected, so a sender can
// defer its first Send until at least one consumer exists.
func (h *handle) WaitForRecv(n int, timeout ipctime.Timeout) bool {
	return h.ring.WaitForConnections(n, timeout)
}

func translateRingErr(err error) error {
	switch err {
	case nil:
		return nil
	case ring.ErrTimeout:
		return newError(ErrCodeTimeout, "timed out")
	case ring.ErrWouldBlock:
		return newError(ErrCodeWouldBlock, "would block")
	case ring.ErrClosed:
		return newError(ErrCodeClosed, "closed")
	case ring.ErrResourceExhausted:
		return newError(ErrCodeResourceExhausted, "resource exhausted")
	default:
		return newError(ErrCodeOsError, err.Error())
	}
}

// ClearStorage unconditionally unlinks every named region backing
// name (ring, its waiter, and its chunk store), idempotently: a name
// that was never created returns success.
func ClearStorage(name string) error {
	if err := nsm.ClearStorage(name); err != nil {
		return wrapOsError("clear ring storage", err)
	}
	if err := nsm.ClearStorage(name + "#wait"); err != nil {
		return wrapOsError("clear waiter storage", err)
	}
	if err := nsm.ClearStorage(name + "#chunks"); err != nil {
		return wrapOsError("clear chunk storage", err)
	}
	ipclog.Component("ipc").Debug().Str("name", name).Msg("cleared storage")
	return nil
}
