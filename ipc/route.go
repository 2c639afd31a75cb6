// File: ipc/route.go
// Author: natyamatsya
// License: Apache-2.0
//
// Route is the 1-producer/N-consumer broadcast transport.

package ipc

import (
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/reaper"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ring"
)

// Route is a broadcast handle: exactly one sender's writes fan out to
// every currently connected receiver. The single-writer contract is
// not enforced by a lock — ConnectRouteSender assumes the caller
// honors it, the same way the underlying ring.SendBroadcast head is
// unsynchronised by design.
type Route struct {
	h *handle
}

// ConnectRouteSender opens (creating if necessary) the named route as
// its sender.
func ConnectRouteSender(name string, cfg *Config) (*Route, error) {
	h, err := openHandle(name, ModeSender, cfg, sendBroadcast, nil)
	if err != nil {
		return nil, err
	}
	return &Route{h: h}, nil
}

// ConnectRouteReceiver opens (creating if necessary) the named route
// as a new receiver, claiming a connection bitmask bit.
func ConnectRouteReceiver(name string, cfg *Config, reap *reaper.Reaper) (*Route, error) {
	h, err := openHandle(name, ModeReceiver, cfg, sendBroadcast, reap)
	if err != nil {
		return nil, err
	}
	return &Route{h: h}, nil
}

func sendBroadcast(r *ring.Ring, desc ring.Descriptor, timeout ipctime.Timeout) error {
	return r.SendBroadcast(desc, timeout)
}

// Disconnect releases this handle.
func (rt *Route) Disconnect() error { return rt.h.Disconnect() }

// Send publishes data to every connected receiver.
func (rt *Route) Send(data []byte, timeout ipctime.Timeout) error { return rt.h.Send(data, timeout) }

// TrySend is Send with a non-blocking deadline.
func (rt *Route) TrySend(data []byte) error { return rt.h.TrySend(data) }

// Recv reads the next message for this receiver.
func (rt *Route) Recv(timeout ipctime.Timeout) ([]byte, error) { return rt.h.Recv(timeout) }

// TryRecv is Recv with a non-blocking deadline.
func (rt *Route) TryRecv() ([]byte, error) { return rt.h.TryRecv() }

// WaitForRecv blocks until n receivers are connected.
func (rt *Route) WaitForRecv(n int, timeout ipctime.Timeout) bool { return rt.h.WaitForRecv(n, timeout) }
