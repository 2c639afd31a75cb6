// File: ipc/channel.go
// Author: natyamatsya
// License: Apache-2.0
//
// Channel is the N-producer/N-consumer transport, sharing the same
// broadcast-to-all-receivers fan-out as Route but serialising
// concurrent senders over the ring's writerLock (unicast.go).

package ipc

import (
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/reaper"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/ring"
)

// Channel is a many-writer, many-reader handle: every message, once
// accepted from any sender, is delivered to every connected receiver.
type Channel struct {
	h *handle
}

// ConnectChannelSender opens (creating if necessary) the named channel
// as one of potentially many senders.
func ConnectChannelSender(name string, cfg *Config) (*Channel, error) {
	h, err := openHandle(name, ModeSender, cfg, sendUnicast, nil)
	if err != nil {
		return nil, err
	}
	return &Channel{h: h}, nil
}

// ConnectChannelReceiver opens (creating if necessary) the named
// channel as a new receiver, claiming a connection bitmask bit.
func ConnectChannelReceiver(name string, cfg *Config, reap *reaper.Reaper) (*Channel, error) {
	h, err := openHandle(name, ModeReceiver, cfg, sendUnicast, reap)
	if err != nil {
		return nil, err
	}
	return &Channel{h: h}, nil
}

func sendUnicast(r *ring.Ring, desc ring.Descriptor, timeout ipctime.Timeout) error {
	return r.SendUnicast(desc, timeout)
}

// Disconnect releases this handle.
func (c *Channel) Disconnect() error { return c.h.Disconnect() }

// Send publishes data to every connected receiver, serialised against
// any sibling senders.
func (c *Channel) Send(data []byte, timeout ipctime.Timeout) error { return c.h.Send(data, timeout) }

// TrySend is Send with a non-blocking deadline.
func (c *Channel) TrySend(data []byte) error { return c.h.TrySend(data) }

// Recv reads the next message for this receiver.
func (c *Channel) Recv(timeout ipctime.Timeout) ([]byte, error) { return c.h.Recv(timeout) }

// TryRecv is Recv with a non-blocking deadline.
func (c *Channel) TryRecv() ([]byte, error) { return c.h.TryRecv() }

// WaitForRecv blocks until n receivers are connected.
func (c *Channel) WaitForRecv(n int, timeout ipctime.Timeout) bool { return c.h.WaitForRecv(n, timeout) }
