// File: ipc/ipc_test.go
// Author: natyamatsya
// License: Apache-2.0

package ipc

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.RingCapacity = 16
	cfg.SlotPayloadSize = 256
	cfg.ChunksPerClass = 4
	return cfg
}

func TestRouteSendRecvRoundTrip(t *testing.T) {
	name := "ipc-test-roundtrip"
	defer ClearStorage(name)
	cfg := testConfig()

	sender, err := ConnectRouteSender(name, cfg)
	if err != nil {
		t.Fatalf("ConnectRouteSender: %v", err)
	}
	defer sender.Disconnect()
	receiver, err := ConnectRouteReceiver(name, cfg, nil)
	if err != nil {
		t.Fatalf("ConnectRouteReceiver: %v", err)
	}
	defer receiver.Disconnect()

	payload := bytes.Repeat([]byte{0x41}, 1024)
	if err := sender.Send(payload, time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := receiver.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

// lcg is a small deterministic generator for reproducible message sizes.
type lcg struct{ state uint64 }

func newLCG(seed uint64) *lcg { return &lcg{state: seed} }

func (g *lcg) next() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state
}

func TestRouteBroadcastFourReceiversInOrder(t *testing.T) {
	name := "bench_route_test"
	defer ClearStorage(name)
	cfg := testConfig()
	cfg.RingCapacity = 256

	sender, err := ConnectRouteSender(name, cfg)
	if err != nil {
		t.Fatalf("ConnectRouteSender: %v", err)
	}
	defer sender.Disconnect()

	const numReceivers = 4
	receivers := make([]*Route, numReceivers)
	for i := range receivers {
		r, err := ConnectRouteReceiver(name, cfg, nil)
		if err != nil {
			t.Fatalf("ConnectRouteReceiver[%d]: %v", i, err)
		}
		receivers[i] = r
		defer r.Disconnect()
	}

	const numMessages = 100
	gen := newLCG(6364136223846793005)
	messages := make([][]byte, numMessages)
	for i := range messages {
		size := 2 + int(gen.next()%255)
		msg := make([]byte, size)
		for j := range msg {
			msg[j] = byte(i + j)
		}
		messages[i] = msg
	}

	var wg sync.WaitGroup
	for ri, r := range receivers {
		wg.Add(1)
		go func(ri int, r *Route) {
			defer wg.Done()
			for i := 0; i < numMessages; i++ {
				got, err := r.Recv(2 * time.Second)
				if err != nil {
					t.Errorf("receiver %d Recv[%d]: %v", ri, i, err)
					return
				}
				if !bytes.Equal(got, messages[i]) {
					t.Errorf("receiver %d message %d mismatch", ri, i)
					return
				}
			}
		}(ri, r)
	}

	for i, msg := range messages {
		if err := sender.Send(msg, time.Second); err != nil {
			t.Fatalf("Send[%d]: %v", i, err)
		}
	}
	wg.Wait()
}

func TestRouteBackPressureFromSlowReceiver(t *testing.T) {
	name := "ipc-test-backpressure"
	defer ClearStorage(name)
	cfg := testConfig()
	cfg.RingCapacity = 4

	sender, err := ConnectRouteSender(name, cfg)
	if err != nil {
		t.Fatalf("ConnectRouteSender: %v", err)
	}
	defer sender.Disconnect()
	slow, err := ConnectRouteReceiver(name, cfg, nil)
	if err != nil {
		t.Fatalf("ConnectRouteReceiver: %v", err)
	}
	defer slow.Disconnect()

	for i := 0; i < 4; i++ {
		if err := sender.Send([]byte{byte(i)}, 10*time.Millisecond); err != nil {
			t.Fatalf("fill Send[%d]: %v", i, err)
		}
	}

	if err := sender.Send([]byte{0xFF}, 10*time.Millisecond); err == nil {
		t.Fatalf("expected 5th send to time out while slow receiver never reads")
	} else if ipcErr, ok := err.(*Error); !ok || ipcErr.Code != ErrCodeTimeout {
		t.Fatalf("expected ErrCodeTimeout, got %v", err)
	}

	if _, err := slow.Recv(time.Second); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := sender.Send([]byte{0xFF}, 10*time.Millisecond); err != nil {
		t.Fatalf("expected send to succeed once a slot freed: %v", err)
	}
}

func TestRouteOverflowChunking(t *testing.T) {
	name := "ipc-test-overflow"
	defer ClearStorage(name)
	cfg := testConfig()
	cfg.SlotPayloadSize = 64

	sender, err := ConnectRouteSender(name, cfg)
	if err != nil {
		t.Fatalf("ConnectRouteSender: %v", err)
	}
	defer sender.Disconnect()
	receiver, err := ConnectRouteReceiver(name, cfg, nil)
	if err != nil {
		t.Fatalf("ConnectRouteReceiver: %v", err)
	}
	defer receiver.Disconnect()

	payload := bytes.Repeat([]byte{0x5A}, 65536)
	if err := sender.Send(payload, time.Second); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := receiver.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("overflow round-trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}

	// The chunk should now be fully released: allocating chunksPerClass
	// (4) more same-class chunks must still succeed.
	for i := 0; i < cfg.ChunksPerClass; i++ {
		if err := sender.Send(payload, time.Second); err != nil {
			t.Fatalf("post-release Send[%d]: %v", i, err)
		}
		if _, err := receiver.Recv(time.Second); err != nil {
			t.Fatalf("post-release Recv[%d]: %v", i, err)
		}
	}
}

func TestChannelWaitForRecv(t *testing.T) {
	name := "ipc-test-waitforrecv"
	defer ClearStorage(name)
	cfg := testConfig()

	sender, err := ConnectChannelSender(name, cfg)
	if err != nil {
		t.Fatalf("ConnectChannelSender: %v", err)
	}
	defer sender.Disconnect()

	done := make(chan bool, 1)
	go func() {
		done <- sender.WaitForRecv(2, 5*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	r1, err := ConnectChannelReceiver(name, cfg, nil)
	if err != nil {
		t.Fatalf("ConnectChannelReceiver 1: %v", err)
	}
	defer r1.Disconnect()
	r2, err := ConnectChannelReceiver(name, cfg, nil)
	if err != nil {
		t.Fatalf("ConnectChannelReceiver 2: %v", err)
	}
	defer r2.Disconnect()

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("expected wait_for_recv to report reached")
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("wait_for_recv did not return within budget")
	}
}

func TestClearStorageIdempotentTwice(t *testing.T) {
	name := "ipc-test-clearstorage-idem"
	cfg := testConfig()

	h, err := ConnectRouteSender(name, cfg)
	if err != nil {
		t.Fatalf("ConnectRouteSender: %v", err)
	}
	h.Disconnect()

	if err := ClearStorage(name); err != nil {
		t.Fatalf("first ClearStorage: %v", err)
	}
	if err := ClearStorage(name); err != nil {
		t.Fatalf("second ClearStorage: %v", err)
	}
}

func TestChannelMultipleSendersNoLoss(t *testing.T) {
	name := "ipc-test-channel-multisender"
	defer ClearStorage(name)
	cfg := testConfig()
	cfg.RingCapacity = 64

	receiver, err := ConnectChannelReceiver(name, cfg, nil)
	if err != nil {
		t.Fatalf("ConnectChannelReceiver: %v", err)
	}
	defer receiver.Disconnect()

	const senders = 4
	const perSender = 10
	var wg sync.WaitGroup
	wg.Add(senders)
	for s := 0; s < senders; s++ {
		go func(s int) {
			defer wg.Done()
			sender, err := ConnectChannelSender(name, cfg)
			if err != nil {
				t.Errorf("ConnectChannelSender[%d]: %v", s, err)
				return
			}
			defer sender.Disconnect()
			for i := 0; i < perSender; i++ {
				if err := sender.Send([]byte{byte(s), byte(i)}, 2*time.Second); err != nil {
					t.Errorf("Send[s=%d,i=%d]: %v", s, i, err)
				}
			}
		}(s)
	}
	wg.Wait()

	got := 0
	for {
		_, err := receiver.Recv(50 * time.Millisecond)
		if ipcErr, ok := err.(*Error); ok && ipcErr.Code == ErrCodeTimeout {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		got++
	}
	if got != senders*perSender {
		t.Fatalf("got %d messages, want %d", got, senders*perSender)
	}
}
