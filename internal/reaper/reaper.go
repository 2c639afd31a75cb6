// File: internal/reaper/reaper.go
// Package reaper runs an opt-in background sweep that periodically
// reaps dead connections from every registered target. A single
// goroutine owns all mutable state and is driven entirely by channel
// requests, so registering or unregistering a target never needs a
// mutex; the scan order of registered targets is a
// github.com/eapache/queue FIFO instead of a worker pool, since the
// unit of work is "which rings to scan next", not "run this closure".
// Author: natyamatsya
// License: Apache-2.0
package reaper

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipclog"
)

// Target is anything the reaper can sweep for dead connections. *ring.Ring
// satisfies this without an import cycle back into internal/ring.
type Target interface {
	ReapDeadConnections() int
}

type registerReq struct {
	name   string
	target Target
}

// Reaper periodically sweeps every registered Target.
type Reaper struct {
	interval time.Duration

	registerCh   chan registerReq
	unregisterCh chan string
	closeCh      chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
}

// New starts a reaper that sweeps all registered targets every
// interval. A zero or negative interval disables the background loop
// entirely: no goroutine is started, and Register/Unregister return
// immediately without recording anything.
func New(interval time.Duration) *Reaper {
	r := &Reaper{
		interval:     interval,
		registerCh:   make(chan registerReq),
		unregisterCh: make(chan string),
		closeCh:      make(chan struct{}),
	}
	if interval > 0 {
		r.wg.Add(1)
		go r.run()
	} else {
		r.closeOnce.Do(func() { close(r.closeCh) })
	}
	return r
}

// Register adds a target under name, so future sweeps include it.
// Safe to call concurrently from any goroutine.
func (r *Reaper) Register(name string, t Target) {
	select {
	case r.registerCh <- registerReq{name: name, target: t}:
	case <-r.closeCh:
	}
}

// Unregister removes a target, e.g. on Disconnect/Close, so the
// reaper stops touching a region that's about to be released.
func (r *Reaper) Unregister(name string) {
	select {
	case r.unregisterCh <- name:
	case <-r.closeCh:
	}
}

// Close stops the background loop. Registered targets are forgotten;
// it does not touch the underlying rings.
func (r *Reaper) Close() {
	r.closeOnce.Do(func() { close(r.closeCh) })
	r.wg.Wait()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	targets := make(map[string]Target)
	order := queue.New()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log := ipclog.Component("reaper")

	for {
		select {
		case req := <-r.registerCh:
			if _, exists := targets[req.name]; !exists {
				order.Add(req.name)
			}
			targets[req.name] = req.target

		case name := <-r.unregisterCh:
			delete(targets, name)

		case <-ticker.C:
			for i := 0; i < order.Length(); i++ {
				name := order.Remove().(string)
				order.Add(name)
				t, ok := targets[name]
				if !ok {
					continue
				}
				if n := t.ReapDeadConnections(); n > 0 {
					log.Info().Str("target", name).Int("reclaimed", n).Msg("reaped dead connections")
				}
			}

		case <-r.closeCh:
			return
		}
	}
}
