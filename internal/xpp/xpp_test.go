// File: internal/xpp/xpp_test.go
// Author: natyamatsya
// License: Apache-2.0

package xpp

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/natyamatsya/cpp-ipc-sub001/internal/ipctime"
	"github.com/natyamatsya/cpp-ipc-sub001/internal/nsm"
)

func TestMutexLockUnlock(t *testing.T) {
	name := "xpp-test-mutex-basic"
	defer nsm.ClearStorage(name)

	m, err := OpenMutex(name, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer m.Close()

	if !m.Lock(ipctime.Try) {
		t.Fatalf("expected uncontended lock to succeed")
	}
	if m.TryLock() {
		t.Fatalf("expected second TryLock to fail while held")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatalf("expected lock to succeed after unlock")
	}
	m.Unlock()
}

func TestMutexLockTimeout(t *testing.T) {
	name := "xpp-test-mutex-timeout"
	defer nsm.ClearStorage(name)

	m, err := OpenMutex(name, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer m.Close()

	if !m.TryLock() {
		t.Fatalf("setup: expected lock")
	}
	start := time.Now()
	if m.Lock(20 * time.Millisecond) {
		t.Fatalf("expected contended lock to time out")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("returned suspiciously fast for a 20ms timeout")
	}
}

// TestMutexDeadHolderRecovery simulates a crashed holder by recording
// the PID of a process we then kill, and checking that a contender
// reacquires the lock within its 500ms budget once the dead-holder
// threshold has elapsed.
func TestMutexDeadHolderRecovery(t *testing.T) {
	name := "xpp-test-mutex-dead-holder"
	defer nsm.ClearStorage(name)

	m, err := OpenMutex(name, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer m.Close()

	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot spawn helper process in this sandbox: %v", err)
	}
	deadPID := int32(cmd.Process.Pid)
	atomic.StoreUint32(m.state, mutexLocked)
	atomic.StoreInt32(m.holder, deadPID)

	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("kill helper: %v", err)
	}
	_ = cmd.Wait()

	if !m.Lock(500 * time.Millisecond) {
		t.Fatalf("expected recovery of dead-holder lock within budget")
	}
	m.Unlock()
}

func TestCondWaitNotify(t *testing.T) {
	mutexName := "xpp-test-cond-mutex"
	condName := "xpp-test-cond-cond"
	defer nsm.ClearStorage(mutexName)
	defer nsm.ClearStorage(condName)

	m, err := OpenMutex(mutexName, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer m.Close()
	c, err := OpenCond(condName, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenCond: %v", err)
	}
	defer c.Close()

	var ready atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Lock(ipctime.Infinite)
		for !ready.Load() {
			c.Wait(m, 2*time.Second)
		}
		m.Unlock()
	}()

	time.Sleep(20 * time.Millisecond)
	m.Lock(ipctime.Infinite)
	ready.Store(true)
	c.NotifyAll()
	m.Unlock()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("waiter did not wake within budget")
	}
}

func TestSemaPostWait(t *testing.T) {
	name := "xpp-test-sema"
	defer nsm.ClearStorage(name)

	s, err := OpenSema(name, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenSema: %v", err)
	}
	defer s.Close()

	if s.TryWait() {
		t.Fatalf("expected empty semaphore to fail TryWait")
	}
	s.Post(2)
	if !s.Wait(ipctime.Try) {
		t.Fatalf("expected first wait to succeed")
	}
	if !s.Wait(ipctime.Try) {
		t.Fatalf("expected second wait to succeed")
	}
	if s.Wait(10 * time.Millisecond) {
		t.Fatalf("expected third wait to time out")
	}
}

func TestWaiterWaitWhile(t *testing.T) {
	name := "xpp-test-waiter"
	defer nsm.ClearStorage(name)

	w, err := OpenWaiter(name, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenWaiter: %v", err)
	}
	defer w.Close()

	done := make(chan bool, 1)
	go func() {
		done <- w.WaitWhile(func(c uint32) bool { return c < 3 }, 2*time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Bump(1)
	w.Bump(1)
	w.Bump(1)

	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("expected WaitWhile to observe predicate become false")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("WaitWhile did not return within budget")
	}
}

func TestWaiterTimeout(t *testing.T) {
	name := "xpp-test-waiter-timeout"
	defer nsm.ClearStorage(name)

	w, err := OpenWaiter(name, nsm.CreateOrOpen)
	if err != nil {
		t.Fatalf("OpenWaiter: %v", err)
	}
	defer w.Close()

	if w.WaitWhile(func(uint32) bool { return true }, 30*time.Millisecond) {
		t.Fatalf("expected WaitWhile to time out when predicate never clears")
	}
}
