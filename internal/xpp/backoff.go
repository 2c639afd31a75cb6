// File: internal/xpp/backoff.go
// Author: natyamatsya
// License: Apache-2.0
//
// Adaptive spin + escalating back-off schedule substituting for
// "_timedlock"/"_timedwait" on platforms lacking them: a short spin
// phase to absorb contention, then 1us x100, 10us x100, 100us x100,
// then 1ms steps until the deadline passes.
//
// The spin phase only runs on CPUs with a cheap yield-friendly
// instruction set (SSE2 on x86, ASIMD on arm64); without one, busy
// spinning just burns a core waiting on runtime.Gosched, so those CPUs
// skip straight to the sleep escalation.

package xpp

import (
	"runtime"
	"time"

	"golang.org/x/sys/cpu"
)

const spinIterations = 1000

// spinFriendly records whether the running CPU has a cheap spin-wait
// instruction, gating whether Backoff schedules start with a spin
// phase at all.
var spinFriendly = cpu.X86.HasSSE2 || cpu.ARM64.HasASIMD

// Backoff is a single-use, stateful retry scheduler: call Pause
// repeatedly between failed CAS attempts until it has been used enough
// times to have covered any reasonable deadline.
type Backoff struct {
	spinLeft  int
	stage     int
	stageLeft int
}

// NewBackoff returns a fresh schedule starting at the spin phase, or
// skipping it entirely on a CPU without a cheap spin-wait instruction.
func NewBackoff() *Backoff {
	if !spinFriendly {
		return &Backoff{}
	}
	return &Backoff{spinLeft: spinIterations}
}

var escalation = [...]time.Duration{
	time.Microsecond,
	10 * time.Microsecond,
	100 * time.Microsecond,
}

const stepsPerStage = 100

// Pause blocks for the next step in the schedule.
func (b *Backoff) Pause() {
	if b.spinLeft > 0 {
		b.spinLeft--
		runtime.Gosched()
		return
	}
	if b.stage < len(escalation) {
		time.Sleep(escalation[b.stage])
		b.stageLeft++
		if b.stageLeft >= stepsPerStage {
			b.stageLeft = 0
			b.stage++
		}
		return
	}
	time.Sleep(time.Millisecond)
}

// Reset restarts the schedule at the spin phase, used when a waiter
// gives up on one predicate and starts checking another (e.g. after
// reinitialising a dead-held mutex).
func (b *Backoff) Reset() {
	if spinFriendly {
		b.spinLeft = spinIterations
	}
	b.stage = 0
	b.stageLeft = 0
}
