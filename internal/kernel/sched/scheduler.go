// Package sched is the cooperative rendezvous scheduler. There is no timer
// tick: control moves only when a process yields, blocks, or a message
// delivery or reply makes another process runnable. All transitions reduce
// to one primitive — transfer control to thread X, carrying a return value.
package sched

import (
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/shared/types"
)

// Scheduler tracks the run queue of Ready processes and which process is
// current. Not internally synchronized; the kernel serializes access.
type Scheduler struct {
	current types.PID
	runq    []types.PID
}

// New creates a scheduler with the kernel process current.
func New() *Scheduler {
	return &Scheduler{current: types.KernelPID}
}

// Current returns the process considered running.
func (s *Scheduler) Current() types.PID { return s.current }

// SetCurrent records p as the running process.
func (s *Scheduler) SetCurrent(p *proc.Process) {
	s.current = p.PID
	p.State = proc.StateRunning
}

// MakeReady marks p runnable and queues it, unless it is already queued or
// terminated.
func (s *Scheduler) MakeReady(p *proc.Process) {
	if p.State == proc.StateTerminated {
		return
	}
	p.State = proc.StateReady
	for _, pid := range s.runq {
		if pid == p.PID {
			return
		}
	}
	s.runq = append(s.runq, p.PID)
}

// TakeNext pops the oldest Ready process id, or false when the queue is
// empty.
func (s *Scheduler) TakeNext() (types.PID, bool) {
	if len(s.runq) == 0 {
		return 0, false
	}
	pid := s.runq[0]
	s.runq = s.runq[1:]
	return pid, true
}

// Remove drops a process from the run queue, e.g. on termination.
func (s *Scheduler) Remove(pid types.PID) {
	for i, q := range s.runq {
		if q == pid {
			s.runq = append(s.runq[:i], s.runq[i+1:]...)
			return
		}
	}
}

// Wake transfers a result to a parked thread. Exactly one Wake is allowed
// per park; the buffered channel makes the handoff non-blocking for the
// waker.
func (s *Scheduler) Wake(t *proc.Thread, r ipc.Result) {
	t.Parked = false
	t.Resume <- r
}

// Park marks the thread as waiting for its next Wake. The kernel releases
// its lock and receives on t.Resume afterwards.
func (s *Scheduler) Park(t *proc.Thread) {
	t.Parked = true
}

// QueueLen returns the run queue depth.
func (s *Scheduler) QueueLen() int { return len(s.runq) }
