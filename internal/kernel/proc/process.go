// Package proc holds the process table entries: lifecycle state, the
// process's address space, its parent, and its threads.
package proc

import (
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/shared/types"
)

// State is a process lifecycle state. A process runs until it voluntarily
// yields, blocks on a send, blocks on a receive, or waits for an event.
type State int

const (
	// StateReady means runnable, parked on the run queue.
	StateReady State = iota
	// StateRunning means currently executing. One per core.
	StateRunning
	// StateSleeping means waiting for a message or event.
	StateSleeping
	// StateBlocked means suspended in a blocking send until reply.
	StateBlocked
	// StateTerminated is terminal.
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateBlocked:
		return "blocked-on-reply"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Thread is one hardware-thread equivalent inside a process. Resume is the
// rendezvous point: a parked thread receives exactly one Result per block.
type Thread struct {
	TID    types.TID
	Parked bool
	Resume chan ipc.Result
}

// Process is one process table entry.
type Process struct {
	PID    types.PID
	Name   string
	Parent types.PID
	State  State
	Space  *mem.Space

	threads map[types.TID]*Thread
	nextTID types.TID
}

// New creates a process with an empty thread table.
func New(pid types.PID, name string, parent types.PID, space *mem.Space) *Process {
	return &Process{
		PID:     pid,
		Name:    name,
		Parent:  parent,
		State:   StateReady,
		Space:   space,
		threads: make(map[types.TID]*Thread),
		nextTID: 1,
	}
}

// SpawnThread registers a new thread and returns it.
func (p *Process) SpawnThread() *Thread {
	t := &Thread{
		TID:    p.nextTID,
		Resume: make(chan ipc.Result, 1),
	}
	p.nextTID++
	p.threads[t.TID] = t
	return t
}

// Thread looks up a thread by id.
func (p *Process) Thread(tid types.TID) (*Thread, bool) {
	t, ok := p.threads[tid]
	return t, ok
}

// Threads returns the live thread count.
func (p *Process) Threads() int { return len(p.threads) }

// EachThread visits every thread in ascending TID order. Scheduling
// decisions iterate here, so the order must not depend on map layout.
func (p *Process) EachThread(fn func(*Thread)) {
	for tid := types.TID(1); tid < p.nextTID; tid++ {
		if t, ok := p.threads[tid]; ok {
			fn(t)
		}
	}
}
