// Package kernel ties the subsystems together: the process table, the frame
// allocator, server mailboxes, and the cooperative scheduler. All state is
// guarded by one lock; blocking syscalls park the calling goroutine on its
// thread's resume channel and are woken by message delivery or reply, which
// is what makes the scheduler rendezvous-driven.
package kernel

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/infrastructure/monitoring"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/kernel/sched"
	"github.com/emberos/kernel/internal/shared/types"
)

// Config sizes a kernel instance.
type Config struct {
	Frames         int
	DefaultHeapMax uint64
}

type server struct {
	sid   cap.SID
	owner types.PID
	name  string // empty for random SIDs
	box   *ipc.Mailbox
}

type connTable struct {
	next  types.CID
	byCID map[types.CID]cap.SID
}

type irqClaim struct {
	pid types.PID
	arg uint64
}

// Kernel is one microkernel instance.
type Kernel struct {
	mu    sync.Mutex
	alloc *mem.Allocator
	sched *sched.Scheduler

	procs   map[types.PID]*proc.Process
	nextPID types.PID

	servers map[cap.SID]*server
	names   map[string]cap.SID
	conns   map[types.PID]*connTable

	// pendingReplies routes a reply's sender token back to the mailbox
	// tracking it.
	pendingReplies map[ipc.Sender]*server

	// switchWaiters holds, per child PID, the parent thread parked in
	// SwitchTo; eventWaiters holds, per PID, the thread parked in
	// WaitEvent.
	switchWaiters map[types.PID]waiterRef
	eventWaiters  map[types.PID]waiterRef

	irqs        map[uint32]irqClaim
	pendingIRQs map[types.PID][]uint32

	// lent counts live borrow mappings per frame; a lent frame cannot be
	// moved or freed until the borrow unwinds.
	lent map[mem.Frame]int

	seq            uint64
	defaultHeapMax uint64
	start          time.Time

	log     *logging.Logger
	metrics *monitoring.Metrics
}

type waiterRef struct {
	pid types.PID
	tid types.TID
}

// New creates a kernel and its distinguished PID-1 process.
func New(cfg Config, log *logging.Logger) *Kernel {
	if cfg.Frames == 0 {
		cfg.Frames = 4096
	}
	if cfg.DefaultHeapMax == 0 {
		cfg.DefaultHeapMax = mem.DefaultHeapMax
	}
	if log == nil {
		log = logging.NewNop()
	}

	k := &Kernel{
		alloc:          mem.NewAllocator(cfg.Frames),
		sched:          sched.New(),
		procs:          make(map[types.PID]*proc.Process),
		nextPID:        types.KernelPID,
		servers:        make(map[cap.SID]*server),
		names:          make(map[string]cap.SID),
		conns:          make(map[types.PID]*connTable),
		pendingReplies: make(map[ipc.Sender]*server),
		switchWaiters:  make(map[types.PID]waiterRef),
		eventWaiters:   make(map[types.PID]waiterRef),
		irqs:           make(map[uint32]irqClaim),
		pendingIRQs:    make(map[types.PID][]uint32),
		lent:           make(map[mem.Frame]int),
		defaultHeapMax: cfg.DefaultHeapMax,
		start:          time.Now(),
		log:            log.Named("kernel"),
	}
	k.mu.Lock()
	k.createProcessLocked("kernel", 0, cfg.DefaultHeapMax)
	k.mu.Unlock()
	return k
}

// WithMetrics attaches a metrics collector.
func (k *Kernel) WithMetrics(m *monitoring.Metrics) *Kernel {
	k.metrics = m
	return k
}

// CreateProcess registers a new process under the given parent. The loader
// calls this once per statically configured service.
func (k *Kernel) CreateProcess(name string, parent types.PID, heapMax uint64) (types.PID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if parent != 0 {
		if _, ok := k.procs[parent]; !ok {
			return 0, types.ErrProcessNotFound
		}
	}
	p := k.createProcessLocked(name, parent, heapMax)
	k.log.Info("process created",
		zap.String("name", name),
		zap.Uint8("pid", uint8(p.PID)),
		zap.Uint8("parent", uint8(parent)))
	return p.PID, nil
}

func (k *Kernel) createProcessLocked(name string, parent types.PID, heapMax uint64) *proc.Process {
	if heapMax == 0 {
		heapMax = k.defaultHeapMax
	}
	pid := k.nextPID
	k.nextPID++
	p := proc.New(pid, name, parent, mem.NewSpace(pid, k.alloc, heapMax))
	k.procs[pid] = p
	k.conns[pid] = &connTable{next: 2, byCID: make(map[types.CID]cap.SID)}
	k.metrics.AddProcesses(1)
	return p
}

// SpawnThread registers a new thread in a process. Each goroutine acting as
// a hardware thread needs its own TID for blocking to work.
func (k *Kernel) SpawnThread(pid types.PID) (types.TID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.procs[pid]
	if !ok || p.State == proc.StateTerminated {
		return 0, types.ErrProcessNotFound
	}
	return p.SpawnThread().TID, nil
}

// Uptime returns time since the kernel was created.
func (k *Kernel) Uptime() time.Duration { return time.Since(k.start) }

// caller resolves pid/tid to live table entries.
func (k *Kernel) caller(pid types.PID, tid types.TID) (*proc.Process, *proc.Thread, *types.Error) {
	p, ok := k.procs[pid]
	if !ok || p.State == proc.StateTerminated {
		return nil, nil, types.ErrProcessNotFound
	}
	t, ok := p.Thread(tid)
	if !ok {
		return nil, nil, types.ErrProcessNotFound
	}
	return p, t, nil
}

// block parks the calling thread in the given state and waits for its
// result. The kernel lock is dropped while parked.
func (k *Kernel) block(p *proc.Process, t *proc.Thread, st proc.State) ipc.Result {
	p.State = st
	k.sched.Park(t)
	k.mu.Unlock()
	r := <-t.Resume
	k.mu.Lock()
	return r
}

// wake hands a result to a parked thread and marks its process running.
func (k *Kernel) wake(p *proc.Process, t *proc.Thread, r ipc.Result) {
	if p.State != proc.StateTerminated {
		k.sched.SetCurrent(p)
	}
	k.sched.Wake(t, r)
}

// kerrOf narrows a subsystem error to its kernel kind.
func kerrOf(err error) *types.Error {
	if e, ok := err.(*types.Error); ok {
		return e
	}
	return types.ErrInternal
}

// wakeRef resolves a waiter reference and wakes it, dropping stale refs.
func (k *Kernel) wakeRef(ref waiterRef, r ipc.Result) {
	p, ok := k.procs[ref.pid]
	if !ok {
		return
	}
	t, ok := p.Thread(ref.tid)
	if !ok || !t.Parked {
		return
	}
	k.wake(p, t, r)
}
