package kernel

import (
	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/kernel/syscall"
	"github.com/emberos/kernel/internal/shared/types"
)

// yield hands control to the parent. The caller goes Ready; if the parent
// is parked in SwitchTo on this process it resumes. With no parent waiting
// there is nobody to hand control to and the caller continues.
func (k *Kernel) yield(p *proc.Process, t *proc.Thread) ipc.Result {
	ref, waiting := k.switchWaiters[p.PID]
	if !waiting {
		return ipc.Resume()
	}
	delete(k.switchWaiters, p.PID)
	k.sched.MakeReady(p)
	k.wakeRef(ref, ipc.Resume())
	return k.block(p, t, proc.StateReady)
}

// waitEvent puts the caller to sleep until a message is delivered to one of
// its servers or a claimed interrupt fires. The parent resumes if it was
// parked in SwitchTo.
func (k *Kernel) waitEvent(p *proc.Process, t *proc.Thread) ipc.Result {
	if _, taken := k.eventWaiters[p.PID]; taken {
		// One sleeper per process; a second would silently displace
		// the first and strand it.
		return ipc.Errorf(types.ErrAccessDenied)
	}
	if irqs := k.pendingIRQs[p.PID]; len(irqs) > 0 {
		irq := irqs[0]
		k.pendingIRQs[p.PID] = irqs[1:]
		claim := k.irqs[irq]
		return ipc.Scalar2(uint64(irq), claim.arg)
	}

	k.eventWaiters[p.PID] = waiterRef{pid: p.PID, tid: t.TID}
	if ref, waiting := k.switchWaiters[p.PID]; waiting {
		delete(k.switchWaiters, p.PID)
		k.wakeRef(ref, ipc.Resume())
	}
	return k.block(p, t, proc.StateSleeping)
}

// switchTo resumes a specific child process and parks the caller until the
// child yields or sleeps. A nonzero TID names the exact thread to resume;
// otherwise the lowest-numbered parked thread runs.
func (k *Kernel) switchTo(p *proc.Process, t *proc.Thread, c syscall.SwitchTo) ipc.Result {
	target, ok := k.procs[c.PID]
	if !ok || target.State == proc.StateTerminated {
		return ipc.Errorf(types.ErrProcessNotFound)
	}
	if target.Parent != p.PID && p.PID != types.KernelPID {
		return ipc.Errorf(types.ErrAccessDenied)
	}
	if _, taken := k.switchWaiters[c.PID]; taken {
		return ipc.Errorf(types.ErrAccessDenied)
	}
	var pick *proc.Thread
	if c.TID != 0 {
		ct, ok := target.Thread(c.TID)
		if !ok {
			return ipc.Errorf(types.ErrProcessNotFound)
		}
		pick = ct
	}

	k.switchWaiters[c.PID] = waiterRef{pid: p.PID, tid: t.TID}
	k.sched.Remove(c.PID)

	// A child thread parked in a previous Yield resumes now; otherwise
	// the child is already runnable and the bookkeeping alone records
	// the handoff.
	woken := false
	if pick != nil {
		if pick.Parked && target.State == proc.StateReady {
			woken = true
			k.wake(target, pick, ipc.Resume())
		}
	} else {
		target.EachThread(func(ct *proc.Thread) {
			if !woken && ct.Parked && target.State == proc.StateReady {
				woken = true
				k.wake(target, ct, ipc.Resume())
			}
		})
	}
	if !woken {
		k.sched.SetCurrent(target)
	}
	return k.block(p, t, proc.StateReady)
}

func (k *Kernel) claimInterrupt(p *proc.Process, c syscall.ClaimInterrupt) ipc.Result {
	if claim, taken := k.irqs[c.IRQ]; taken && claim.pid != p.PID {
		return ipc.Errorf(types.ErrAccessDenied)
	}
	k.irqs[c.IRQ] = irqClaim{pid: p.PID, arg: c.Arg}
	return ipc.Ok()
}

// TriggerInterrupt simulates an interrupt line firing. The claiming process
// is woken out of WaitEvent with Scalar2(irq, arg), or the event is held
// until its next WaitEvent.
func (k *Kernel) TriggerInterrupt(irq uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	claim, ok := k.irqs[irq]
	if !ok {
		return types.ErrAccessDenied
	}
	if ref, waiting := k.eventWaiters[claim.pid]; waiting {
		delete(k.eventWaiters, claim.pid)
		k.wakeRef(ref, ipc.Scalar2(uint64(irq), claim.arg))
		return nil
	}
	k.pendingIRQs[claim.pid] = append(k.pendingIRQs[claim.pid], irq)
	return nil
}

// terminate ends the calling process: its servers fail their peers, its
// frames return to the allocator, and any of its threads parked elsewhere
// will find their process gone when woken.
func (k *Kernel) terminate(p *proc.Process) ipc.Result {
	for _, srv := range k.servers {
		if srv.owner == p.PID {
			k.teardownServer(srv)
		}
	}

	table := k.conns[p.PID]
	k.metrics.AddConnections(-len(table.byCID))
	table.byCID = make(map[types.CID]cap.SID)

	if ref, waiting := k.switchWaiters[p.PID]; waiting {
		delete(k.switchWaiters, p.PID)
		k.wakeRef(ref, ipc.Errorf(types.ErrProcessNotFound))
	}
	delete(k.eventWaiters, p.PID)
	delete(k.pendingIRQs, p.PID)
	k.sched.Remove(p.PID)

	p.Space.ReleaseAll()
	p.State = proc.StateTerminated
	k.metrics.AddProcesses(-1)
	k.metrics.SetFramesInUse(k.alloc.InUse())
	k.log.Info("process terminated", zap.Uint8("pid", uint8(p.PID)), zap.String("name", p.Name))
	return ipc.Ok()
}
