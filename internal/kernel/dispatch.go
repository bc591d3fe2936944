package kernel

import (
	"time"

	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/kernel/syscall"
	"github.com/emberos/kernel/internal/shared/types"
)

// Syscall validates and executes one kernel call on behalf of pid/tid. It
// may block the calling goroutine: blocking sends, receives on an empty
// mailbox, and the scheduling calls all suspend here until another process
// hands control back. No failure is silent; every malformed request comes
// back as a typed error result.
func (k *Kernel) Syscall(pid types.PID, tid types.TID, call syscall.Call) ipc.Result {
	start := time.Now()

	k.mu.Lock()
	p, t, kerr := k.caller(pid, tid)
	if kerr != nil {
		k.mu.Unlock()
		k.metrics.RecordSyscall(call.Name(), "error")
		return ipc.Errorf(kerr)
	}
	if t.Parked {
		// A thread cannot issue a second syscall while suspended.
		k.mu.Unlock()
		k.metrics.RecordSyscall(call.Name(), "error")
		return ipc.Errorf(types.ErrInternal)
	}
	p.State = proc.StateRunning

	r := k.dispatch(p, t, call)
	k.mu.Unlock()

	outcome := "ok"
	if r.Kind == ipc.ResultError {
		outcome = "error"
	}
	k.metrics.RecordSyscall(call.Name(), outcome)
	if k.metrics != nil {
		k.metrics.SyscallDuration.WithLabelValues(call.Name()).Observe(time.Since(start).Seconds())
	}
	return r
}

// dispatch runs under the kernel lock. Handlers that block release it via
// k.block and reacquire before returning.
func (k *Kernel) dispatch(p *proc.Process, t *proc.Thread, call syscall.Call) ipc.Result {
	switch c := call.(type) {
	case syscall.MapPhysical:
		return k.mapPhysical(p, c)
	case syscall.ReleaseMemory:
		return k.releaseMemory(p, c)
	case syscall.IncreaseHeap:
		return k.increaseHeap(p, c)
	case syscall.DecreaseHeap:
		return k.decreaseHeap(p, c)
	case syscall.Yield:
		return k.yield(p, t)
	case syscall.WaitEvent:
		return k.waitEvent(p, t)
	case syscall.SwitchTo:
		return k.switchTo(p, t, c)
	case syscall.ClaimInterrupt:
		return k.claimInterrupt(p, c)
	case syscall.CreateServer:
		return k.createServer(p, c)
	case syscall.DestroyServer:
		return k.destroyServer(p, c)
	case syscall.Connect:
		return k.connect(p, c)
	case syscall.Disconnect:
		return k.disconnect(p, c)
	case syscall.SendMessage:
		return k.sendMessage(p, t, c)
	case syscall.ReceiveMessage:
		return k.receiveMessage(p, t, c)
	case syscall.ReturnScalar:
		return k.returnScalar(p, c)
	case syscall.ReturnMemory:
		return k.returnMemory(p, c)
	case syscall.TerminateProcess:
		return k.terminate(p)
	default:
		return ipc.Errorf(types.ErrUnhandledSyscall)
	}
}
