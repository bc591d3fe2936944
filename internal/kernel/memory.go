package kernel

import (
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/kernel/syscall"
	"github.com/emberos/kernel/internal/shared/types"
)

func (k *Kernel) mapPhysical(p *proc.Process, c syscall.MapPhysical) ipc.Result {
	r, err := p.Space.MapPhysical(c.Phys, c.Virt, c.Size, c.Flags)
	if err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	k.metrics.SetFramesInUse(k.alloc.InUse())
	return ipc.Result{Kind: ipc.ResultRange, Range: r}
}

func (k *Kernel) releaseMemory(p *proc.Process, c syscall.ReleaseMemory) ipc.Result {
	if !c.Range.Aligned() {
		return ipc.Errorf(types.ErrBadAlignment)
	}
	frame, n, err := p.Space.FramesOf(c.Range)
	if err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	for i := 0; i < n; i++ {
		if k.lent[frame+mem.Frame(i)] > 0 {
			// Cannot free pages currently mapped into a borrower.
			return ipc.Errorf(types.ErrAccessDenied)
		}
	}
	if err := p.Space.Release(c.Range); err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	k.metrics.SetFramesInUse(k.alloc.InUse())
	return ipc.Ok()
}

func (k *Kernel) increaseHeap(p *proc.Process, c syscall.IncreaseHeap) ipc.Result {
	r, err := p.Space.IncreaseHeap(c.Delta, c.Flags)
	if err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	k.metrics.SetFramesInUse(k.alloc.InUse())
	return ipc.Result{Kind: ipc.ResultRange, Range: r}
}

func (k *Kernel) decreaseHeap(p *proc.Process, c syscall.DecreaseHeap) ipc.Result {
	r, err := p.Space.DecreaseHeap(c.Delta)
	if err != nil {
		return ipc.Errorf(kerrOf(err))
	}
	k.metrics.SetFramesInUse(k.alloc.InUse())
	return ipc.Result{Kind: ipc.ResultRange, Range: r}
}

// ResolveRange exposes a process's view of a mapped range. This is the
// simulated equivalent of dereferencing a pointer into the range: once the
// mapping is gone the call fails with BadAddress, so a revoked borrow is
// provably inaccessible.
func (k *Kernel) ResolveRange(pid types.PID, r mem.Range, write bool) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.procs[pid]
	if !ok || p.State == proc.StateTerminated {
		return nil, types.ErrProcessNotFound
	}
	return p.Space.Resolve(r, write)
}
