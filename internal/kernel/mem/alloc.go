package mem

import (
	"sync"

	"github.com/emberos/kernel/internal/shared/types"
)

// Allocator manages the simulated physical slab. Frames are handed out in
// contiguous runs so a transferable range stays addressable as one slice of
// the backing store.
type Allocator struct {
	mu    sync.Mutex
	slab  []byte
	owner []types.PID // frame index -> owning process, 0 = free
}

// NewAllocator creates an allocator backed by the given number of frames.
func NewAllocator(frames int) *Allocator {
	return &Allocator{
		slab:  make([]byte, frames*PageSize),
		owner: make([]types.PID, frames),
	}
}

// AllocRun claims n contiguous frames for owner. Fails with OutOfMemory when
// no run of that length is free.
func (a *Allocator) AllocRun(n int, owner types.PID) (Frame, error) {
	if n <= 0 || owner == 0 {
		return 0, types.ErrInternal
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	run := 0
	for i := range a.owner {
		if a.owner[i] != 0 {
			run = 0
			continue
		}
		run++
		if run == n {
			start := i - n + 1
			for j := start; j <= i; j++ {
				a.owner[j] = owner
			}
			return Frame(start), nil
		}
	}
	return 0, types.ErrOutOfMemory
}

// FreeFrame releases a single frame. The caller must be the current owner.
func (a *Allocator) FreeFrame(f Frame, owner types.PID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(f) >= len(a.owner) {
		return types.ErrBadAddress
	}
	if a.owner[f] != owner {
		return types.ErrAccessDenied
	}
	a.owner[f] = 0
	clear(a.slab[f.Addr() : f.Addr()+PageSize])
	return nil
}

// Transfer reassigns ownership of n frames starting at f. This is the atomic
// owner flip behind a Move: there is no window where both processes hold the
// frames.
func (a *Allocator) Transfer(f Frame, n int, from, to types.PID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(f)+n > len(a.owner) {
		return types.ErrBadAddress
	}
	for i := 0; i < n; i++ {
		if a.owner[int(f)+i] != from {
			return types.ErrAccessDenied
		}
	}
	for i := 0; i < n; i++ {
		a.owner[int(f)+i] = to
	}
	return nil
}

// Owner returns the owner of a frame, or 0 if free or out of range.
func (a *Allocator) Owner(f Frame) types.PID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(f) >= len(a.owner) {
		return 0
	}
	return a.owner[f]
}

// Bytes returns the backing slice for n frames starting at f. Both sides of
// a borrow alias the same slice, which is what makes the protocol zero-copy.
func (a *Allocator) Bytes(f Frame, n int) []byte {
	return a.slab[f.Addr() : f.Addr()+Addr(n*PageSize) : f.Addr()+Addr(n*PageSize)]
}

// InUse returns the number of allocated frames.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, o := range a.owner {
		if o != 0 {
			n++
		}
	}
	return n
}

// Total returns the slab capacity in frames.
func (a *Allocator) Total() int { return len(a.owner) }
