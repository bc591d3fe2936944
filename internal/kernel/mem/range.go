// Package mem implements the physical frame allocator and per-process
// address spaces the lending protocol operates on. Every frame has exactly
// one owner at any instant; borrows add a temporary second mapping, never a
// second owner.
package mem

// PageSize is the unit of every transferable range.
const PageSize = 0x1000

// Address space layout. Addresses below KernelBase are reserved for the
// kernel process; heaps grow from HeapBase; ranges delivered by the kernel
// (moved or lent pages) land at kernel-assigned slots from SlotBase.
const (
	KernelBase     Addr = 0x0100_0000
	HeapBase       Addr = 0x2000_0000
	SlotBase       Addr = 0x4000_0000
	DefaultHeapMax      = 0x10_0000
)

// Addr is a process-virtual or physical byte address.
type Addr uint64

// Aligned reports whether the address is on a page boundary.
func (a Addr) Aligned() bool { return a%PageSize == 0 }

// Frame indexes a physical page in the backing slab.
type Frame uint32

// Addr returns the physical byte address of the frame.
func (f Frame) Addr() Addr { return Addr(f) * PageSize }

// Flags describe mapping permissions.
type Flags uint8

const (
	FlagRead Flags = 1 << iota
	FlagWrite
)

// Range is a page-aligned (address, size) descriptor, the unit of memory
// that can be moved or lent between processes.
type Range struct {
	Addr Addr
	Size uint64
}

// Aligned reports whether both address and size are page multiples.
func (r Range) Aligned() bool { return r.Addr.Aligned() && r.Size%PageSize == 0 }

// Pages returns the number of pages the range spans.
func (r Range) Pages() int { return int(r.Size / PageSize) }

// End returns the first address past the range.
func (r Range) End() Addr { return r.Addr + Addr(r.Size) }

// PageRound rounds n up to the next page multiple.
func PageRound(n uint64) uint64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}
