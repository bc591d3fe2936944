package mem

import (
	"github.com/emberos/kernel/internal/shared/types"
)

type mapping struct {
	frame Frame
	flags Flags
}

// Space is one process's address space: virtual page -> frame + permissions,
// plus the heap extent. Not internally synchronized; the kernel serializes
// access.
type Space struct {
	pid   types.PID
	alloc *Allocator
	pages map[Addr]mapping

	heapSize uint64
	heapMax  uint64

	slot Addr // cursor for kernel-assigned delivery slots
}

// NewSpace creates an empty address space with the given heap ceiling.
func NewSpace(pid types.PID, alloc *Allocator, heapMax uint64) *Space {
	if heapMax == 0 {
		heapMax = DefaultHeapMax
	}
	return &Space{
		pid:     pid,
		alloc:   alloc,
		pages:   make(map[Addr]mapping),
		heapMax: heapMax,
		slot:    SlotBase,
	}
}

// PID returns the owning process.
func (s *Space) PID() types.PID { return s.pid }

// HeapSize returns the current heap extent in bytes.
func (s *Space) HeapSize() uint64 { return s.heapSize }

// HeapMax returns the configured heap ceiling.
func (s *Space) HeapMax() uint64 { return s.heapMax }

// Mapped returns the number of mapped pages.
func (s *Space) Mapped() int { return len(s.pages) }

// MapPhysical maps size bytes at virt. A zero phys allocates fresh frames
// owned by this process; a nonzero phys maps the named frames directly and
// is restricted to the kernel process. A zero virt picks a kernel-assigned
// slot.
func (s *Space) MapPhysical(phys, virt Addr, size uint64, flags Flags) (Range, error) {
	if !phys.Aligned() || !virt.Aligned() || size == 0 || size%PageSize != 0 {
		return Range{}, types.ErrBadAlignment
	}
	if virt != 0 && virt < KernelBase && s.pid != types.KernelPID {
		return Range{}, types.ErrBadAddress
	}
	if phys != 0 && s.pid != types.KernelPID {
		return Range{}, types.ErrBadAddress
	}

	n := int(size / PageSize)
	var frame Frame
	if phys == 0 {
		f, err := s.alloc.AllocRun(n, s.pid)
		if err != nil {
			return Range{}, err
		}
		frame = f
	} else {
		frame = Frame(phys / PageSize)
	}

	r, err := s.insert(frame, n, virt, flags)
	if err != nil && phys == 0 {
		for i := 0; i < n; i++ {
			s.alloc.FreeFrame(frame+Frame(i), s.pid)
		}
	}
	return r, err
}

// IncreaseHeap grows the heap by delta bytes. Rejected with OutOfMemory when
// the configured ceiling would be exceeded. Returns the full heap range.
func (s *Space) IncreaseHeap(delta uint64, flags Flags) (Range, error) {
	if delta == 0 || delta%PageSize != 0 {
		return Range{}, types.ErrBadAlignment
	}
	if s.heapSize+delta > s.heapMax {
		return Range{}, types.ErrOutOfMemory
	}

	n := int(delta / PageSize)
	frame, err := s.alloc.AllocRun(n, s.pid)
	if err != nil {
		return Range{}, err
	}
	if _, err := s.insert(frame, n, HeapBase+Addr(s.heapSize), flags); err != nil {
		for i := 0; i < n; i++ {
			s.alloc.FreeFrame(frame+Frame(i), s.pid)
		}
		return Range{}, err
	}
	s.heapSize += delta
	return Range{Addr: HeapBase, Size: s.heapSize}, nil
}

// DecreaseHeap shrinks the heap by delta bytes, unmapping and freeing the
// tail pages one at a time.
func (s *Space) DecreaseHeap(delta uint64) (Range, error) {
	if delta == 0 || delta%PageSize != 0 {
		return Range{}, types.ErrBadAlignment
	}
	if delta > s.heapSize {
		return Range{}, types.ErrBadAddress
	}
	for delta > 0 {
		s.heapSize -= PageSize
		delta -= PageSize
		page := HeapBase + Addr(s.heapSize)
		m, ok := s.pages[page]
		if !ok {
			return Range{}, types.ErrBadAddress
		}
		delete(s.pages, page)
		if err := s.alloc.FreeFrame(m.frame, s.pid); err != nil {
			return Range{}, err
		}
	}
	return Range{Addr: HeapBase, Size: s.heapSize}, nil
}

// MapFrames maps n existing frames starting at f into this space at a
// kernel-assigned slot. Used for message delivery; ownership is not touched.
func (s *Space) MapFrames(f Frame, n int, flags Flags) (Range, error) {
	return s.insert(f, n, 0, flags)
}

// Unmap removes the mappings for a range without freeing frames.
func (s *Space) Unmap(r Range) error {
	if !r.Aligned() {
		return types.ErrBadAlignment
	}
	for a := r.Addr; a < r.End(); a += PageSize {
		if _, ok := s.pages[a]; !ok {
			return types.ErrBadAddress
		}
	}
	for a := r.Addr; a < r.End(); a += PageSize {
		delete(s.pages, a)
	}
	return nil
}

// Release unmaps a range and frees the underlying frames.
func (s *Space) Release(r Range) error {
	f, n, err := s.FramesOf(r)
	if err != nil {
		return err
	}
	if err := s.Unmap(r); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := s.alloc.FreeFrame(f+Frame(i), s.pid); err != nil {
			return err
		}
	}
	return nil
}

// FramesOf resolves a mapped range to its backing frame run. Fails with
// BadAddress when any page is unmapped or the frames are not contiguous.
func (s *Space) FramesOf(r Range) (Frame, int, error) {
	if !r.Aligned() {
		return 0, 0, types.ErrBadAlignment
	}
	if r.Size == 0 {
		return 0, 0, types.ErrBadAddress
	}
	first, ok := s.pages[r.Addr]
	if !ok {
		return 0, 0, types.ErrBadAddress
	}
	n := r.Pages()
	for i := 1; i < n; i++ {
		m, ok := s.pages[r.Addr+Addr(i*PageSize)]
		if !ok || m.frame != first.frame+Frame(i) {
			return 0, 0, types.ErrBadAddress
		}
	}
	return first.frame, n, nil
}

// Resolve returns the backing bytes for a mapped range, enforcing write
// permission. Once a mapping is removed the range resolves to BadAddress,
// which is how a revoked borrow becomes inaccessible.
func (s *Space) Resolve(r Range, write bool) ([]byte, error) {
	f, n, err := s.FramesOf(r)
	if err != nil {
		return nil, err
	}
	if write {
		for i := 0; i < n; i++ {
			if s.pages[r.Addr+Addr(i*PageSize)].flags&FlagWrite == 0 {
				return nil, types.ErrAccessDenied
			}
		}
	}
	return s.alloc.Bytes(f, n), nil
}

// ReleaseAll frees every frame this process owns and clears the space. Used
// at process termination.
func (s *Space) ReleaseAll() {
	for a, m := range s.pages {
		delete(s.pages, a)
		// Frames mapped here but owned elsewhere (inbound borrows) are
		// left to their owner.
		s.alloc.FreeFrame(m.frame, s.pid)
	}
	s.heapSize = 0
}

func (s *Space) insert(f Frame, n int, virt Addr, flags Flags) (Range, error) {
	if flags == 0 {
		flags = FlagRead
	}
	base := virt
	if base == 0 {
		base = s.slot
	}
	for i := 0; i < n; i++ {
		if _, taken := s.pages[base+Addr(i*PageSize)]; taken {
			return Range{}, types.ErrBadAddress
		}
	}
	for i := 0; i < n; i++ {
		s.pages[base+Addr(i*PageSize)] = mapping{frame: f + Frame(i), flags: flags}
	}
	if virt == 0 {
		s.slot = base + Addr(n*PageSize)
	}
	return Range{Addr: base, Size: uint64(n) * PageSize}, nil
}
