package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberos/kernel/internal/shared/types"
)

func TestPageRound(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		want uint64
	}{
		{"zero", 0, 0},
		{"one byte", 1, PageSize},
		{"exact page", PageSize, PageSize},
		{"page plus one", PageSize + 1, 2 * PageSize},
		{"large", 5*PageSize - 1, 5 * PageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PageRound(tt.in); got != tt.want {
				t.Errorf("PageRound(%#x) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestRangeAligned(t *testing.T) {
	assert.True(t, Range{Addr: 0x2000_0000, Size: PageSize}.Aligned())
	assert.False(t, Range{Addr: 0x2000_0001, Size: PageSize}.Aligned())
	assert.False(t, Range{Addr: 0x2000_0000, Size: PageSize - 1}.Aligned())
}

func TestAllocator(t *testing.T) {
	t.Run("runs are contiguous", func(t *testing.T) {
		a := NewAllocator(8)
		f, err := a.AllocRun(3, 2)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			assert.Equal(t, types.PID(2), a.Owner(f+Frame(i)))
		}
		assert.Equal(t, 3, a.InUse())
	})

	t.Run("exhaustion", func(t *testing.T) {
		a := NewAllocator(4)
		_, err := a.AllocRun(4, 2)
		require.NoError(t, err)
		_, err = a.AllocRun(1, 2)
		assert.ErrorIs(t, err, types.ErrOutOfMemory)
	})

	t.Run("fragmented slab rejects long run", func(t *testing.T) {
		a := NewAllocator(8)
		first, err := a.AllocRun(3, 2)
		require.NoError(t, err)
		_, err = a.AllocRun(3, 3)
		require.NoError(t, err)

		// Free the first run: the largest hole is now 3 frames.
		for i := 0; i < 3; i++ {
			require.NoError(t, a.FreeFrame(first+Frame(i), 2))
		}
		_, err = a.AllocRun(4, 2)
		assert.ErrorIs(t, err, types.ErrOutOfMemory)
		_, err = a.AllocRun(3, 2)
		assert.NoError(t, err)
	})

	t.Run("free requires ownership", func(t *testing.T) {
		a := NewAllocator(4)
		f, err := a.AllocRun(1, 2)
		require.NoError(t, err)
		assert.ErrorIs(t, a.FreeFrame(f, 3), types.ErrAccessDenied)
		assert.NoError(t, a.FreeFrame(f, 2))
	})

	t.Run("free clears page contents", func(t *testing.T) {
		a := NewAllocator(4)
		f, err := a.AllocRun(1, 2)
		require.NoError(t, err)
		copy(a.Bytes(f, 1), "secret")
		require.NoError(t, a.FreeFrame(f, 2))

		f2, err := a.AllocRun(1, 3)
		require.NoError(t, err)
		require.Equal(t, f, f2)
		assert.Equal(t, make([]byte, PageSize), a.Bytes(f2, 1))
	})

	t.Run("transfer flips ownership atomically", func(t *testing.T) {
		a := NewAllocator(4)
		f, err := a.AllocRun(2, 2)
		require.NoError(t, err)

		require.NoError(t, a.Transfer(f, 2, 2, 3))
		assert.Equal(t, types.PID(3), a.Owner(f))
		assert.Equal(t, types.PID(3), a.Owner(f+1))

		// Old owner can no longer free.
		assert.ErrorIs(t, a.FreeFrame(f, 2), types.ErrAccessDenied)
		// A second transfer from the old owner fails outright.
		assert.ErrorIs(t, a.Transfer(f, 2, 2, 4), types.ErrAccessDenied)
	})
}

func TestSpaceMapPhysical(t *testing.T) {
	a := NewAllocator(16)

	t.Run("alignment", func(t *testing.T) {
		s := NewSpace(2, a, 0)
		_, err := s.MapPhysical(0, 0, PageSize+1, FlagRead)
		assert.ErrorIs(t, err, types.ErrBadAlignment)
		_, err = s.MapPhysical(0, 0x2000_0001, PageSize, FlagRead)
		assert.ErrorIs(t, err, types.ErrBadAlignment)
		_, err = s.MapPhysical(0, 0, 0, FlagRead)
		assert.ErrorIs(t, err, types.ErrBadAlignment)
	})

	t.Run("fresh allocation at slot", func(t *testing.T) {
		s := NewSpace(2, a, 0)
		r, err := s.MapPhysical(0, 0, 2*PageSize, FlagRead|FlagWrite)
		require.NoError(t, err)
		assert.True(t, r.Aligned())
		assert.Equal(t, 2, r.Pages())
		assert.GreaterOrEqual(t, uint64(r.Addr), uint64(SlotBase))
	})

	t.Run("named physical is kernel-only", func(t *testing.T) {
		s := NewSpace(2, a, 0)
		_, err := s.MapPhysical(PageSize, 0, PageSize, FlagRead)
		assert.ErrorIs(t, err, types.ErrBadAddress)
	})

	t.Run("low virtual addresses are kernel-only", func(t *testing.T) {
		s := NewSpace(2, a, 0)
		_, err := s.MapPhysical(0, 0x1000, PageSize, FlagRead)
		assert.ErrorIs(t, err, types.ErrBadAddress)

		ks := NewSpace(types.KernelPID, a, 0)
		_, err = ks.MapPhysical(0, 0x1000, PageSize, FlagRead)
		assert.NoError(t, err)
	})
}

func TestSpaceHeap(t *testing.T) {
	t.Run("grow shrink grow", func(t *testing.T) {
		a := NewAllocator(16)
		s := NewSpace(2, a, 0x10000)

		r, err := s.IncreaseHeap(0x2000, FlagRead|FlagWrite)
		require.NoError(t, err)
		assert.Equal(t, Addr(HeapBase), r.Addr)
		assert.Equal(t, uint64(0x2000), r.Size)

		r, err = s.DecreaseHeap(0x1000)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x1000), r.Size)

		r, err = s.IncreaseHeap(0x3000, FlagRead|FlagWrite)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x4000), r.Size)
		assert.Equal(t, uint64(0x4000), s.HeapSize())
	})

	t.Run("ceiling", func(t *testing.T) {
		a := NewAllocator(16)
		s := NewSpace(2, a, 0x2000)

		_, err := s.IncreaseHeap(0x3000, FlagRead|FlagWrite)
		assert.ErrorIs(t, err, types.ErrOutOfMemory)

		// The failed grow must not leak frames.
		assert.Equal(t, 0, a.InUse())

		_, err = s.IncreaseHeap(0x2000, FlagRead|FlagWrite)
		assert.NoError(t, err)
		_, err = s.IncreaseHeap(0x1000, FlagRead|FlagWrite)
		assert.ErrorIs(t, err, types.ErrOutOfMemory)
	})

	t.Run("shrink below zero", func(t *testing.T) {
		a := NewAllocator(16)
		s := NewSpace(2, a, 0)
		_, err := s.DecreaseHeap(0x1000)
		assert.ErrorIs(t, err, types.ErrBadAddress)
	})

	t.Run("unaligned delta", func(t *testing.T) {
		a := NewAllocator(16)
		s := NewSpace(2, a, 0)
		_, err := s.IncreaseHeap(0x800, FlagRead)
		assert.ErrorIs(t, err, types.ErrBadAlignment)
		_, err = s.DecreaseHeap(1)
		assert.ErrorIs(t, err, types.ErrBadAlignment)
	})
}

func TestSpaceResolve(t *testing.T) {
	a := NewAllocator(16)
	s := NewSpace(2, a, 0)

	r, err := s.MapPhysical(0, 0, 2*PageSize, FlagRead|FlagWrite)
	require.NoError(t, err)

	t.Run("read and write views alias", func(t *testing.T) {
		w, err := s.Resolve(r, true)
		require.NoError(t, err)
		copy(w, "hello")

		rd, err := s.Resolve(r, false)
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), rd[:5])
	})

	t.Run("write denied on read-only mapping", func(t *testing.T) {
		ro, err := s.MapPhysical(0, 0, PageSize, FlagRead)
		require.NoError(t, err)
		_, err = s.Resolve(ro, true)
		assert.ErrorIs(t, err, types.ErrAccessDenied)
		_, err = s.Resolve(ro, false)
		assert.NoError(t, err)
	})

	t.Run("revoked mapping stops resolving", func(t *testing.T) {
		require.NoError(t, s.Unmap(r))
		_, err := s.Resolve(r, false)
		assert.ErrorIs(t, err, types.ErrBadAddress)
		_, _, err = s.FramesOf(r)
		assert.ErrorIs(t, err, types.ErrBadAddress)
	})
}

func TestSpaceReleaseAll(t *testing.T) {
	a := NewAllocator(16)
	s := NewSpace(2, a, 0)

	_, err := s.IncreaseHeap(0x2000, FlagRead|FlagWrite)
	require.NoError(t, err)
	_, err = s.MapPhysical(0, 0, PageSize, FlagRead|FlagWrite)
	require.NoError(t, err)
	require.Equal(t, 3, a.InUse())

	s.ReleaseAll()
	assert.Equal(t, 0, a.InUse())
	assert.Equal(t, 0, s.Mapped())
	assert.Equal(t, uint64(0), s.HeapSize())
}
