package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/shared/types"
)

func testProc(pid types.PID) *proc.Process {
	return proc.New(pid, "p", types.KernelPID, mem.NewSpace(pid, mem.NewAllocator(4), 0))
}

func TestRunQueueOrder(t *testing.T) {
	s := New()
	assert.Equal(t, types.KernelPID, s.Current())

	a, b := testProc(2), testProc(3)
	s.MakeReady(a)
	s.MakeReady(b)
	s.MakeReady(a) // re-queueing is a no-op
	require.Equal(t, 2, s.QueueLen())

	pid, ok := s.TakeNext()
	require.True(t, ok)
	assert.Equal(t, a.PID, pid)
	pid, ok = s.TakeNext()
	require.True(t, ok)
	assert.Equal(t, b.PID, pid)
	_, ok = s.TakeNext()
	assert.False(t, ok)
}

func TestMakeReadySkipsTerminated(t *testing.T) {
	s := New()
	p := testProc(2)
	p.State = proc.StateTerminated
	s.MakeReady(p)
	assert.Equal(t, 0, s.QueueLen())
	assert.Equal(t, proc.StateTerminated, p.State)
}

func TestRemove(t *testing.T) {
	s := New()
	a, b := testProc(2), testProc(3)
	s.MakeReady(a)
	s.MakeReady(b)
	s.Remove(a.PID)

	pid, ok := s.TakeNext()
	require.True(t, ok)
	assert.Equal(t, b.PID, pid)
}

func TestParkWakeHandoff(t *testing.T) {
	s := New()
	p := testProc(2)
	th := p.SpawnThread()

	s.Park(th)
	assert.True(t, th.Parked)

	// Waking never blocks the waker; the result is buffered for the
	// parked side to collect.
	s.Wake(th, ipc.Scalar1(7))
	assert.False(t, th.Parked)

	r := <-th.Resume
	assert.Equal(t, ipc.ResultScalar1, r.Kind)
	assert.Equal(t, uint64(7), r.Args[0])
}

func TestSetCurrent(t *testing.T) {
	s := New()
	p := testProc(2)
	s.SetCurrent(p)
	assert.Equal(t, p.PID, s.Current())
	assert.Equal(t, proc.StateRunning, p.State)
}
