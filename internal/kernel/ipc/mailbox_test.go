package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/shared/types"
)

func memRange() mem.Range {
	return mem.Range{Addr: mem.SlotBase, Size: mem.PageSize}
}

func env(pid types.PID, seq uint64) Envelope {
	return Envelope{
		Sender: Sender{PID: pid, TID: 1, Seq: seq},
		Body:   NewScalar(seq, 0, 0, 0, 0),
	}
}

func TestMailboxQueueFIFO(t *testing.T) {
	b := NewMailbox()

	for i := uint64(1); i <= 3; i++ {
		_, direct := b.Deliver(env(2, i))
		assert.False(t, direct)
	}
	assert.Equal(t, 3, b.Depth())

	for i := uint64(1); i <= 3; i++ {
		got, ok := b.Next(Waiter{PID: 3, TID: 1})
		require.True(t, ok)
		assert.Equal(t, i, got.Sender.Seq)
	}
}

func TestMailboxWaitersFIFO(t *testing.T) {
	b := NewMailbox()

	// Three receivers block before anything arrives.
	for tid := types.TID(1); tid <= 3; tid++ {
		_, ok := b.Next(Waiter{PID: 3, TID: tid})
		require.False(t, ok)
	}
	assert.Equal(t, 3, b.Waiting())

	// Deliveries wake them strictly first-blocked-first.
	for tid := types.TID(1); tid <= 3; tid++ {
		w, direct := b.Deliver(env(2, uint64(tid)))
		require.True(t, direct)
		assert.Equal(t, tid, w.TID)
	}
	assert.Equal(t, 0, b.Waiting())
	assert.Equal(t, 0, b.Depth())
}

func TestMailboxTakeExactlyOnce(t *testing.T) {
	b := NewMailbox()
	s := Sender{PID: 2, TID: 1, Seq: 7}
	b.Track(s, Inflight{Receiver: 3})

	inf, err := b.Take(s)
	require.NoError(t, err)
	assert.Equal(t, types.PID(3), inf.Receiver)

	_, err = b.Take(s)
	assert.ErrorIs(t, err, types.ErrProcessNotFound)
}

func TestMailboxSendersDistinctBySeq(t *testing.T) {
	// The same thread blocking twice produces distinct inflight keys.
	b := NewMailbox()
	b.Track(Sender{PID: 2, TID: 1, Seq: 1}, Inflight{})
	b.Track(Sender{PID: 2, TID: 1, Seq: 2}, Inflight{})
	assert.Equal(t, 2, b.Pending())
}

func TestMailboxDrain(t *testing.T) {
	b := NewMailbox()
	b.Deliver(env(2, 1))
	b.Track(Sender{PID: 2, TID: 1, Seq: 2}, Inflight{Receiver: 3})

	q, infs, w := b.Drain()
	assert.Len(t, q, 1)
	assert.Len(t, infs, 1)
	assert.Empty(t, w)

	assert.Equal(t, 0, b.Depth())
	assert.Equal(t, 0, b.Pending())

	// Drained mailbox still works for reuse during teardown races.
	_, err := b.Take(Sender{PID: 2, TID: 1, Seq: 2})
	assert.ErrorIs(t, err, types.ErrProcessNotFound)
}

func TestMessageKinds(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		blocking bool
		memory   bool
		writable bool
	}{
		{"scalar", NewScalar(1, 0, 0, 0, 0), false, false, false},
		{"blocking scalar", NewBlockingScalar(1, 0, 0, 0, 0), true, false, false},
		{"move", NewMove(1, memRange(), 0, 0), false, true, true},
		{"borrow", NewBorrow(1, memRange(), 0, 0), true, true, false},
		{"mutable borrow", NewMutableBorrow(1, memRange(), 0, 0), true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Kind.Blocking(); got != tt.blocking {
				t.Errorf("Blocking() = %v, want %v", got, tt.blocking)
			}
			if got := tt.msg.Kind.Memory(); got != tt.memory {
				t.Errorf("Memory() = %v, want %v", got, tt.memory)
			}
			if got := tt.msg.Kind.Writable(); got != tt.writable {
				t.Errorf("Writable() = %v, want %v", got, tt.writable)
			}
		})
	}
}
