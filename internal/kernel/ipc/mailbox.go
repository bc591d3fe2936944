package ipc

import (
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/shared/types"
)

// Waiter identifies a thread blocked in receive.
type Waiter struct {
	PID types.PID
	TID types.TID
}

// Inflight records a blocking send awaiting its reply: the sender's view of
// the range, the receiver's temporary mapping, and the backing frames, so
// reply can unwind the mapping before the sender resumes.
type Inflight struct {
	Msg         Message
	SenderBuf   mem.Range
	Receiver    types.PID
	ReceiverBuf mem.Range
	Frame       mem.Frame
	Pages       int
}

// Mailbox is one server's delivery state. Arrival order is FIFO per sender
// thread; across senders it is whatever order sends reached the kernel.
// Blocked receivers are served strictly first-blocked-first.
//
// Not internally synchronized; the kernel serializes access.
type Mailbox struct {
	queue    []Envelope
	waiters  []Waiter
	inflight map[Sender]Inflight
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{inflight: make(map[Sender]Inflight)}
}

// Deliver hands an envelope to the oldest blocked receiver, or queues it
// when nobody is waiting. Returns the receiver to wake and whether delivery
// was direct.
func (b *Mailbox) Deliver(env Envelope) (Waiter, bool) {
	if len(b.waiters) > 0 {
		w := b.waiters[0]
		b.waiters = b.waiters[1:]
		return w, true
	}
	b.queue = append(b.queue, env)
	return Waiter{}, false
}

// Next pops the oldest queued envelope, or registers w as a blocked
// receiver when the mailbox is empty.
func (b *Mailbox) Next(w Waiter) (Envelope, bool) {
	if len(b.queue) > 0 {
		env := b.queue[0]
		b.queue = b.queue[1:]
		return env, true
	}
	b.waiters = append(b.waiters, w)
	return Envelope{}, false
}

// Track registers a blocking send awaiting reply.
func (b *Mailbox) Track(s Sender, inf Inflight) {
	b.inflight[s] = inf
}

// Take consumes the inflight record for a sender. A second Take for the
// same sender fails, which is what makes reply exactly-once.
func (b *Mailbox) Take(s Sender) (Inflight, error) {
	inf, ok := b.inflight[s]
	if !ok {
		return Inflight{}, types.ErrProcessNotFound
	}
	delete(b.inflight, s)
	return inf, nil
}

// Drain empties the mailbox for teardown, returning everything that needs
// unwinding: queued envelopes, unanswered blocking sends, and parked
// receivers.
func (b *Mailbox) Drain() ([]Envelope, map[Sender]Inflight, []Waiter) {
	q, w, infs := b.queue, b.waiters, b.inflight
	b.queue, b.waiters = nil, nil
	b.inflight = make(map[Sender]Inflight)
	return q, infs, w
}

// Depth returns the number of queued envelopes.
func (b *Mailbox) Depth() int { return len(b.queue) }

// Waiting returns the number of blocked receivers.
func (b *Mailbox) Waiting() int { return len(b.waiters) }

// Pending returns the number of unanswered blocking sends.
func (b *Mailbox) Pending() int { return len(b.inflight) }
