package client

import (
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/kernel/syscall"
	"github.com/emberos/kernel/internal/shared/types"
)

// Thread issues syscalls on behalf of one goroutine. Blocking calls park
// exactly this thread; other threads of the process keep running.
type Thread struct {
	c   *Client
	tid types.TID
}

// TID returns the kernel thread id.
func (t *Thread) TID() types.TID { return t.tid }

// Client returns the owning process client.
func (t *Thread) Client() *Client { return t.c }

func (t *Thread) call(c syscall.Call) ipc.Result {
	return t.c.k.Syscall(t.c.pid, t.tid, c)
}

// Scalar sends a fire-and-forget scalar message.
func (t *Thread) Scalar(cid types.CID, id, a1, a2, a3, a4 uint64) error {
	if cid == types.NoCID {
		return types.ErrUseBeforeInit
	}
	return t.call(syscall.SendMessage{CID: cid, Msg: ipc.NewScalar(id, a1, a2, a3, a4)}).AsError()
}

// BlockingScalar sends a scalar message and suspends until the receiver
// replies, returning the reply words.
func (t *Thread) BlockingScalar(cid types.CID, id, a1, a2, a3, a4 uint64) ([]uint64, error) {
	if cid == types.NoCID {
		return nil, types.ErrUseBeforeInit
	}
	r := t.call(syscall.SendMessage{CID: cid, Msg: ipc.NewBlockingScalar(id, a1, a2, a3, a4)})
	if err := r.AsError(); err != nil {
		return nil, err
	}
	switch r.Kind {
	case ipc.ResultScalar1:
		return r.Args[:1], nil
	case ipc.ResultScalar2:
		return r.Args[:2], nil
	case ipc.ResultScalar5:
		return r.Args[:5], nil
	}
	return nil, types.ErrInternal
}

// Lend lends rng read-only and blocks until the receiver replies. The
// returned offset/valid are the receiver's advisory metadata.
func (t *Thread) Lend(cid types.CID, id uint64, rng mem.Range, offset, valid uint64) (uint64, uint64, error) {
	return t.lend(cid, ipc.NewBorrow(id, rng, offset, valid))
}

// LendMut lends rng writable and blocks until the receiver replies.
func (t *Thread) LendMut(cid types.CID, id uint64, rng mem.Range, offset, valid uint64) (uint64, uint64, error) {
	return t.lend(cid, ipc.NewMutableBorrow(id, rng, offset, valid))
}

func (t *Thread) lend(cid types.CID, msg ipc.Message) (uint64, uint64, error) {
	if cid == types.NoCID {
		return 0, 0, types.ErrUseBeforeInit
	}
	r := t.call(syscall.SendMessage{CID: cid, Msg: msg})
	if err := r.AsError(); err != nil {
		return 0, 0, err
	}
	if r.Kind != ipc.ResultMemoryReturned {
		return 0, 0, types.ErrInternal
	}
	return r.Offset, r.Valid, nil
}

// Move transfers ownership of rng to the receiver. Fire-and-forget: the
// sender loses all access before the call returns.
func (t *Thread) Move(cid types.CID, id uint64, rng mem.Range, offset, valid uint64) error {
	if cid == types.NoCID {
		return types.ErrUseBeforeInit
	}
	return t.call(syscall.SendMessage{CID: cid, Msg: ipc.NewMove(id, rng, offset, valid)}).AsError()
}

// Receive blocks until an envelope arrives on the given server.
func (t *Thread) Receive(sid cap.SID) (ipc.Envelope, error) {
	r := t.call(syscall.ReceiveMessage{SID: sid})
	if err := r.AsError(); err != nil {
		return ipc.Envelope{}, err
	}
	if r.Kind != ipc.ResultMessage {
		return ipc.Envelope{}, types.ErrInternal
	}
	return r.Env, nil
}

// ReplyScalar resumes the blocked sender of env with one, two or five
// result words. Exactly one reply per blocking send.
func (t *Thread) ReplyScalar(env ipc.Envelope, args ...uint64) error {
	return t.call(syscall.ReturnScalar{Sender: env.Sender, Args: args}).AsError()
}

// ReplyMemory closes out a borrow, handing the advisory offset/valid back
// to the blocked sender.
func (t *Thread) ReplyMemory(env ipc.Envelope, offset, valid uint64) error {
	return t.call(syscall.ReturnMemory{Sender: env.Sender, Offset: offset, Valid: valid}).AsError()
}

// Yield hands control back to the parent process.
func (t *Thread) Yield() error {
	return t.call(syscall.Yield{}).AsError()
}

// WaitEvent sleeps until a message delivery or claimed interrupt. The
// result words carry (irq, arg) when an interrupt woke the caller.
func (t *Thread) WaitEvent() ([]uint64, error) {
	r := t.call(syscall.WaitEvent{})
	if err := r.AsError(); err != nil {
		return nil, err
	}
	if r.Kind == ipc.ResultScalar2 {
		return r.Args[:2], nil
	}
	return nil, nil
}

// SwitchTo resumes a specific child and blocks until it hands control back.
// A nonzero tid names the child thread to resume.
func (t *Thread) SwitchTo(pid types.PID, tid types.TID) error {
	return t.call(syscall.SwitchTo{PID: pid, TID: tid}).AsError()
}

// ClaimInterrupt binds an interrupt line to this process.
func (t *Thread) ClaimInterrupt(irq uint32, arg uint64) error {
	return t.call(syscall.ClaimInterrupt{IRQ: irq, Arg: arg}).AsError()
}
