// Package syscall defines the kernel call surface as a tagged set of
// request types. The dispatcher validates every call before acting and
// returns a typed Result; unknown calls fail with UnhandledSyscall.
package syscall

import (
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/shared/types"
)

// Call is one syscall request. Name is used for logging and metrics labels.
type Call interface {
	Name() string
}

// MapPhysical maps size bytes at virt, allocating frames when phys is zero.
type MapPhysical struct {
	Phys  mem.Addr
	Virt  mem.Addr
	Size  uint64
	Flags mem.Flags
}

func (MapPhysical) Name() string { return "map_physical" }

// ReleaseMemory unmaps a previously mapped range and frees its frames.
type ReleaseMemory struct {
	Range mem.Range
}

func (ReleaseMemory) Name() string { return "release_memory" }

// IncreaseHeap grows the caller's heap by Delta bytes.
type IncreaseHeap struct {
	Delta uint64
	Flags mem.Flags
}

func (IncreaseHeap) Name() string { return "increase_heap" }

// DecreaseHeap shrinks the caller's heap by Delta bytes.
type DecreaseHeap struct {
	Delta uint64
}

func (DecreaseHeap) Name() string { return "decrease_heap" }

// Yield hands control back to the caller's parent.
type Yield struct{}

func (Yield) Name() string { return "yield" }

// WaitEvent puts the caller to sleep until a message arrives for one of its
// servers or a claimed interrupt fires.
type WaitEvent struct{}

func (WaitEvent) Name() string { return "wait_event" }

// SwitchTo resumes a specific child process and blocks the caller until the
// child yields or sleeps. TID selects the thread to resume; zero lets the
// kernel pick the lowest-numbered parked thread.
type SwitchTo struct {
	PID types.PID
	TID types.TID
}

func (SwitchTo) Name() string { return "switch_to" }

// ClaimInterrupt binds an interrupt line to the caller.
type ClaimInterrupt struct {
	IRQ uint32
	Arg uint64
}

func (ClaimInterrupt) Name() string { return "claim_interrupt" }

// CreateServer registers a mailbox. A zero SID asks for a random one.
type CreateServer struct {
	SID cap.SID
}

func (CreateServer) Name() string { return "create_server" }

// DestroyServer tears a mailbox down, failing its pending senders.
type DestroyServer struct {
	SID cap.SID
}

func (DestroyServer) Name() string { return "destroy_server" }

// Connect binds a process-local CID to the server holding SID.
type Connect struct {
	SID cap.SID
}

func (Connect) Name() string { return "connect" }

// Disconnect invalidates a CID.
type Disconnect struct {
	CID types.CID
}

func (Disconnect) Name() string { return "disconnect" }

// SendMessage delivers a message over a connection. Blocking forms suspend
// the caller until the receiver replies.
type SendMessage struct {
	CID types.CID
	Msg ipc.Message
}

func (SendMessage) Name() string { return "send_message" }

// ReceiveMessage blocks until an envelope is available on the caller's
// server.
type ReceiveMessage struct {
	SID cap.SID
}

func (ReceiveMessage) Name() string { return "receive_message" }

// ReturnScalar resumes a blocked scalar sender with one, two or five words.
type ReturnScalar struct {
	Sender ipc.Sender
	Args   []uint64
}

func (ReturnScalar) Name() string { return "return_scalar" }

// ReturnMemory closes a borrow, unmapping the receiver's view and resuming
// the sender with the advisory offset/valid metadata.
type ReturnMemory struct {
	Sender ipc.Sender
	Offset uint64
	Valid  uint64
}

func (ReturnMemory) Name() string { return "return_memory" }

// TerminateProcess ends the calling process.
type TerminateProcess struct{}

func (TerminateProcess) Name() string { return "terminate_process" }
