package ipc

import (
	"fmt"

	"github.com/emberos/kernel/internal/shared/types"
)

// Sender is the opaque identity the kernel attaches on delivery. A server
// hands it back through reply to route the result to the exact blocked
// thread; Seq makes each blocking send distinct so a stale token cannot
// resume a later call.
type Sender struct {
	PID types.PID
	TID types.TID
	Seq uint64
}

func (s Sender) String() string {
	return fmt.Sprintf("sender:%d.%d#%d", s.PID, s.TID, s.Seq)
}

// Envelope pairs a delivered message with its sender identity. Constructed
// by the kernel, never by userspace.
type Envelope struct {
	Sender Sender
	Body   Message
}
