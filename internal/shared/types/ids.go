package types

import "fmt"

// PID identifies a process. PID 1 is the distinguished kernel process and
// the only one allowed to target reserved kernel addresses.
type PID uint8

// KernelPID is the distinguished kernel process.
const KernelPID PID = 1

func (p PID) String() string { return fmt.Sprintf("pid:%d", uint8(p)) }

// TID identifies a thread within a process. Servers commonly run one
// dedicated thread per mailbox.
type TID uint32

// CID is a process-local connection handle bound to one server. It grants
// send rights only; the underlying SID cannot be recovered from it.
type CID uint32

// NoCID marks an unconnected handle.
const NoCID CID = 0
