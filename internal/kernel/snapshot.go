package kernel

import (
	"sort"

	"github.com/emberos/kernel/internal/kernel/proc"
	"github.com/emberos/kernel/internal/shared/types"
)

// ProcessInfo is a point-in-time view of one process.
type ProcessInfo struct {
	PID     types.PID `json:"pid"`
	Name    string    `json:"name"`
	Parent  types.PID `json:"parent"`
	State   string    `json:"state"`
	Threads int       `json:"threads"`
	HeapMax uint64    `json:"heap_max"`
	Heap    uint64    `json:"heap"`
	Mapped  int       `json:"mapped_pages"`
}

// ServerInfo is a point-in-time view of one mailbox. The SID itself is a
// secret and never leaves the kernel; only its log prefix is exposed.
type ServerInfo struct {
	SID     string    `json:"sid"`
	Owner   types.PID `json:"owner"`
	Name    string    `json:"name,omitempty"`
	Depth   int       `json:"queued"`
	Waiting int       `json:"waiting_receivers"`
	Pending int       `json:"pending_replies"`
}

// MemoryInfo summarizes the physical slab.
type MemoryInfo struct {
	TotalFrames int `json:"total_frames"`
	FramesInUse int `json:"frames_in_use"`
	PagesLent   int `json:"pages_lent"`
}

// Processes returns a snapshot of the process table, ordered by PID.
func (k *Kernel) Processes() []ProcessInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]ProcessInfo, 0, len(k.procs))
	for _, p := range k.procs {
		out = append(out, ProcessInfo{
			PID:     p.PID,
			Name:    p.Name,
			Parent:  p.Parent,
			State:   p.State.String(),
			Threads: p.Threads(),
			HeapMax: p.Space.HeapMax(),
			Heap:    p.Space.HeapSize(),
			Mapped:  p.Space.Mapped(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Servers returns a snapshot of every registered mailbox.
func (k *Kernel) Servers() []ServerInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]ServerInfo, 0, len(k.servers))
	for _, s := range k.servers {
		out = append(out, ServerInfo{
			SID:     s.sid.String(),
			Owner:   s.owner,
			Name:    s.name,
			Depth:   s.box.Depth(),
			Waiting: s.box.Waiting(),
			Pending: s.box.Pending(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}

// Memory returns a snapshot of slab usage.
func (k *Kernel) Memory() MemoryInfo {
	k.mu.Lock()
	defer k.mu.Unlock()

	lent := 0
	for _, n := range k.lent {
		lent += n
	}
	return MemoryInfo{
		TotalFrames: k.alloc.Total(),
		FramesInUse: k.alloc.InUse(),
		PagesLent:   lent,
	}
}

// ProcessState reports the lifecycle state of one process.
func (k *Kernel) ProcessState(pid types.PID) (proc.State, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, ok := k.procs[pid]
	if !ok {
		return 0, types.ErrProcessNotFound
	}
	return p.State, nil
}
