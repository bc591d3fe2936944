// Package client is the userspace face of the kernel: thin typed wrappers
// over the syscall surface plus the process-wide connection handle table.
// Connections are refcounted here, keyed by SID, so independently written
// modules sharing one server share one kernel connection and the last
// release tears it down.
package client

import (
	"sync"

	"github.com/emberos/kernel/internal/kernel"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/kernel/syscall"
	"github.com/emberos/kernel/internal/shared/types"
)

type conn struct {
	cid  types.CID
	refs int
}

// Client binds one process to a kernel instance.
type Client struct {
	k   *kernel.Kernel
	pid types.PID

	mu    sync.Mutex
	conns map[cap.SID]*conn
	bycid map[types.CID]cap.SID

	control types.TID // thread used for non-blocking control calls
}

// New creates the client for an existing process.
func New(k *kernel.Kernel, pid types.PID) (*Client, error) {
	tid, err := k.SpawnThread(pid)
	if err != nil {
		return nil, err
	}
	return &Client{
		k:       k,
		pid:     pid,
		conns:   make(map[cap.SID]*conn),
		bycid:   make(map[types.CID]cap.SID),
		control: tid,
	}, nil
}

// PID returns the bound process id.
func (c *Client) PID() types.PID { return c.pid }

// Thread registers a new kernel thread for the calling goroutine. Every
// goroutine that blocks in the kernel needs its own.
func (c *Client) Thread() (*Thread, error) {
	tid, err := c.k.SpawnThread(c.pid)
	if err != nil {
		return nil, err
	}
	return &Thread{c: c, tid: tid}, nil
}

// Connect acquires a connection to sid. The first acquire per SID performs
// the kernel connect; later ones share the CID and bump the refcount.
func (c *Client) Connect(sid cap.SID) (types.CID, error) {
	if sid.IsZero() {
		return types.NoCID, types.ErrUseBeforeInit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cn, ok := c.conns[sid]; ok {
		cn.refs++
		return cn.cid, nil
	}
	r := c.k.Syscall(c.pid, c.control, syscall.Connect{SID: sid})
	if err := r.AsError(); err != nil {
		return types.NoCID, err
	}
	c.conns[sid] = &conn{cid: r.CID, refs: 1}
	c.bycid[r.CID] = sid
	return r.CID, nil
}

// Disconnect releases one reference on cid. The kernel connection is torn
// down only when the last holder releases.
func (c *Client) Disconnect(cid types.CID) error {
	if cid == types.NoCID {
		return types.ErrUseBeforeInit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sid, ok := c.bycid[cid]
	if !ok {
		return types.ErrServerNotFound
	}
	cn := c.conns[sid]
	cn.refs--
	if cn.refs > 0 {
		return nil
	}
	delete(c.conns, sid)
	delete(c.bycid, cid)
	r := c.k.Syscall(c.pid, c.control, syscall.Disconnect{CID: cid})
	return r.AsError()
}

// Refs reports the live reference count for a SID. Used by tests auditing
// handle lifetimes.
func (c *Client) Refs(sid cap.SID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cn, ok := c.conns[sid]; ok {
		return cn.refs
	}
	return 0
}

// CreateServer registers a mailbox with a fresh random SID.
func (c *Client) CreateServer() (cap.SID, error) {
	r := c.k.Syscall(c.pid, c.control, syscall.CreateServer{})
	if err := r.AsError(); err != nil {
		return cap.SID{}, err
	}
	return r.SID, nil
}

// CreateServerWithSID registers a mailbox under a caller-chosen SID.
func (c *Client) CreateServerWithSID(sid cap.SID) (cap.SID, error) {
	r := c.k.Syscall(c.pid, c.control, syscall.CreateServer{SID: sid})
	if err := r.AsError(); err != nil {
		return cap.SID{}, err
	}
	return r.SID, nil
}

// CreateNamedServer registers a mailbox under a well-known bootstrap name.
func (c *Client) CreateNamedServer(name string) (cap.SID, error) {
	return c.k.CreateNamedServer(c.pid, name)
}

// DestroyServer tears down a mailbox this process owns.
func (c *Client) DestroyServer(sid cap.SID) error {
	return c.k.Syscall(c.pid, c.control, syscall.DestroyServer{SID: sid}).AsError()
}

// MapMemory allocates page-rounded fresh memory. The unit of everything
// transferable: buffers built here can be lent or moved.
func (c *Client) MapMemory(size uint64) (mem.Range, error) {
	r := c.k.Syscall(c.pid, c.control, syscall.MapPhysical{
		Size:  mem.PageRound(size),
		Flags: mem.FlagRead | mem.FlagWrite,
	})
	if err := r.AsError(); err != nil {
		return mem.Range{}, err
	}
	return r.Range, nil
}

// ReleaseMemory unmaps and frees a range obtained from MapMemory.
func (c *Client) ReleaseMemory(rng mem.Range) error {
	return c.k.Syscall(c.pid, c.control, syscall.ReleaseMemory{Range: rng}).AsError()
}

// IncreaseHeap grows the heap, returning the full heap range.
func (c *Client) IncreaseHeap(delta uint64) (mem.Range, error) {
	r := c.k.Syscall(c.pid, c.control, syscall.IncreaseHeap{
		Delta: delta,
		Flags: mem.FlagRead | mem.FlagWrite,
	})
	if err := r.AsError(); err != nil {
		return mem.Range{}, err
	}
	return r.Range, nil
}

// DecreaseHeap shrinks the heap.
func (c *Client) DecreaseHeap(delta uint64) (mem.Range, error) {
	r := c.k.Syscall(c.pid, c.control, syscall.DecreaseHeap{Delta: delta})
	if err := r.AsError(); err != nil {
		return mem.Range{}, err
	}
	return r.Range, nil
}

// Bytes exposes this process's live view of a mapped range. The slice is
// only valid while the mapping is; after a move or a returned borrow the
// call fails with BadAddress.
func (c *Client) Bytes(rng mem.Range, write bool) ([]byte, error) {
	return c.k.ResolveRange(c.pid, rng, write)
}

// Terminate ends the process. Every blocked peer fails over to
// ServerNotFound.
func (c *Client) Terminate() error {
	return c.k.Syscall(c.pid, c.control, syscall.TerminateProcess{}).AsError()
}
