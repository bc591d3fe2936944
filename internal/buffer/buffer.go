// Package buffer is the userspace archive convention layered on memory
// ranges: typed values are serialized into one page-rounded allocation,
// lent or moved whole, and decoded through a single validating codec on the
// far side. No raw reinterpretation crosses the process boundary.
package buffer

import (
	"github.com/bytedance/sonic"

	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/shared/types"
)

// Buffer wraps one allocated range and tracks how many of its bytes are
// meaningful, distinct from the range's page-rounded capacity.
type Buffer struct {
	c     *client.Client
	rng   mem.Range
	used  uint64
	owned bool
}

// New allocates an empty buffer with at least size bytes of capacity.
func New(c *client.Client, size uint64) (*Buffer, error) {
	rng, err := c.MapMemory(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{c: c, rng: rng, owned: true}, nil
}

// Into serializes v into a freshly allocated buffer.
func Into[T any](c *client.Client, v T) (*Buffer, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	b, err := New(c, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	dst, err := c.Bytes(b.rng, true)
	if err != nil {
		b.Free()
		return nil, err
	}
	copy(dst, data)
	b.used = uint64(len(data))
	return b, nil
}

// Used returns the meaningful byte count.
func (b *Buffer) Used() uint64 { return b.used }

// Capacity returns the allocated size.
func (b *Buffer) Capacity() uint64 { return b.rng.Size }

// Range returns the backing range descriptor.
func (b *Buffer) Range() mem.Range { return b.rng }

// Lend lends the buffer read-only and blocks until the receiver replies.
func (b *Buffer) Lend(t *client.Thread, cid types.CID, id uint64) error {
	if !b.owned {
		return types.ErrUseBeforeInit
	}
	_, _, err := t.Lend(cid, id, b.rng, 0, b.used)
	return err
}

// LendMut lends the buffer writable and blocks until the receiver replies.
// On return, used is refreshed from the receiver's valid metadata — an
// untrusted value, clamped to capacity before anyone reads by it.
func (b *Buffer) LendMut(t *client.Thread, cid types.CID, id uint64) error {
	if !b.owned {
		return types.ErrUseBeforeInit
	}
	_, valid, err := t.LendMut(cid, id, b.rng, 0, b.used)
	if err != nil {
		return err
	}
	b.used = min(valid, b.rng.Size)
	return nil
}

// Send moves the buffer to the receiver, consuming it: the pages belong to
// the far side now and Free becomes a no-op.
func (b *Buffer) Send(t *client.Thread, cid types.CID, id uint64) error {
	if !b.owned {
		return types.ErrUseBeforeInit
	}
	if err := t.Move(cid, id, b.rng, 0, b.used); err != nil {
		return err
	}
	b.owned = false
	return nil
}

// Free releases the backing pages. Safe after Send: pages this buffer no
// longer owns are not unmapped.
func (b *Buffer) Free() error {
	if !b.owned {
		return nil
	}
	b.owned = false
	return b.c.ReleaseMemory(b.rng)
}

// Decode deserializes the buffer's meaningful prefix into T.
func Decode[T any](b *Buffer) (T, error) {
	var v T
	if !b.owned {
		return v, types.ErrUseBeforeInit
	}
	data, err := b.c.Bytes(b.rng, false)
	if err != nil {
		return v, err
	}
	n := min(b.used, uint64(len(data)))
	if err := sonic.Unmarshal(data[:n], &v); err != nil {
		return v, err
	}
	return v, nil
}

// Read decodes a typed value out of a received memory envelope. The
// advisory valid length is clamped to the delivered range before parsing.
func Read[T any](c *client.Client, env ipc.Envelope) (T, error) {
	var v T
	if !env.Body.Kind.Memory() {
		return v, types.ErrInternal
	}
	data, err := c.Bytes(env.Body.Memory.Buf, false)
	if err != nil {
		return v, err
	}
	n := min(env.Body.Memory.Valid, uint64(len(data)))
	if err := sonic.Unmarshal(data[:n], &v); err != nil {
		return v, err
	}
	return v, nil
}

// Replace serializes v into the mutably borrowed range of env, returning
// the new meaningful length for the reply's valid field. Fails with
// OutOfMemory when v does not fit the lender's allocation.
func Replace[T any](c *client.Client, env ipc.Envelope, v T) (uint64, error) {
	if env.Body.Kind != ipc.KindMutableBorrow {
		return 0, types.ErrAccessDenied
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return 0, err
	}
	dst, err := c.Bytes(env.Body.Memory.Buf, true)
	if err != nil {
		return 0, err
	}
	if len(data) > len(dst) {
		return 0, types.ErrOutOfMemory
	}
	copy(dst, data)
	return uint64(len(data)), nil
}
