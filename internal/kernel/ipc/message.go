// Package ipc defines the kernel message envelope types and per-server
// mailbox bookkeeping. The kernel stays blind to payload semantics: a
// message carries an opaque opcode id that each service's own decoder maps
// to its variant set.
package ipc

import "github.com/emberos/kernel/internal/kernel/mem"

// Kind discriminates the five message forms.
type Kind int

const (
	// KindScalar is fire-and-forget: an opcode and four words.
	KindScalar Kind = iota
	// KindBlockingScalar suspends the sender until the receiver replies
	// with up to two result words.
	KindBlockingScalar
	// KindMove transfers permanent ownership of a range to the receiver.
	KindMove
	// KindBorrow lends a range read-only for the duration of the call.
	KindBorrow
	// KindMutableBorrow lends a range the receiver may write into.
	KindMutableBorrow
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindBlockingScalar:
		return "blocking-scalar"
	case KindMove:
		return "move"
	case KindBorrow:
		return "borrow"
	case KindMutableBorrow:
		return "mutable-borrow"
	default:
		return "invalid"
	}
}

// Blocking reports whether the sender suspends until a reply.
func (k Kind) Blocking() bool {
	return k == KindBlockingScalar || k == KindBorrow || k == KindMutableBorrow
}

// Memory reports whether the message carries a memory range.
func (k Kind) Memory() bool {
	return k == KindMove || k == KindBorrow || k == KindMutableBorrow
}

// Writable reports whether the receiver's mapping is writable.
func (k Kind) Writable() bool {
	return k == KindMove || k == KindMutableBorrow
}

// ScalarArgs is the payload of Scalar and BlockingScalar messages.
type ScalarArgs struct {
	ID   uint64
	Arg1 uint64
	Arg2 uint64
	Arg3 uint64
	Arg4 uint64
}

// MemoryArgs is the payload of the three memory-transfer forms. Offset and
// Valid are advisory metadata riding alongside the range; the kernel passes
// them through unverified and receivers must clamp them to their own bounds.
type MemoryArgs struct {
	ID     uint64
	Buf    mem.Range
	Offset uint64
	Valid  uint64
}

// Message is the tagged union sent through a connection. Exactly one of
// Scalar or Memory is meaningful, selected by Kind.
type Message struct {
	Kind   Kind
	Scalar ScalarArgs
	Memory MemoryArgs
}

// NewScalar builds a fire-and-forget scalar message.
func NewScalar(id, a1, a2, a3, a4 uint64) Message {
	return Message{Kind: KindScalar, Scalar: ScalarArgs{ID: id, Arg1: a1, Arg2: a2, Arg3: a3, Arg4: a4}}
}

// NewBlockingScalar builds a scalar message whose sender blocks for a reply.
func NewBlockingScalar(id, a1, a2, a3, a4 uint64) Message {
	m := NewScalar(id, a1, a2, a3, a4)
	m.Kind = KindBlockingScalar
	return m
}

// NewMove builds a message transferring ownership of buf.
func NewMove(id uint64, buf mem.Range, offset, valid uint64) Message {
	return Message{Kind: KindMove, Memory: MemoryArgs{ID: id, Buf: buf, Offset: offset, Valid: valid}}
}

// NewBorrow builds a read-only lend of buf.
func NewBorrow(id uint64, buf mem.Range, offset, valid uint64) Message {
	m := NewMove(id, buf, offset, valid)
	m.Kind = KindBorrow
	return m
}

// NewMutableBorrow builds a writable lend of buf.
func NewMutableBorrow(id uint64, buf mem.Range, offset, valid uint64) Message {
	m := NewMove(id, buf, offset, valid)
	m.Kind = KindMutableBorrow
	return m
}

// ID returns the opcode regardless of form.
func (m Message) ID() uint64 {
	if m.Kind.Memory() {
		return m.Memory.ID
	}
	return m.Scalar.ID
}
