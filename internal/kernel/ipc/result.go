package ipc

import (
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/mem"
	"github.com/emberos/kernel/internal/shared/types"
)

// ResultKind discriminates syscall return values.
type ResultKind int

const (
	// ResultOk is a bare success.
	ResultOk ResultKind = iota
	// ResultResume reports that control returned after a scheduling
	// handoff (Yield, WaitEvent, SwitchTo).
	ResultResume
	// ResultScalar1, ResultScalar2 and ResultScalar5 carry one, two or
	// five result words.
	ResultScalar1
	ResultScalar2
	ResultScalar5
	// ResultMemoryReturned closes a borrow, carrying the offset/valid
	// metadata the receiver passed to reply.
	ResultMemoryReturned
	// ResultNewServer carries the SID of a freshly created server.
	ResultNewServer
	// ResultConnection carries the CID from a connect.
	ResultConnection
	// ResultMessage carries a delivered envelope out of receive.
	ResultMessage
	// ResultRange carries a memory range from a mapping syscall.
	ResultRange
	// ResultError carries a typed kernel error.
	ResultError
)

// Result is the kernel return ABI: every syscall resolves to exactly one of
// these variants.
type Result struct {
	Kind ResultKind

	Args   [5]uint64
	Offset uint64
	Valid  uint64
	SID    cap.SID
	CID    types.CID
	Env    Envelope
	Range  mem.Range
	Err    *types.Error
}

// Ok is the bare success result.
func Ok() Result { return Result{Kind: ResultOk} }

// Resume reports a completed scheduling handoff.
func Resume() Result { return Result{Kind: ResultResume} }

// Scalar1 carries one result word.
func Scalar1(a uint64) Result {
	return Result{Kind: ResultScalar1, Args: [5]uint64{a}}
}

// Scalar2 carries two result words.
func Scalar2(a, b uint64) Result {
	return Result{Kind: ResultScalar2, Args: [5]uint64{a, b}}
}

// Scalar5 carries five result words.
func Scalar5(a, b, c, d, e uint64) Result {
	return Result{Kind: ResultScalar5, Args: [5]uint64{a, b, c, d, e}}
}

// MemoryReturned closes out a borrow with the receiver's advisory metadata.
func MemoryReturned(offset, valid uint64) Result {
	return Result{Kind: ResultMemoryReturned, Offset: offset, Valid: valid}
}

// Errorf wraps a typed kernel error into the ABI.
func Errorf(err *types.Error) Result {
	return Result{Kind: ResultError, Err: err}
}

// AsError returns the typed error, or nil for success variants.
func (r Result) AsError() error {
	if r.Kind == ResultError {
		return r.Err
	}
	return nil
}
