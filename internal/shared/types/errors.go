package types

// Kind identifies a kernel error class. The kernel never swallows a
// malformed syscall; every failure path surfaces one of these.
type Kind uint32

const (
	KindNone Kind = iota
	KindServerNotFound
	KindServerExists
	KindProcessNotFound
	KindBadAddress
	KindBadAlignment
	KindOutOfMemory
	KindAccessDenied
	KindTimeout
	KindUseBeforeInit
	KindInternal
	KindUnhandledSyscall
)

// String returns the canonical name of the error kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindServerNotFound:
		return "server not found"
	case KindServerExists:
		return "server exists"
	case KindProcessNotFound:
		return "process not found"
	case KindBadAddress:
		return "bad address"
	case KindBadAlignment:
		return "bad alignment"
	case KindOutOfMemory:
		return "out of memory"
	case KindAccessDenied:
		return "access denied"
	case KindTimeout:
		return "timeout"
	case KindUseBeforeInit:
		return "use before init"
	case KindInternal:
		return "internal error"
	case KindUnhandledSyscall:
		return "unhandled syscall"
	default:
		return "unknown"
	}
}

// Error is a typed kernel error. Callers compare with errors.Is against the
// sentinel values below and decide whether to retry, escalate, or panic.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string { return e.Kind.String() }

// Is matches any Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrServerNotFound   = &Error{Kind: KindServerNotFound}
	ErrServerExists     = &Error{Kind: KindServerExists}
	ErrProcessNotFound  = &Error{Kind: KindProcessNotFound}
	ErrBadAddress       = &Error{Kind: KindBadAddress}
	ErrBadAlignment     = &Error{Kind: KindBadAlignment}
	ErrOutOfMemory      = &Error{Kind: KindOutOfMemory}
	ErrAccessDenied     = &Error{Kind: KindAccessDenied}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrUseBeforeInit    = &Error{Kind: KindUseBeforeInit}
	ErrInternal         = &Error{Kind: KindInternal}
	ErrUnhandledSyscall = &Error{Kind: KindUnhandledSyscall}
)
