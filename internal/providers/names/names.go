// Package names is the name resolution service: the one process that maps
// service names to SIDs, brokering connections with trust-on-first-use
// budgets. The kernel itself has no notion of a name, only raw SIDs.
package names

import (
	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/buffer"
	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/shared/types"
)

// WellKnownName is the bootstrap name the service itself registers under.
const WellKnownName = "names"

// Opcodes.
const (
	OpRegister uint64 = iota + 1
	OpLookup
)

// DefaultLimit is the connection budget applied when a registration does
// not name one.
const DefaultLimit = 8

// request crosses the boundary inside a mutably borrowed buffer; the reply
// is written back in place.
type request struct {
	Name  string `json:"name"`
	Limit uint32 `json:"limit,omitempty"`
}

type response struct {
	SID   []byte `json:"sid,omitempty"`
	Errno uint32 `json:"errno,omitempty"`
}

type entry struct {
	sid   cap.SID
	limit uint32
	conns uint32
}

// Server is the name service instance.
type Server struct {
	c        *client.Client
	sid      cap.SID
	log      *logging.Logger
	registry map[string]*entry
}

// NewServer registers the name service mailbox.
func NewServer(c *client.Client, log *logging.Logger) (*Server, error) {
	sid, err := c.CreateNamedServer(WellKnownName)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Server{
		c:        c,
		sid:      sid,
		log:      log.Named(WellKnownName),
		registry: make(map[string]*entry),
	}, nil
}

// Run serves the mailbox until the server is torn down.
func (s *Server) Run() error {
	t, err := s.c.Thread()
	if err != nil {
		return err
	}
	for {
		env, err := t.Receive(s.sid)
		if err != nil {
			return err
		}

		if !env.Body.Kind.Memory() {
			// The protocol rides in lent buffers. A stray blocking
			// scalar still suspends its sender and must be answered
			// in kind.
			s.log.Warn("non-buffer message", zap.Stringer("kind", env.Body.Kind))
			if env.Body.Kind == ipc.KindBlockingScalar {
				if err := t.ReplyScalar(env, uint64(types.KindUnhandledSyscall)); err != nil {
					s.log.Warn("reject reply failed", zap.Error(err))
				}
			}
			continue
		}

		req, err := buffer.Read[request](s.c, env)
		if err != nil {
			s.log.Warn("malformed request", zap.Error(err))
			s.respond(t, env, response{Errno: uint32(types.KindInternal)})
			continue
		}

		switch env.Body.ID() {
		case OpRegister:
			s.respond(t, env, s.register(req))
		case OpLookup:
			s.respond(t, env, s.lookup(req))
		default:
			s.respond(t, env, response{Errno: uint32(types.KindUnhandledSyscall)})
		}
	}
}

func (s *Server) register(req request) response {
	if req.Name == "" {
		return response{Errno: uint32(types.KindInternal)}
	}
	if _, taken := s.registry[req.Name]; taken {
		return response{Errno: uint32(types.KindServerExists)}
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	// The budget is fixed at first registration: trust on first use.
	sid := cap.Random()
	s.registry[req.Name] = &entry{sid: sid, limit: limit}
	s.log.Info("name registered", zap.String("name", req.Name), zap.Uint32("limit", limit))
	return response{SID: sid[:]}
}

func (s *Server) lookup(req request) response {
	e, ok := s.registry[req.Name]
	if !ok {
		return response{Errno: uint32(types.KindServerNotFound)}
	}
	if e.conns >= e.limit {
		s.log.Warn("connection budget exhausted", zap.String("name", req.Name))
		return response{Errno: uint32(types.KindAccessDenied)}
	}
	e.conns++
	return response{SID: e.sid[:]}
}

func (s *Server) respond(t *client.Thread, env ipc.Envelope, resp response) {
	if !env.Body.Kind.Blocking() {
		// A moved-in request has no suspended sender to answer.
		return
	}
	n, err := buffer.Replace(s.c, env, resp)
	if err != nil {
		s.log.Warn("reply encode failed", zap.Error(err))
		t.ReplyMemory(env, 0, 0)
		return
	}
	if err := t.ReplyMemory(env, 0, n); err != nil {
		s.log.Warn("reply failed", zap.Error(err))
	}
}
