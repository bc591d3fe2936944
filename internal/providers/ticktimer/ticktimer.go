// Package ticktimer is the system time source: a userspace service serving
// milliseconds-since-boot and timed sleeps over blocking scalars. It is the
// only clock other services see; watchdog timeout synthesis races against
// it.
package ticktimer

import (
	"time"

	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/kernel/ipc"
	"github.com/emberos/kernel/internal/shared/types"
)

// WellKnownName is the bootstrap name the service registers under.
const WellKnownName = "ticktimer"

// Opcodes.
const (
	OpElapsedMs uint64 = iota + 1
	OpSleepMs
)

// Server is the ticktimer service instance.
type Server struct {
	c     *client.Client
	sid   cap.SID
	log   *logging.Logger
	start time.Time
}

// NewServer registers the ticktimer mailbox.
func NewServer(c *client.Client, log *logging.Logger) (*Server, error) {
	sid, err := c.CreateNamedServer(WellKnownName)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Server{c: c, sid: sid, log: log.Named(WellKnownName), start: time.Now()}, nil
}

// Run serves the mailbox until the server is torn down. Sleep replies are
// deferred to a timer so the receive loop never stalls behind a sleeper.
func (s *Server) Run() error {
	recv, err := s.c.Thread()
	if err != nil {
		return err
	}
	replier, err := s.c.Thread()
	if err != nil {
		return err
	}

	for {
		env, err := recv.Receive(s.sid)
		if err != nil {
			return err
		}
		if env.Body.Kind.Memory() {
			// The protocol is scalar-only. A borrow still blocks its
			// sender, so it must be unwound in kind, not ignored.
			s.log.Warn("memory message rejected", zap.Uint64("id", env.Body.ID()))
			if env.Body.Kind.Blocking() {
				if err := recv.ReplyMemory(env, 0, 0); err != nil {
					s.log.Warn("reject reply failed", zap.Error(err))
				}
			}
			continue
		}
		switch env.Body.Scalar.ID {
		case OpElapsedMs:
			ms := uint64(time.Since(s.start).Milliseconds())
			if err := recv.ReplyScalar(env, ms); err != nil {
				return err
			}
		case OpSleepMs:
			ms := env.Body.Scalar.Arg1
			env := env
			time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
				if err := replier.ReplyScalar(env, ms); err != nil {
					s.log.Warn("sleep reply failed", zap.Error(err))
				}
			})
		default:
			// Blocking senders must not be starved even on a bad
			// opcode.
			if env.Body.Kind == ipc.KindBlockingScalar {
				recv.ReplyScalar(env, 0)
			}
			s.log.Warn("unknown opcode", zap.Uint64("id", env.Body.ID()))
		}
	}
}

// Client talks to the ticktimer service. Methods take the calling thread
// explicitly; blocking calls park exactly that thread.
type Client struct {
	c   *client.Client
	cid types.CID
}

// Connect binds to the well-known ticktimer mailbox.
func Connect(c *client.Client) (*Client, error) {
	cid, err := c.Connect(cap.FromName(WellKnownName))
	if err != nil {
		return nil, err
	}
	return &Client{c: c, cid: cid}, nil
}

// ElapsedMs returns milliseconds since the service started.
func (t *Client) ElapsedMs(th *client.Thread) (uint64, error) {
	args, err := th.BlockingScalar(t.cid, OpElapsedMs, 0, 0, 0, 0)
	if err != nil {
		return 0, err
	}
	return args[0], nil
}

// SleepMs parks the calling thread for at least ms milliseconds.
func (t *Client) SleepMs(th *client.Thread, ms uint64) error {
	_, err := th.BlockingScalar(t.cid, OpSleepMs, ms, 0, 0, 0)
	return err
}

// Close releases the connection.
func (t *Client) Close() error {
	return t.c.Disconnect(t.cid)
}
