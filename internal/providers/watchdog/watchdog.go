// Package watchdog synthesizes timeouts for blocking calls. The kernel
// never generates Timeout on its own: a caller that wants a deadline races
// its call against a ticktimer sleep and abandons the slower side.
package watchdog

import (
	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/providers/ticktimer"
	"github.com/emberos/kernel/internal/shared/types"
)

// Watchdog races blocking calls against a deadline.
type Watchdog struct {
	c   *client.Client
	tt  *ticktimer.Client
	log *logging.Logger
}

// New builds a watchdog over an existing ticktimer connection.
func New(c *client.Client, tt *ticktimer.Client, log *logging.Logger) *Watchdog {
	if log == nil {
		log = logging.NewNop()
	}
	return &Watchdog{c: c, tt: tt, log: log.Named("watchdog")}
}

// Call runs fn on a fresh thread with a deadline of ms milliseconds. When
// the deadline fires first, Call returns Timeout and the callee thread is
// abandoned: it stays parked until its server eventually replies or dies.
// fn must block on the thread it is given, not on the caller's.
func (w *Watchdog) Call(ms uint64, fn func(*client.Thread) error) error {
	callTh, err := w.c.Thread()
	if err != nil {
		return err
	}
	sleepTh, err := w.c.Thread()
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	expired := make(chan struct{})

	go func() {
		done <- fn(callTh)
	}()
	go func() {
		if err := w.tt.SleepMs(sleepTh, ms); err != nil {
			w.log.Warn("deadline sleep failed", zap.Error(err))
		}
		close(expired)
	}()

	select {
	case err := <-done:
		return err
	case <-expired:
		// One more chance: the call may have completed in the same
		// instant the deadline fired.
		select {
		case err := <-done:
			return err
		default:
		}
		w.log.Warn("call abandoned", zap.Uint64("deadline_ms", ms))
		return types.ErrTimeout
	}
}

// BlockingScalar is Call specialized to the common case: a blocking scalar
// send with a deadline.
func (w *Watchdog) BlockingScalar(ms uint64, cid types.CID, id, a1, a2, a3, a4 uint64) ([]uint64, error) {
	var args []uint64
	err := w.Call(ms, func(t *client.Thread) error {
		var err error
		args, err = t.BlockingScalar(cid, id, a1, a2, a3, a4)
		return err
	})
	if err != nil {
		return nil, err
	}
	return args, nil
}
