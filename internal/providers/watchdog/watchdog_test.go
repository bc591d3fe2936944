package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/kernel"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/providers/ticktimer"
	"github.com/emberos/kernel/internal/shared/types"
)

func startWorld(t *testing.T) (*kernel.Kernel, *client.Client, *Watchdog) {
	t.Helper()
	k := kernel.New(kernel.Config{Frames: 64}, nil)

	tpid, err := k.CreateProcess("ticktimer", types.KernelPID, 0)
	require.NoError(t, err)
	tc, err := client.New(k, tpid)
	require.NoError(t, err)
	tsrv, err := ticktimer.NewServer(tc, nil)
	require.NoError(t, err)
	go tsrv.Run()

	cpid, err := k.CreateProcess("caller", types.KernelPID, 0)
	require.NoError(t, err)
	cc, err := client.New(k, cpid)
	require.NoError(t, err)

	tt, err := ticktimer.Connect(cc)
	require.NoError(t, err)
	return k, cc, New(cc, tt, nil)
}

// blackHole registers a server that receives and never replies.
func blackHole(t *testing.T, k *kernel.Kernel) cap.SID {
	t.Helper()
	pid, err := k.CreateProcess("blackhole", types.KernelPID, 0)
	require.NoError(t, err)
	c, err := client.New(k, pid)
	require.NoError(t, err)
	sid, err := c.CreateServer()
	require.NoError(t, err)

	th, err := c.Thread()
	require.NoError(t, err)
	go func() {
		for {
			if _, err := th.Receive(sid); err != nil {
				return
			}
		}
	}()
	return sid
}

func TestDeadlineFires(t *testing.T) {
	k, cc, wd := startWorld(t)
	sid := blackHole(t, k)

	cid, err := cc.Connect(sid)
	require.NoError(t, err)

	start := time.Now()
	_, err = wd.BlockingScalar(30, cid, 1, 0, 0, 0, 0)
	assert.ErrorIs(t, err, types.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFastCallWins(t *testing.T) {
	k, cc, wd := startWorld(t)

	pid, err := k.CreateProcess("echo", types.KernelPID, 0)
	require.NoError(t, err)
	ec, err := client.New(k, pid)
	require.NoError(t, err)
	sid, err := ec.CreateServer()
	require.NoError(t, err)

	th, err := ec.Thread()
	require.NoError(t, err)
	go func() {
		for {
			env, err := th.Receive(sid)
			if err != nil {
				return
			}
			th.ReplyScalar(env, env.Body.Scalar.Arg1+1)
		}
	}()

	cid, err := cc.Connect(sid)
	require.NoError(t, err)

	args, err := wd.BlockingScalar(1000, cid, 1, 41, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, args, 1)
	assert.Equal(t, uint64(42), args[0])
}

func TestCallErrorsPassThrough(t *testing.T) {
	_, _, wd := startWorld(t)

	// A connection that was never made fails immediately, not by deadline.
	_, err := wd.BlockingScalar(1000, types.NoCID, 1, 0, 0, 0, 0)
	assert.ErrorIs(t, err, types.ErrUseBeforeInit)
}
