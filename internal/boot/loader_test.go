package boot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/kernel"
	"github.com/emberos/kernel/internal/shared/types"
)

func TestParseManifest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m, err := ParseManifest([]byte(`
services:
  - name: names
  - name: ticktimer
    heap_max: 65536
`))
		require.NoError(t, err)
		require.Len(t, m.Services, 2)
		assert.Equal(t, "names", m.Services[0].Name)
		assert.Equal(t, uint64(65536), m.Services[1].HeapMax)
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := ParseManifest([]byte("services:\n  - heap_max: 4096\n"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseManifest([]byte("services: ["))
		assert.Error(t, err)
	})
}

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest()
	names := make([]string, 0, len(m.Services))
	for _, s := range m.Services {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "names")
	assert.Contains(t, names, "ticktimer")
}

func TestBootStartsServices(t *testing.T) {
	k := kernel.New(kernel.Config{Frames: 64}, nil)
	l := NewLoader(k, nil)

	started := make(chan types.PID, 1)
	l.Register("svc", func(c *client.Client, log *logging.Logger) error {
		started <- c.PID()
		return nil
	})

	err := l.Boot(&Manifest{Services: []ServiceSpec{{Name: "svc", HeapMax: 0x8000}}})
	require.NoError(t, err)

	pid := <-started
	procs := k.Processes()
	require.Len(t, procs, 2)
	assert.Equal(t, "svc", procs[1].Name)
	assert.Equal(t, pid, procs[1].PID)
	assert.Equal(t, types.KernelPID, procs[1].Parent)
	assert.Equal(t, uint64(0x8000), procs[1].HeapMax)
}

func TestBootUnknownService(t *testing.T) {
	k := kernel.New(kernel.Config{Frames: 64}, nil)
	l := NewLoader(k, nil)
	err := l.Boot(&Manifest{Services: []ServiceSpec{{Name: "ghost"}}})
	assert.Error(t, err)
}

func TestConnectNamedRetries(t *testing.T) {
	k := kernel.New(kernel.Config{Frames: 64}, nil)

	cpid, err := k.CreateProcess("caller", types.KernelPID, 0)
	require.NoError(t, err)
	cc, err := client.New(k, cpid)
	require.NoError(t, err)

	// The server comes up shortly after the first connect attempt.
	go func() {
		time.Sleep(10 * time.Millisecond)
		spid, err := k.CreateProcess("late", types.KernelPID, 0)
		if err != nil {
			return
		}
		sc, err := client.New(k, spid)
		if err != nil {
			return
		}
		sc.CreateNamedServer("late")
	}()

	cid, err := ConnectNamed(cc, "late", time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, types.NoCID, cid)
}

func TestConnectNamedGivesUp(t *testing.T) {
	k := kernel.New(kernel.Config{Frames: 64}, nil)

	cpid, err := k.CreateProcess("caller", types.KernelPID, 0)
	require.NoError(t, err)
	cc, err := client.New(k, cpid)
	require.NoError(t, err)

	_, err = ConnectNamed(cc, "never", 20*time.Millisecond)
	assert.ErrorIs(t, err, types.ErrServerNotFound)
}
