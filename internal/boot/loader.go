// Package boot starts the statically configured service set from a YAML
// manifest. Each service gets its own process under the kernel and runs as
// a goroutine; bootstrap ordering is handled by retrying connects while
// servers are still coming up.
package boot

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/emberos/kernel/internal/client"
	"github.com/emberos/kernel/internal/infrastructure/logging"
	"github.com/emberos/kernel/internal/kernel"
	"github.com/emberos/kernel/internal/kernel/cap"
	"github.com/emberos/kernel/internal/shared/types"
)

// ServiceSpec names one service in the boot manifest.
type ServiceSpec struct {
	Name    string `yaml:"name"`
	HeapMax uint64 `yaml:"heap_max,omitempty"`
}

// Manifest is the boot configuration document.
type Manifest struct {
	Services []ServiceSpec `yaml:"services"`
}

// Entry is a service main: it owns its process client and runs until the
// service is done.
type Entry func(c *client.Client, log *logging.Logger) error

// Loader boots services against one kernel instance.
type Loader struct {
	k       *kernel.Kernel
	log     *logging.Logger
	entries map[string]Entry
}

// NewLoader builds an empty loader.
func NewLoader(k *kernel.Kernel, log *logging.Logger) *Loader {
	if log == nil {
		log = logging.NewNop()
	}
	return &Loader{k: k, log: log.Named("boot"), entries: make(map[string]Entry)}
}

// Register binds a service name to its entry point. Manifest entries
// without a registered entry fail the boot.
func (l *Loader) Register(name string, entry Entry) {
	l.entries[name] = entry
}

// LoadManifest parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	for i, s := range m.Services {
		if s.Name == "" {
			return nil, fmt.Errorf("manifest service %d has no name", i)
		}
	}
	return &m, nil
}

// DefaultManifest is the built-in service set used when no manifest file
// is given.
func DefaultManifest() *Manifest {
	return &Manifest{Services: []ServiceSpec{
		{Name: "names"},
		{Name: "ticktimer"},
	}}
}

// Boot creates a process per manifest service and launches its entry in
// its own goroutine. Services are started in manifest order but run
// concurrently; entries that return an error are logged, not fatal.
func (l *Loader) Boot(m *Manifest) error {
	for _, s := range m.Services {
		entry, ok := l.entries[s.Name]
		if !ok {
			return fmt.Errorf("no entry registered for service %q", s.Name)
		}
		pid, err := l.k.CreateProcess(s.Name, types.KernelPID, s.HeapMax)
		if err != nil {
			return fmt.Errorf("failed to create process for %q: %w", s.Name, err)
		}
		c, err := client.New(l.k, pid)
		if err != nil {
			return fmt.Errorf("failed to bind client for %q: %w", s.Name, err)
		}
		l.log.Info("service starting", zap.String("name", s.Name), zap.Uint8("pid", uint8(pid)))

		log := l.log
		name := s.Name
		go func() {
			if err := entry(c, log); err != nil {
				log.Warn("service exited", zap.String("name", name), zap.Error(err))
			}
		}()
	}
	return nil
}

// ConnectNamed connects to a well-known name, retrying while the server is
// still booting. Only ServerNotFound is retried; anything else is final.
func ConnectNamed(c *client.Client, name string, timeout time.Duration) (types.CID, error) {
	sid := cap.FromName(name)
	deadline := time.Now().Add(timeout)
	for {
		cid, err := c.Connect(sid)
		if err == nil {
			return cid, nil
		}
		if !errors.Is(err, types.ErrServerNotFound) || time.Now().After(deadline) {
			return types.NoCID, err
		}
		time.Sleep(time.Millisecond)
	}
}
