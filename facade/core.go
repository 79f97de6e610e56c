// File: facade/core.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Core aggregates the platform layer behind a single handle: socket
// transport, device registry and VFS dispatcher, built from one immutable
// configuration. The protocol engine receives a Core at startup and hands it
// back to Close on shutdown.

package facade

import (
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/control"
	"github.com/momentics/hioload-ftp/socket"
	"github.com/momentics/hioload-ftp/socket/ipc"
	"github.com/momentics/hioload-ftp/socket/posix"
	"github.com/momentics/hioload-ftp/vfs"
)

// Core is the assembled platform layer.
type Core struct {
	cfg       *control.Config
	log       *zap.Logger
	ownLog    bool
	transport *socket.Transport
	reg       *vfs.Registry
	fs        *vfs.VFS
	features  api.Features
	metrics   *control.MetricsRegistry
	probes    *control.DebugProbes

	closeOnce sync.Once
	closeErr  error
}

// Option configures New.
type Option func(*options)

type options struct {
	log     *zap.Logger
	backend socket.Backend
}

// WithLogger uses l instead of building a logger from the config.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSocketBackend overrides the configured socket leaf.
func WithSocketBackend(b socket.Backend) Option {
	return func(o *options) { o.backend = b }
}

// New builds the platform layer described by cfg. A nil cfg means
// control.DefaultConfig. On error everything opened so far is released.
func New(cfg *control.Config, opts ...Option) (*Core, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, api.NewError(api.CodeInvalidArgument, "facade.new", "", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Core{cfg: cfg, log: o.log, metrics: control.NewMetricsRegistry()}
	if c.log == nil {
		l, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		c.log, c.ownLog = l, true
	}
	socket.SetLogger(c.log.Named("socket"))
	vfs.SetLogger(c.log.Named("vfs"))

	b := o.backend
	if b == nil {
		var err error
		if b, err = newBackend(cfg.Socket); err != nil {
			return nil, err
		}
	}
	strategy, _ := cfg.Socket.Strategy()
	tr, err := socket.New(b, socket.WithStrategy(strategy), socket.WithMetrics(c.metrics))
	if err != nil {
		return nil, err
	}
	c.transport = tr
	c.features = describe(cfg, tr)

	c.reg = vfs.NewRegistry(vfs.FoldCase(cfg.VFS.FoldCase))
	devs, err := openDevices(cfg.VFS.Devices, cfg.VFS.Features, c.log)
	if err != nil {
		return nil, err
	}
	if err := c.reg.Init(devs, cfg.VFS.Features); err != nil {
		// Init stops at the first failure; the registry is discarded and
		// every opened backend is released, registered or not.
		closeDevices(devs, c.log)
		return nil, err
	}
	c.fs = vfs.New(c.reg, vfs.WithMetrics(c.metrics))

	c.probes = control.NewDebugProbes()
	control.RegisterPlatformProbes(c.probes)
	c.probes.RegisterProbe("registry.devices", func() any { return c.reg.Names() })
	c.probes.RegisterProbe("features", func() any { return c.features })
	c.probes.RegisterProbe("socket.backend", func() any { return tr.Name() })
	c.probes.RegisterProbe("metrics", func() any { return c.metrics.GetSnapshot() })

	c.log.Info("platform core ready",
		zap.String("socket", tr.Name()),
		zap.Stringer("poll", tr.Strategy()),
		zap.Strings("devices", c.reg.Names()))
	return c, nil
}

// newBackend instantiates the configured socket leaf. auto prefers the
// host stack and falls back to the in-process service.
func newBackend(sc control.SocketConfig) (socket.Backend, error) {
	switch sc.Backend {
	case control.BackendIPC:
		return ipc.New(ipc.WithMaxSockets(sc.MaxSockets)), nil
	case control.BackendPosix:
		return posix.New()
	}
	b, err := posix.New()
	if err != nil {
		if api.CodeOf(err) != api.CodeNotSupported {
			return nil, err
		}
		return ipc.New(ipc.WithMaxSockets(sc.MaxSockets)), nil
	}
	return b, nil
}

func describe(cfg *control.Config, tr *socket.Transport) api.Features {
	return api.Features{
		OS:            runtime.GOOS,
		SocketBackend: tr.Name(),
		Socket:        tr.Caps(),
		Poll:          tr.Strategy(),
		VFS:           cfg.VFS.Features,
	}
}

// Detect resolves the capability descriptor cfg would produce without
// opening any device.
func Detect(cfg *control.Config) (api.Features, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return api.Features{}, api.NewError(api.CodeInvalidArgument, "facade.detect", "", err)
	}
	b, err := newBackend(cfg.Socket)
	if err != nil {
		return api.Features{}, err
	}
	strategy, _ := cfg.Socket.Strategy()
	tr, err := socket.New(b, socket.WithStrategy(strategy))
	if err != nil {
		return api.Features{}, err
	}
	return describe(cfg, tr), nil
}

// Config returns the configuration the core was built from.
func (c *Core) Config() *control.Config { return c.cfg }

// Logger returns the root logger.
func (c *Core) Logger() *zap.Logger { return c.log }

// Transport returns the socket transport.
func (c *Core) Transport() *socket.Transport { return c.transport }

// VFS returns the path dispatcher.
func (c *Core) VFS() *vfs.VFS { return c.fs }

// Registry returns the device registry.
func (c *Core) Registry() *vfs.Registry { return c.reg }

// Features returns the descriptor resolved at startup.
func (c *Core) Features() api.Features { return c.features }

// Metrics returns the shared counters.
func (c *Core) Metrics() *control.MetricsRegistry { return c.metrics }

// Probes returns the debug probes.
func (c *Core) Probes() *control.DebugProbes { return c.probes }

// HostConfig returns the engine options with engine log events routed to
// the core's logger.
func (c *Core) HostConfig() api.HostConfig {
	hc := c.cfg.HostConfig()
	l := c.log.Named("engine")
	hc.LogFunc = func(t api.LogType, msg string) {
		switch t {
		case api.LogError:
			l.Warn(msg, zap.Stringer("type", t))
		default:
			l.Debug(msg, zap.Stringer("type", t))
		}
	}
	return hc
}

// Close releases every device. Further calls return the first result.
func (c *Core) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.reg.Exit()
		c.log.Info("platform core closed", zap.Error(c.closeErr))
		if c.ownLog {
			_ = c.log.Sync()
		}
	})
	return c.closeErr
}
