// File: socket/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-independent facade over one leaf Backend. The poll strategy is
// resolved once here and never leaks into the Poll signature.

package socket

import (
	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/control"
	"go.uber.org/zap"
)

// Transport dispatches the canonical socket lifecycle to a leaf backend.
type Transport struct {
	backend  Backend
	caps     api.SocketCaps
	strategy api.PollStrategy
	poller   poller
	metrics  *control.MetricsRegistry
	log      *zap.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithStrategy forces a poll strategy instead of PollAuto.
func WithStrategy(s api.PollStrategy) Option {
	return func(t *Transport) { t.strategy = s }
}

// WithMetrics attaches a metrics registry for socket counters.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(t *Transport) { t.metrics = m }
}

// New builds a Transport over b. Requesting a poll strategy the backend does
// not implement fails with api.CodeNotSupported.
func New(b Backend, opts ...Option) (*Transport, error) {
	if b == nil {
		return nil, api.NewError(api.CodeInvalidArgument, "socket.new", "", nil)
	}
	t := &Transport{backend: b, caps: b.Caps(), strategy: api.PollAuto}
	for _, opt := range opts {
		opt(t)
	}
	p, s, err := resolvePoller(b, t.strategy)
	if err != nil {
		return nil, err
	}
	t.poller, t.strategy = p, s
	t.log = Logger().With(zap.String("backend", b.Name()), zap.Stringer("poll", s))
	t.log.Debug("transport ready", zap.Stringer("options", t.caps.Options))
	return t, nil
}

// Name returns the backend name.
func (t *Transport) Name() string { return t.backend.Name() }

// Caps returns the backend capabilities resolved at construction.
func (t *Transport) Caps() api.SocketCaps { return t.caps }

// Strategy returns the poll strategy in effect.
func (t *Transport) Strategy() api.PollStrategy { return t.strategy }

// Open creates a new socket handle.
func (t *Transport) Open(domain api.Domain, typ api.SockType, proto api.Protocol) (*Socket, error) {
	fd, err := t.backend.Socket(domain, typ, proto)
	if err != nil {
		return nil, api.WithOp(err, "socket.open", "")
	}
	t.count("socket.open", 1)
	return &Socket{t: t, fd: fd, state: StateOpen}, nil
}

// Poll waits up to timeoutMs (negative waits indefinitely, zero polls) for
// any requested condition across valid entries, writes observed events back
// and returns the number of entries with at least one observed event.
// Entries with a nil or closed socket are skipped and keep REvents zero.
func (t *Transport) Poll(entries []PollEntry, timeoutMs int) (int, error) {
	for i := range entries {
		entries[i].REvents = 0
	}
	t.count("socket.poll", 1)
	n, err := t.poller.poll(entries, timeoutMs)
	if err != nil {
		return 0, api.WithOp(err, "socket.poll", "")
	}
	return n, nil
}

func (t *Transport) count(key string, delta int64) {
	if t.metrics != nil {
		t.metrics.Add(key, delta)
	}
}
