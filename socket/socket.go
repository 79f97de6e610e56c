// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket handle and its lifecycle state machine.

package socket

import (
	"net/netip"

	"github.com/momentics/hioload-ftp/api"
	"go.uber.org/zap"
)

// State is the lifecycle position of a Socket.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateBound
	StateListening
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unopened"
}

// Socket is an opaque handle owned by whoever created it. The zero value is
// an unopened socket on which only Close and State are meaningful.
type Socket struct {
	t        *Transport
	fd       int
	state    State
	nonblock bool
}

// State returns the current lifecycle state.
func (s *Socket) State() State {
	s.mustHandle("socket.state")
	return s.state
}

// Valid reports whether the handle refers to a live descriptor.
func (s *Socket) Valid() bool {
	return s != nil && s.t != nil && s.state != StateUnopened && s.state != StateClosed
}

// NonBlocking reports whether the handle was switched to non-blocking mode.
func (s *Socket) NonBlocking() bool {
	s.mustHandle("socket.nonblocking")
	return s.nonblock
}

// Bind assigns a local endpoint.
func (s *Socket) Bind(addr netip.AddrPort) error {
	if err := s.require("socket.bind", StateOpen); err != nil {
		return err
	}
	if err := s.t.backend.Bind(s.fd, addr); err != nil {
		return api.WithOp(err, "socket.bind", addr.String())
	}
	s.state = StateBound
	return nil
}

// Listen marks the socket as accepting connections.
func (s *Socket) Listen(backlog int) error {
	if err := s.require("socket.listen", StateOpen, StateBound); err != nil {
		return err
	}
	if err := s.t.backend.Listen(s.fd, backlog); err != nil {
		return api.WithOp(err, "socket.listen", "")
	}
	s.state = StateListening
	return nil
}

// Accept returns the next pending connection. Only valid on a listening
// socket. A non-blocking socket with nothing pending fails with
// api.CodeWouldBlock.
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	if err := s.require("socket.accept", StateListening); err != nil {
		return nil, netip.AddrPort{}, err
	}
	fd, peer, err := s.t.backend.Accept(s.fd)
	if err != nil {
		return nil, netip.AddrPort{}, api.WithOp(err, "socket.accept", "")
	}
	s.t.count("socket.accept", 1)
	s.t.log.Debug("accepted", zap.Int("fd", fd), zap.Stringer("peer", peer))
	return &Socket{t: s.t, fd: fd, state: StateConnected}, peer, nil
}

// Connect starts a connection to addr. On a non-blocking socket an
// in-progress connect reports api.CodeWouldBlock and the handle is already
// considered connected; completion shows up as writability in Poll.
func (s *Socket) Connect(addr netip.AddrPort) error {
	if err := s.require("socket.connect", StateOpen, StateBound); err != nil {
		return err
	}
	err := s.t.backend.Connect(s.fd, addr)
	if err != nil && !(s.nonblock && api.CodeOf(err) == api.CodeWouldBlock) {
		return api.WithOp(err, "socket.connect", addr.String())
	}
	s.state = StateConnected
	return api.WithOp(err, "socket.connect", addr.String())
}

// Send writes from p and returns the number of bytes accepted.
func (s *Socket) Send(p []byte, flags api.MsgFlags) (int, error) {
	if err := s.live("socket.send"); err != nil {
		return 0, err
	}
	n, err := s.t.backend.Send(s.fd, p, flags)
	if err != nil {
		return 0, api.WithOp(err, "socket.send", "")
	}
	s.t.count("socket.bytes_sent", int64(n))
	return n, nil
}

// Recv reads into p. A zero count with a nil error is an orderly peer close.
func (s *Socket) Recv(p []byte, flags api.MsgFlags) (int, error) {
	if err := s.live("socket.recv"); err != nil {
		return 0, err
	}
	n, err := s.t.backend.Recv(s.fd, p, flags)
	if err != nil {
		return 0, api.WithOp(err, "socket.recv", "")
	}
	s.t.count("socket.bytes_recv", int64(n))
	return n, nil
}

// SockName resolves the local endpoint of a bound or connected socket.
func (s *Socket) SockName() (netip.AddrPort, error) {
	if err := s.live("socket.getsockname"); err != nil {
		return netip.AddrPort{}, err
	}
	addr, err := s.t.backend.SockName(s.fd)
	if err != nil {
		return netip.AddrPort{}, api.WithOp(err, "socket.getsockname", "")
	}
	return addr, nil
}

// Close releases the socket. Connected sockets are shut down in both
// directions first. Calling Close on an unopened or already closed socket
// is a no-op.
func (s *Socket) Close() error {
	s.mustHandle("socket.close")
	if !s.Valid() {
		s.state = StateClosed
		return nil
	}
	if s.state == StateConnected {
		_ = s.t.backend.Shutdown(s.fd)
	}
	err := s.t.backend.Close(s.fd)
	s.state = StateClosed
	s.t.log.Debug("closed", zap.Int("fd", s.fd))
	return api.WithOp(err, "socket.close", "")
}

// SetReuseAddr toggles address reuse. Best-effort.
func (s *Socket) SetReuseAddr(enable bool) error {
	return s.setOption(api.OptReuseAddr, enable)
}

// SetNoDelay toggles Nagle's algorithm off. Best-effort.
func (s *Socket) SetNoDelay(enable bool) error {
	return s.setOption(api.OptNoDelay, enable)
}

// SetKeepAlive toggles keepalive probes. Best-effort.
func (s *Socket) SetKeepAlive(enable bool) error {
	return s.setOption(api.OptKeepAlive, enable)
}

// SetThroughput requests the throughput type-of-service class. Best-effort.
func (s *Socket) SetThroughput(enable bool) error {
	return s.setOption(api.OptThroughput, enable)
}

// SetNonBlocking toggles non-blocking mode. Best-effort.
func (s *Socket) SetNonBlocking(enable bool) error {
	return s.setOption(api.OptNonBlocking, enable)
}

// setOption succeeds without touching the backend when the option is not
// available on this build, and swallows a runtime not-supported answer.
func (s *Socket) setOption(opt api.SockOption, enable bool) error {
	op := "socket.set_" + opt.String()
	if err := s.live(op); err != nil {
		return err
	}
	if !s.t.caps.Options.Has(opt) {
		return nil
	}
	err := s.t.backend.SetOption(s.fd, opt, enable)
	switch api.CodeOf(err) {
	case api.CodeOK:
	case api.CodeNotSupported:
		s.t.log.Debug("option not supported at runtime", zap.Stringer("option", opt))
		return nil
	default:
		return api.WithOp(err, op, "")
	}
	if opt == api.OptNonBlocking {
		s.nonblock = enable
	}
	return nil
}

// mustHandle panics on a nil handle.
func (s *Socket) mustHandle(op string) {
	if s == nil {
		api.Violation(op, "nil socket handle")
	}
}

// live rejects use of an unopened or closed handle.
func (s *Socket) live(op string) error {
	s.mustHandle(op)
	if !s.Valid() {
		return api.NewError(api.CodeBadHandle, op, "", nil)
	}
	return nil
}

// require checks the handle is live and in one of the allowed states.
func (s *Socket) require(op string, allowed ...State) error {
	if err := s.live(op); err != nil {
		return err
	}
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return api.NewError(api.CodeInvalidArgument, op, "", nil)
}
