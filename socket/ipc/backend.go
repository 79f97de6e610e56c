// File: socket/ipc/backend.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Leaf binding the in-process service to socket.Backend. All result decoding,
// including the errno/result-code sentinel, happens in decode on the status
// each service call returns.

package ipc

import (
	"net/netip"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/socket"
)

// Service option numbers, mirroring the BSD level/name pairs it accepts.
const (
	soReuseAddr = 0x0004
	soKeepAlive = 0x0008
	tcpNoDelay  = 0x0001
)

// DefaultMaxSockets is the descriptor table size of a default service.
const DefaultMaxSockets = 64

// Backend is the IPC socket leaf.
type Backend struct {
	svc  *Service
	pfds []pollsd
}

var (
	_ socket.Backend      = (*Backend)(nil)
	_ socket.NativePoller = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*config)

type config struct {
	maxSockets int
	svc        *Service
}

// WithMaxSockets sets the descriptor table size.
func WithMaxSockets(n int) Option {
	return func(c *config) { c.maxSockets = n }
}

// WithService binds the leaf to an existing service instance so several
// transports can talk to each other.
func WithService(s *Service) Option {
	return func(c *config) { c.svc = s }
}

// New creates the IPC leaf.
func New(opts ...Option) *Backend {
	c := config{maxSockets: DefaultMaxSockets}
	for _, opt := range opts {
		opt(&c)
	}
	if c.svc == nil {
		c.svc = NewService(c.maxSockets)
	}
	return &Backend{svc: c.svc}
}

// Service exposes the underlying service.
func (b *Backend) Service() *Service { return b.svc }

func (b *Backend) Name() string { return "ipc" }

// Caps reports no throughput class support: the service has no ToS knob.
func (b *Backend) Caps() api.SocketCaps {
	return api.SocketCaps{
		Options:    api.SockOptions(api.OptReuseAddr | api.OptNoDelay | api.OptKeepAlive | api.OptNonBlocking),
		NativePoll: true,
	}
}

// decode turns a service status into an error. Non-negative results are
// successes.
func decode(st status, op string) error {
	if st.rc >= 0 {
		return nil
	}
	if st.errno == -1 {
		return api.NewError(resultCode(st.res), op, "", nil)
	}
	return api.NewError(errnoCode(st.errno), op, "", nil)
}

func resultCode(res uint32) api.ErrorCode {
	switch res {
	case ResultFdTableFull:
		return api.CodeBusy
	case ResultBadAddress:
		return api.CodeInvalidArgument
	case ResultBusy:
		return api.CodeBusy
	}
	return api.CodeBrokenPipe
}

func errnoCode(e int) api.ErrorCode {
	switch e {
	case eAGAIN:
		return api.CodeWouldBlock
	case eBADF:
		return api.CodeBadHandle
	case eFAULT, eINVAL:
		return api.CodeInvalidArgument
	case ePIPE:
		return api.CodeBrokenPipe
	case eOPNOTSUPP, eAFNOSUPPORT:
		return api.CodeNotSupported
	case eADDRINUSE, eADDRNOTAVAIL:
		return api.CodeAddrInUse
	case eCONNRESET, eNOTCONN:
		return api.CodeConnReset
	case eISCONN:
		return api.CodeInvalidArgument
	case eCONNREFUSED:
		return api.CodeConnRefused
	}
	return api.CodeIO
}

func (b *Backend) Socket(domain api.Domain, typ api.SockType, proto api.Protocol) (int, error) {
	if domain != api.DomainInet && domain != api.DomainInet6 {
		return -1, api.NewError(api.CodeNotSupported, "ipc.socket", "", nil)
	}
	if proto == api.ProtoUDP {
		return -1, api.NewError(api.CodeNotSupported, "ipc.socket", "", nil)
	}
	st := b.svc.socket(domain == api.DomainInet6, typ == api.SockStream)
	if err := decode(st, "ipc.socket"); err != nil {
		return -1, err
	}
	return st.rc, nil
}

func (b *Backend) Bind(fd int, addr netip.AddrPort) error {
	return decode(b.svc.bind(fd, addr), "ipc.bind")
}

func (b *Backend) Listen(fd int, backlog int) error {
	return decode(b.svc.listen(fd, backlog), "ipc.listen")
}

func (b *Backend) Accept(fd int) (int, netip.AddrPort, error) {
	var peer netip.AddrPort
	st := b.svc.accept(fd, &peer)
	if err := decode(st, "ipc.accept"); err != nil {
		return -1, netip.AddrPort{}, err
	}
	return st.rc, peer, nil
}

func (b *Backend) Connect(fd int, addr netip.AddrPort) error {
	return decode(b.svc.connect(fd, addr), "ipc.connect")
}

func (b *Backend) Send(fd int, p []byte, flags api.MsgFlags) (int, error) {
	st := b.svc.send(fd, p, flags&api.MsgDontWait != 0)
	if err := decode(st, "ipc.send"); err != nil {
		return 0, err
	}
	return st.rc, nil
}

func (b *Backend) Recv(fd int, p []byte, flags api.MsgFlags) (int, error) {
	st := b.svc.recv(fd, p, flags&api.MsgPeek != 0, flags&api.MsgDontWait != 0)
	if err := decode(st, "ipc.recv"); err != nil {
		return 0, err
	}
	return st.rc, nil
}

func (b *Backend) Shutdown(fd int) error {
	return decode(b.svc.shutdown(fd), "ipc.shutdown")
}

func (b *Backend) Close(fd int) error {
	return decode(b.svc.close(fd), "ipc.close")
}

func (b *Backend) SockName(fd int) (netip.AddrPort, error) {
	var addr netip.AddrPort
	if err := decode(b.svc.sockname(fd, &addr), "ipc.getsockname"); err != nil {
		return netip.AddrPort{}, err
	}
	return addr, nil
}

func (b *Backend) SetOption(fd int, opt api.SockOption, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	switch opt {
	case api.OptReuseAddr:
		return decode(b.svc.setsockopt(fd, soReuseAddr, v), "ipc.setsockopt")
	case api.OptKeepAlive:
		return decode(b.svc.setsockopt(fd, soKeepAlive, v), "ipc.setsockopt")
	case api.OptNoDelay:
		return decode(b.svc.setsockopt(fd, tcpNoDelay, v), "ipc.setsockopt")
	case api.OptNonBlocking:
		st := b.svc.fcntl(fd, fGetfl, 0)
		if err := decode(st, "ipc.fcntl"); err != nil {
			return err
		}
		fl := st.rc
		if enable {
			fl |= oNonblock
		} else {
			fl &^= oNonblock
		}
		return decode(b.svc.fcntl(fd, fSetfl, fl), "ipc.fcntl")
	}
	return api.NewError(api.CodeNotSupported, "ipc.setsockopt", opt.String(), nil)
}

// Poll implements socket.NativePoller over the service's multiplexed wait.
func (b *Backend) Poll(fds []socket.PollFd, timeoutMs int) (int, error) {
	if cap(b.pfds) < len(fds) {
		b.pfds = make([]pollsd, len(fds))
	}
	pfds := b.pfds[:len(fds)]
	for i, f := range fds {
		pfds[i] = pollsd{fd: f.Fd}
		if f.Events&api.PollIn != 0 {
			pfds[i].events |= pollIn
		}
		if f.Events&api.PollOut != 0 {
			pfds[i].events |= pollOut
		}
	}
	st := b.svc.poll(pfds, timeoutMs)
	if err := decode(st, "ipc.poll"); err != nil {
		return 0, err
	}
	for i := range fds {
		fds[i].REvents = 0
		re := pfds[i].revents
		if re&pollIn != 0 {
			fds[i].REvents |= api.PollIn
		}
		if re&pollOut != 0 {
			fds[i].REvents |= api.PollOut
		}
		if re&(pollErr|pollHup|pollNval) != 0 {
			fds[i].REvents |= api.PollErr
		}
	}
	return st.rc, nil
}
