//go:build linux
// +build linux

// File: socket/posix/posix_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux leaf: raw descriptors through x/sys/unix, errno translated at the
// boundary by internal/errno.

package posix

import (
	"net/netip"
	"unsafe"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/internal/errno"
	"github.com/momentics/hioload-ftp/socket"
	"golang.org/x/sys/unix"
)

// IPTOS_THROUGHPUT from <netinet/ip.h>.
const iptosThroughput = 0x08

// selectSize is the slot capacity of unix.FdSet on this architecture.
var selectSize = len(unix.FdSet{}.Bits) * int(unsafe.Sizeof(unix.FdSet{}.Bits[0])) * 8

type backend struct {
	domains map[int]api.Domain
	pfds    []unix.PollFd
	r, w, e unix.FdSet
}

var (
	_ socket.Backend      = (*backend)(nil)
	_ socket.NativePoller = (*backend)(nil)
	_ socket.Selector     = (*backend)(nil)
)

// New creates the POSIX socket leaf.
func New() (socket.Backend, error) {
	return &backend{domains: make(map[int]api.Domain)}, nil
}

func (b *backend) Name() string { return "posix" }

func (b *backend) Caps() api.SocketCaps {
	return api.SocketCaps{
		Options:    api.AllSockOptions,
		NativePoll: true,
		SelectPoll: true,
		SelectSize: selectSize,
	}
}

func (b *backend) Socket(domain api.Domain, typ api.SockType, proto api.Protocol) (int, error) {
	var d, t, p int
	switch domain {
	case api.DomainInet:
		d = unix.AF_INET
	case api.DomainInet6:
		d = unix.AF_INET6
	default:
		return -1, api.NewError(api.CodeNotSupported, "posix.socket", "", nil)
	}
	switch typ {
	case api.SockStream:
		t = unix.SOCK_STREAM
	case api.SockDgram:
		t = unix.SOCK_DGRAM
	default:
		return -1, api.NewError(api.CodeNotSupported, "posix.socket", "", nil)
	}
	switch proto {
	case api.ProtoTCP:
		p = unix.IPPROTO_TCP
	case api.ProtoUDP:
		p = unix.IPPROTO_UDP
	}
	fd, err := unix.Socket(d, t|unix.SOCK_CLOEXEC, p)
	if err != nil {
		return -1, errno.Wrap(err, "posix.socket", "")
	}
	b.domains[fd] = domain
	return fd, nil
}

func (b *backend) Bind(fd int, addr netip.AddrPort) error {
	sa, err := toSockaddr(addr, b.domains[fd])
	if err != nil {
		return err
	}
	return errno.Wrap(unix.Bind(fd, sa), "posix.bind", addr.String())
}

func (b *backend) Listen(fd int, backlog int) error {
	return errno.Wrap(unix.Listen(fd, backlog), "posix.listen", "")
}

func (b *backend) Accept(fd int) (int, netip.AddrPort, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, netip.AddrPort{}, errno.Wrap(err, "posix.accept", "")
	}
	b.domains[nfd] = b.domains[fd]
	return nfd, fromSockaddr(sa), nil
}

func (b *backend) Connect(fd int, addr netip.AddrPort) error {
	sa, err := toSockaddr(addr, b.domains[fd])
	if err != nil {
		return err
	}
	return errno.Wrap(unix.Connect(fd, sa), "posix.connect", addr.String())
}

func (b *backend) Send(fd int, p []byte, flags api.MsgFlags) (int, error) {
	n, err := unix.SendmsgN(fd, p, nil, nil, msgFlags(flags)|unix.MSG_NOSIGNAL)
	if err != nil {
		return 0, errno.Wrap(err, "posix.send", "")
	}
	return n, nil
}

func (b *backend) Recv(fd int, p []byte, flags api.MsgFlags) (int, error) {
	n, _, err := unix.Recvfrom(fd, p, msgFlags(flags))
	if err != nil {
		return 0, errno.Wrap(err, "posix.recv", "")
	}
	return n, nil
}

func (b *backend) Shutdown(fd int) error {
	return errno.Wrap(unix.Shutdown(fd, unix.SHUT_RDWR), "posix.shutdown", "")
}

func (b *backend) Close(fd int) error {
	delete(b.domains, fd)
	return errno.Wrap(unix.Close(fd), "posix.close", "")
}

func (b *backend) SockName(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, errno.Wrap(err, "posix.getsockname", "")
	}
	return fromSockaddr(sa), nil
}

func (b *backend) SetOption(fd int, opt api.SockOption, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	var err error
	switch opt {
	case api.OptReuseAddr:
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
	case api.OptNoDelay:
		err = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
	case api.OptKeepAlive:
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v)
	case api.OptThroughput:
		tos := 0
		if enable {
			tos = iptosThroughput
		}
		if b.domains[fd] == api.DomainInet6 {
			err = unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
		} else {
			err = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos)
		}
	case api.OptNonBlocking:
		var fl int
		fl, err = unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
		if err == nil {
			if enable {
				fl |= unix.O_NONBLOCK
			} else {
				fl &^= unix.O_NONBLOCK
			}
			_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, fl)
		}
	default:
		return api.NewError(api.CodeNotSupported, "posix.setsockopt", opt.String(), nil)
	}
	return errno.Wrap(err, "posix.setsockopt", opt.String())
}

// Poll implements socket.NativePoller with poll(2).
func (b *backend) Poll(fds []socket.PollFd, timeoutMs int) (int, error) {
	if cap(b.pfds) < len(fds) {
		b.pfds = make([]unix.PollFd, len(fds))
	}
	pfds := b.pfds[:len(fds)]
	for i, f := range fds {
		pfds[i] = unix.PollFd{Fd: int32(f.Fd)}
		if f.Events&api.PollIn != 0 {
			pfds[i].Events |= unix.POLLIN
		}
		if f.Events&api.PollOut != 0 {
			pfds[i].Events |= unix.POLLOUT
		}
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.Poll(pfds, timeoutMs)
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, errno.Wrap(err, "posix.poll", "")
	}
	for i := range fds {
		fds[i].REvents = 0
		if fds[i].Fd < 0 {
			continue
		}
		re := pfds[i].Revents
		if re&unix.POLLIN != 0 {
			fds[i].REvents |= api.PollIn
		}
		if re&unix.POLLOUT != 0 {
			fds[i].REvents |= api.PollOut
		}
		if re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			fds[i].REvents |= api.PollErr
		}
	}
	return n, nil
}

// SetSize implements socket.Selector.
func (b *backend) SetSize() int { return selectSize }

// Select implements socket.Selector with select(2).
func (b *backend) Select(nfd int, r, w, e *socket.FDSet, timeoutMs int) (int, error) {
	b.r.Zero()
	b.w.Zero()
	b.e.Zero()
	for fd := 0; fd < nfd; fd++ {
		if r.IsSet(fd) {
			b.r.Set(fd)
		}
		if w.IsSet(fd) {
			b.w.Set(fd)
		}
		if e.IsSet(fd) {
			b.e.Set(fd)
		}
	}
	var tvp *unix.Timeval
	if timeoutMs >= 0 {
		tv := unix.NsecToTimeval(int64(timeoutMs) * 1e6)
		tvp = &tv
	}
	n, err := unix.Select(nfd, &b.r, &b.w, &b.e, tvp)
	if err == unix.EINTR {
		n, err = 0, nil
		b.r.Zero()
		b.w.Zero()
		b.e.Zero()
	}
	if err != nil {
		return 0, errno.Wrap(err, "posix.select", "")
	}
	for fd := 0; fd < nfd; fd++ {
		if !b.r.IsSet(fd) {
			r.Clear(fd)
		}
		if !b.w.IsSet(fd) {
			w.Clear(fd)
		}
		if !b.e.IsSet(fd) {
			e.Clear(fd)
		}
	}
	return n, nil
}

func msgFlags(f api.MsgFlags) int {
	out := 0
	if f&api.MsgPeek != 0 {
		out |= unix.MSG_PEEK
	}
	if f&api.MsgDontWait != 0 {
		out |= unix.MSG_DONTWAIT
	}
	return out
}

func toSockaddr(addr netip.AddrPort, d api.Domain) (unix.Sockaddr, error) {
	ip := addr.Addr()
	if !ip.IsValid() {
		return nil, api.NewError(api.CodeInvalidArgument, "posix.sockaddr", addr.String(), nil)
	}
	if d == api.DomainInet6 {
		return &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}, nil
	}
	if !ip.Unmap().Is4() {
		return nil, api.NewError(api.CodeInvalidArgument, "posix.sockaddr", addr.String(), nil)
	}
	return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.Unmap().As4()}, nil
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	}
	return netip.AddrPort{}
}
