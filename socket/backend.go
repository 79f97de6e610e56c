// File: socket/backend.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts a native leaf must satisfy. Every returned error must already be
// an *api.Error; raw platform codes never cross this interface.

package socket

import (
	"net/netip"

	"github.com/momentics/hioload-ftp/api"
)

// Backend binds one native networking stack to the canonical lifecycle.
// Descriptors are leaf-defined non-negative integers.
type Backend interface {
	Name() string
	Caps() api.SocketCaps

	Socket(domain api.Domain, typ api.SockType, proto api.Protocol) (int, error)
	Bind(fd int, addr netip.AddrPort) error
	Listen(fd int, backlog int) error
	Accept(fd int) (int, netip.AddrPort, error)
	Connect(fd int, addr netip.AddrPort) error
	Send(fd int, p []byte, flags api.MsgFlags) (int, error)
	Recv(fd int, p []byte, flags api.MsgFlags) (int, error)
	Shutdown(fd int) error
	Close(fd int) error
	SockName(fd int) (netip.AddrPort, error)
	SetOption(fd int, opt api.SockOption, enable bool) error
}

// PollFd is one slot handed to a native multiplexed wait. Fd < 0 marks an
// unused slot the leaf must skip.
type PollFd struct {
	Fd      int
	Events  api.PollEvent
	REvents api.PollEvent
}

// NativePoller is implemented by leaves with a direct multiplexed wait.
// timeoutMs < 0 waits indefinitely, 0 polls.
type NativePoller interface {
	Poll(fds []PollFd, timeoutMs int) (int, error)
}

// Selector is implemented by leaves that only offer a fixed-size readiness
// bitmap. Every fd set in r, w or e is below SetSize and nfd is one more than
// the highest of them.
type Selector interface {
	SetSize() int
	Select(nfd int, r, w, e *FDSet, timeoutMs int) (int, error)
}
