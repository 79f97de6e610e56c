// File: fake/backend.go
// Package fake
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the socket and VFS
// extension points.

package fake

import (
	"net/netip"
	"sync"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/socket"
)

// SelectBackend is a socket leaf that only offers a fixed-size readiness
// bitmap. Readiness is scripted through ReadyR and ReadyW; Select records
// what the emulation handed it.
type SelectBackend struct {
	mu sync.Mutex

	next int
	size int
	caps api.SocketCaps

	ReadyR map[int]bool
	ReadyW map[int]bool

	LastNfd int
	LastR   []int
	LastW   []int

	Opts        map[api.SockOption]bool
	Unsupported api.SockOption
	Closed      map[int]int
}

var (
	_ socket.Backend  = (*SelectBackend)(nil)
	_ socket.Selector = (*SelectBackend)(nil)
)

// NewSelectBackend creates a leaf whose bitmaps hold size descriptors.
// Descriptors are handed out from 3 upwards.
func NewSelectBackend(size int) *SelectBackend {
	return &SelectBackend{
		next:   3,
		size:   size,
		ReadyR: map[int]bool{},
		ReadyW: map[int]bool{},
		Opts:   map[api.SockOption]bool{},
		Closed: map[int]int{},
		caps: api.SocketCaps{
			Options:    api.SockOptions(api.OptNoDelay | api.OptKeepAlive | api.OptNonBlocking),
			SelectPoll: true,
			SelectSize: size,
		},
	}
}

func (b *SelectBackend) Name() string         { return "fake-select" }
func (b *SelectBackend) Caps() api.SocketCaps { return b.caps }

func (b *SelectBackend) Socket(api.Domain, api.SockType, api.Protocol) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fd := b.next
	b.next++
	return fd, nil
}

func (b *SelectBackend) Bind(int, netip.AddrPort) error { return nil }
func (b *SelectBackend) Listen(int, int) error          { return nil }

func (b *SelectBackend) Accept(int) (int, netip.AddrPort, error) {
	return -1, netip.AddrPort{}, api.NewError(api.CodeWouldBlock, "fake.accept", "", nil)
}

func (b *SelectBackend) Connect(int, netip.AddrPort) error { return nil }

func (b *SelectBackend) Send(_ int, p []byte, _ api.MsgFlags) (int, error) {
	return len(p), nil
}

func (b *SelectBackend) Recv(int, []byte, api.MsgFlags) (int, error) { return 0, nil }
func (b *SelectBackend) Shutdown(int) error                          { return nil }

func (b *SelectBackend) Close(fd int) error {
	b.mu.Lock()
	b.Closed[fd]++
	b.mu.Unlock()
	return nil
}

func (b *SelectBackend) SockName(int) (netip.AddrPort, error) {
	return netip.MustParseAddrPort("127.0.0.1:21"), nil
}

func (b *SelectBackend) SetOption(_ int, opt api.SockOption, enable bool) error {
	if opt == b.Unsupported {
		return api.NewError(api.CodeNotSupported, "fake.setsockopt", opt.String(), nil)
	}
	b.mu.Lock()
	b.Opts[opt] = enable
	b.mu.Unlock()
	return nil
}

func (b *SelectBackend) SetSize() int { return b.size }

// Select keeps only the scripted ready descriptors in r and w and never
// reports exceptional conditions.
func (b *SelectBackend) Select(nfd int, r, w, e *socket.FDSet, _ int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.LastNfd = nfd
	b.LastR, b.LastW = nil, nil
	n := 0
	for fd := 0; fd < nfd; fd++ {
		if r.IsSet(fd) {
			b.LastR = append(b.LastR, fd)
			if !b.ReadyR[fd] {
				r.Clear(fd)
			}
		}
		if w.IsSet(fd) {
			b.LastW = append(b.LastW, fd)
			if !b.ReadyW[fd] {
				w.Clear(fd)
			}
		}
		e.Clear(fd)
		if r.IsSet(fd) || w.IsSet(fd) {
			n++
		}
	}
	return n, nil
}
