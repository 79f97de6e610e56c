// File: socket/poll.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two interchangeable poll strategies: a direct multiplexed wait and an
// emulation over a fixed-size readiness bitmap.

package socket

import (
	"github.com/momentics/hioload-ftp/api"
)

// PollEntry pairs a socket with the requested and observed conditions.
// A nil Sock marks an unused slot.
type PollEntry struct {
	Sock    *Socket
	Events  api.PollEvent
	REvents api.PollEvent
}

type poller interface {
	poll(entries []PollEntry, timeoutMs int) (int, error)
}

func resolvePoller(b Backend, want api.PollStrategy) (poller, api.PollStrategy, error) {
	np, hasNative := b.(NativePoller)
	sel, hasSelect := b.(Selector)
	switch want {
	case api.PollAuto:
		if hasNative {
			return &nativePoll{p: np}, api.PollNative, nil
		}
		if hasSelect {
			return newSelectPoll(sel), api.PollSelect, nil
		}
	case api.PollNative:
		if hasNative {
			return &nativePoll{p: np}, api.PollNative, nil
		}
	case api.PollSelect:
		if hasSelect {
			return newSelectPoll(sel), api.PollSelect, nil
		}
	}
	return nil, want, api.NewError(api.CodeNotSupported, "socket.new", want.String()+" poll", nil)
}

// pollable reports whether an entry takes part in the wait.
func pollable(e *PollEntry) bool {
	return e.Sock.Valid()
}

type nativePoll struct {
	p   NativePoller
	fds []PollFd
}

func (n *nativePoll) poll(entries []PollEntry, timeoutMs int) (int, error) {
	if cap(n.fds) < len(entries) {
		n.fds = make([]PollFd, len(entries))
	}
	fds := n.fds[:len(entries)]
	for i := range entries {
		fds[i] = PollFd{Fd: -1}
		if pollable(&entries[i]) {
			fds[i].Fd = entries[i].Sock.fd
			fds[i].Events = entries[i].Events &^ api.PollErr
		}
	}
	if _, err := n.p.Poll(fds, timeoutMs); err != nil {
		return 0, err
	}
	ready := 0
	for i := range entries {
		if fds[i].Fd < 0 {
			continue
		}
		entries[i].REvents = fds[i].REvents & (entries[i].Events | api.PollErr)
		if entries[i].REvents != 0 {
			ready++
		}
	}
	return ready, nil
}

type selectPoll struct {
	s       Selector
	r, w, e *FDSet
}

func newSelectPoll(s Selector) *selectPoll {
	size := s.SetSize()
	return &selectPoll{s: s, r: NewFDSet(size), w: NewFDSet(size), e: NewFDSet(size)}
}

func (sp *selectPoll) poll(entries []PollEntry, timeoutMs int) (int, error) {
	sp.r.Zero()
	sp.w.Zero()
	sp.e.Zero()
	maxfd := -1
	for i := range entries {
		if !pollable(&entries[i]) {
			continue
		}
		fd := entries[i].Sock.fd
		if fd >= sp.r.Size() {
			api.Violation("socket.poll", "descriptor %d exceeds select capacity %d", fd, sp.r.Size())
		}
		ev := entries[i].Events
		if ev&api.PollIn != 0 {
			sp.r.Set(fd)
		}
		if ev&api.PollOut != 0 {
			sp.w.Set(fd)
		}
		if ev&(api.PollIn|api.PollOut) != 0 {
			sp.e.Set(fd)
			if fd > maxfd {
				maxfd = fd
			}
		}
	}
	if _, err := sp.s.Select(maxfd+1, sp.r, sp.w, sp.e, timeoutMs); err != nil {
		return 0, err
	}
	ready := 0
	for i := range entries {
		if !pollable(&entries[i]) {
			continue
		}
		fd := entries[i].Sock.fd
		var rev api.PollEvent
		if sp.r.IsSet(fd) {
			rev |= api.PollIn
		}
		if sp.w.IsSet(fd) {
			rev |= api.PollOut
		}
		if sp.e.IsSet(fd) {
			rev |= api.PollErr
		}
		entries[i].REvents = rev & (entries[i].Events | api.PollErr)
		if entries[i].REvents != 0 {
			ready++
		}
	}
	return ready, nil
}
