// File: socket/ipc/service.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-process socket service. It answers in the style of an IPC-backed
// console network service: every call returns a raw int, -1 on failure with
// the detail left in the service's last errno; when that errno is itself -1
// the real detail is the last service result code.

package ipc

import (
	"net/netip"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-ftp/pool"
)

// Service errno values. The service reuses Linux numbering.
const (
	eBADF         = 9
	eAGAIN        = 11
	eFAULT        = 14
	eINVAL        = 22
	ePIPE         = 32
	eOPNOTSUPP    = 95
	eAFNOSUPPORT  = 97
	eADDRINUSE    = 98
	eADDRNOTAVAIL = 99
	eCONNRESET    = 104
	eISCONN       = 106
	eNOTCONN      = 107
	eCONNREFUSED  = 111
)

// Service result codes reported when errno is the -1 sentinel.
const (
	ResultFdTableFull uint32 = 0xD201
	ResultBadAddress  uint32 = 0xD401
	ResultBusy        uint32 = 0x10601
)

const (
	fGetfl     = 3
	fSetfl     = 4
	oNonblock  = 0x800
	pollIn     = 0x001
	pollOut    = 0x004
	pollErr    = 0x008
	pollHup    = 0x010
	pollNval   = 0x020
	segSize    = 4096
	maxRxBytes = 256 << 10
	firstPort  = 49152
)

type sockState int

const (
	sCreated sockState = iota
	sBound
	sListening
	sConnected
)

type sock struct {
	fd       int
	v6       bool
	state    sockState
	nonblock bool
	opts     map[int]int

	local, remote netip.AddrPort

	backlog    *queue.Queue // *sock awaiting accept
	backlogMax int

	peer    *sock
	rx      *queue.Queue // []byte segments
	rxOff   int
	rxBytes int
	eof     bool // peer shut down its write side
	reset   bool // connection torn down abnormally
	closed  bool
}

// pollsd is one slot of a service poll request.
type pollsd struct {
	fd      int
	events  int
	revents int
}

// Service is the in-process socket table.
type Service struct {
	mu     sync.Mutex
	cond   *sync.Cond
	socks  map[int]*sock
	ports  map[uint16]*sock
	maxFds int

	lastErrno  int
	lastResult uint32
	inject     uint32

	segs *pool.BytePool
}

// NewService creates a service with room for maxFds open sockets.
func NewService(maxFds int) *Service {
	s := &Service{
		socks:  make(map[int]*sock),
		ports:  make(map[uint16]*sock),
		maxFds: maxFds,
		segs:   pool.NewBytePool(segSize),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// InjectResult makes the next service call fail with the -1 errno sentinel
// and the given result code.
func (s *Service) InjectResult(code uint32) {
	s.mu.Lock()
	s.inject = code
	s.mu.Unlock()
}

// Open reports the number of live sockets.
func (s *Service) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.socks)
}

// LastError returns the errno and result code left by the last failure.
func (s *Service) LastError() (int, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErrno, s.lastResult
}

// status is the outcome of one service call. On failure rc is -1 and errno
// holds the error, or -1 with res carrying the result code. It is captured
// under the same lock as the call itself.
type status struct {
	rc    int
	errno int
	res   uint32
}

func done(rc int) status { return status{rc: rc} }

func (s *Service) fail(e int) status {
	s.lastErrno = e
	return status{rc: -1, errno: e}
}

func (s *Service) failResult(code uint32) status {
	s.lastErrno = -1
	s.lastResult = code
	return status{rc: -1, errno: -1, res: code}
}

// enter takes the lock and fires a pending injected failure. The caller
// unlocks in every case.
func (s *Service) enter() (status, bool) {
	s.mu.Lock()
	if s.inject != 0 {
		code := s.inject
		s.inject = 0
		return s.failResult(code), false
	}
	return status{}, true
}

func (s *Service) allocFd() int {
	for fd := 1; fd <= s.maxFds; fd++ {
		if _, used := s.socks[fd]; !used {
			return fd
		}
	}
	return -1
}

func (s *Service) allocPort() uint16 {
	for p := uint32(firstPort); p <= 65535; p++ {
		if _, used := s.ports[uint16(p)]; !used {
			return uint16(p)
		}
	}
	return 0
}

func (s *Service) lookup(fd int) *sock {
	return s.socks[fd]
}

func (s *Service) socket(v6, stream bool) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	if !stream {
		return s.fail(eOPNOTSUPP)
	}
	fd := s.allocFd()
	if fd < 0 {
		return s.failResult(ResultFdTableFull)
	}
	s.socks[fd] = &sock{fd: fd, v6: v6, opts: make(map[int]int)}
	return done(fd)
}

func isLocal(a netip.Addr) bool {
	return a.IsLoopback() || a.IsUnspecified()
}

func (s *Service) bind(fd int, addr netip.AddrPort) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	if !addr.Addr().IsValid() {
		return s.failResult(ResultBadAddress)
	}
	if !isLocal(addr.Addr()) {
		return s.fail(eADDRNOTAVAIL)
	}
	if sk.state != sCreated {
		return s.fail(eINVAL)
	}
	port := addr.Port()
	if port == 0 {
		if port = s.allocPort(); port == 0 {
			return s.fail(eADDRINUSE)
		}
	} else if _, used := s.ports[port]; used {
		return s.fail(eADDRINUSE)
	}
	sk.local = netip.AddrPortFrom(addr.Addr(), port)
	sk.state = sBound
	s.ports[port] = sk
	return done(0)
}

func (s *Service) listen(fd, backlog int) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	switch sk.state {
	case sCreated:
		port := s.allocPort()
		if port == 0 {
			return s.fail(eADDRINUSE)
		}
		sk.local = netip.AddrPortFrom(netip.IPv4Unspecified(), port)
		s.ports[port] = sk
	case sBound:
	default:
		return s.fail(eINVAL)
	}
	if backlog < 1 {
		backlog = 1
	}
	sk.state = sListening
	sk.backlog = queue.New()
	sk.backlogMax = backlog
	return done(0)
}

// accept returns the new fd, filling peer.
func (s *Service) accept(fd int, peer *netip.AddrPort) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	for {
		sk := s.lookup(fd)
		if sk == nil {
			return s.fail(eBADF)
		}
		if sk.state != sListening {
			return s.fail(eINVAL)
		}
		if sk.backlog.Length() > 0 {
			c := sk.backlog.Remove().(*sock)
			*peer = c.remote
			return done(c.fd)
		}
		if sk.nonblock {
			return s.fail(eAGAIN)
		}
		s.cond.Wait()
	}
}

func (s *Service) connect(fd int, addr netip.AddrPort) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	if sk.state == sConnected {
		return s.fail(eISCONN)
	}
	if sk.state == sListening {
		return s.fail(eINVAL)
	}
	if !addr.Addr().IsValid() {
		return s.failResult(ResultBadAddress)
	}
	if !isLocal(addr.Addr()) {
		return s.fail(eCONNREFUSED)
	}
	ln := s.ports[addr.Port()]
	if ln == nil || ln.state != sListening || ln.backlog.Length() >= ln.backlogMax {
		return s.fail(eCONNREFUSED)
	}
	nfd := s.allocFd()
	if nfd < 0 {
		return s.failResult(ResultFdTableFull)
	}
	if sk.state == sCreated {
		port := s.allocPort()
		if port == 0 {
			return s.fail(eADDRINUSE)
		}
		sk.local = netip.AddrPortFrom(addr.Addr(), port)
		s.ports[port] = sk
	}
	srv := &sock{
		fd:     nfd,
		v6:     ln.v6,
		state:  sConnected,
		opts:   make(map[int]int),
		local:  netip.AddrPortFrom(addr.Addr(), ln.local.Port()),
		remote: sk.local,
		rx:     queue.New(),
	}
	s.socks[nfd] = srv
	sk.state = sConnected
	sk.remote = srv.local
	sk.rx = queue.New()
	sk.peer, srv.peer = srv, sk
	ln.backlog.Add(srv)
	s.cond.Broadcast()
	return done(0)
}

func (s *Service) send(fd int, p []byte, dontWait bool) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	for {
		sk := s.lookup(fd)
		if sk == nil {
			return s.fail(eBADF)
		}
		if sk.state != sConnected {
			return s.fail(eNOTCONN)
		}
		if sk.reset {
			return s.fail(eCONNRESET)
		}
		pr := sk.peer
		if pr == nil || pr.closed {
			return s.fail(ePIPE)
		}
		if pr.rxBytes < maxRxBytes {
			n := len(p)
			if room := maxRxBytes - pr.rxBytes; n > room {
				n = room
			}
			for off := 0; off < n; {
				seg := s.segs.GetBuffer()
				c := copy(seg, p[off:n])
				pr.rx.Add(seg[:c])
				off += c
			}
			pr.rxBytes += n
			s.cond.Broadcast()
			return done(n)
		}
		if sk.nonblock || dontWait {
			return s.fail(eAGAIN)
		}
		s.cond.Wait()
	}
}

func (s *Service) recv(fd int, p []byte, peek, dontWait bool) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	for {
		sk := s.lookup(fd)
		if sk == nil {
			return s.fail(eBADF)
		}
		if sk.state != sConnected {
			return s.fail(eNOTCONN)
		}
		if sk.rxBytes > 0 {
			return done(s.drain(sk, p, peek))
		}
		if sk.reset {
			return s.fail(eCONNRESET)
		}
		if sk.eof {
			return done(0)
		}
		if sk.nonblock || dontWait {
			return s.fail(eAGAIN)
		}
		s.cond.Wait()
	}
}

func (s *Service) drain(sk *sock, p []byte, peek bool) int {
	n, off := 0, sk.rxOff
	for i := 0; i < sk.rx.Length() && n < len(p); i++ {
		seg := sk.rx.Get(i).([]byte)
		n += copy(p[n:], seg[off:])
		off = 0
	}
	if peek {
		return n
	}
	for left := n; left > 0; {
		seg := sk.rx.Peek().([]byte)
		avail := len(seg) - sk.rxOff
		if left < avail {
			sk.rxOff += left
			break
		}
		left -= avail
		sk.rxOff = 0
		sk.rx.Remove()
		s.segs.PutBuffer(seg[:cap(seg)])
	}
	sk.rxBytes -= n
	s.cond.Broadcast()
	return n
}

func (s *Service) shutdown(fd int) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	if sk.state != sConnected {
		return s.fail(eNOTCONN)
	}
	if sk.peer != nil {
		sk.peer.eof = true
	}
	sk.eof = true
	s.cond.Broadcast()
	return done(0)
}

func (s *Service) close(fd int) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	sk.closed = true
	delete(s.socks, fd)
	if sk.local.Port() != 0 && s.ports[sk.local.Port()] == sk {
		delete(s.ports, sk.local.Port())
	}
	if sk.backlog != nil {
		for sk.backlog.Length() > 0 {
			c := sk.backlog.Remove().(*sock)
			if c.peer != nil {
				c.peer.reset = true
				c.peer.peer = nil
			}
			delete(s.socks, c.fd)
		}
	}
	if pr := sk.peer; pr != nil {
		pr.eof = true
		if sk.rxBytes > 0 {
			pr.reset = true
		}
		pr.peer = nil
	}
	for sk.rx != nil && sk.rx.Length() > 0 {
		seg := sk.rx.Remove().([]byte)
		s.segs.PutBuffer(seg[:cap(seg)])
	}
	s.cond.Broadcast()
	return done(0)
}

func (s *Service) sockname(fd int, out *netip.AddrPort) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	if sk.state == sCreated {
		return s.fail(eINVAL)
	}
	*out = sk.local
	return done(0)
}

func (s *Service) setsockopt(fd, opt, val int) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	sk.opts[opt] = val
	return done(0)
}

func (s *Service) fcntl(fd, cmd, flags int) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}
	sk := s.lookup(fd)
	if sk == nil {
		return s.fail(eBADF)
	}
	switch cmd {
	case fGetfl:
		if sk.nonblock {
			return done(oNonblock)
		}
		return done(0)
	case fSetfl:
		sk.nonblock = flags&oNonblock != 0
		return done(0)
	}
	return s.fail(eINVAL)
}

// readiness computes revents for one socket. Caller holds mu.
func (s *Service) readiness(fd, events int) int {
	sk := s.lookup(fd)
	if sk == nil {
		return pollNval
	}
	rev := 0
	switch sk.state {
	case sListening:
		if sk.backlog.Length() > 0 {
			rev |= pollIn
		}
	case sConnected:
		if sk.rxBytes > 0 || sk.eof || sk.reset {
			rev |= pollIn
		}
		if pr := sk.peer; pr != nil && !pr.closed && pr.rxBytes < maxRxBytes {
			rev |= pollOut
		}
		if sk.reset {
			rev |= pollErr
		}
		if sk.peer == nil && sk.eof {
			rev |= pollHup
		}
	}
	return rev & (events | pollErr | pollHup | pollNval)
}

func (s *Service) poll(fds []pollsd, timeoutMs int) status {
	st, ok := s.enter()
	defer s.mu.Unlock()
	if !ok {
		return st
	}

	var deadline time.Time
	if timeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
		t := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer t.Stop()
	}
	for {
		ready := 0
		for i := range fds {
			fds[i].revents = 0
			if fds[i].fd < 0 {
				continue
			}
			fds[i].revents = s.readiness(fds[i].fd, fds[i].events)
			if fds[i].revents != 0 {
				ready++
			}
		}
		if ready > 0 || timeoutMs == 0 {
			return done(ready)
		}
		if timeoutMs > 0 && !time.Now().Before(deadline) {
			return done(0)
		}
		s.cond.Wait()
	}
}
