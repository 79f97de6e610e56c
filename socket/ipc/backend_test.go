package ipc_test

import (
	"bytes"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/socket"
	"github.com/momentics/hioload-ftp/socket/ipc"
)

var any4 = netip.MustParseAddrPort("127.0.0.1:0")

func newTransport(t *testing.T, opts ...ipc.Option) (*socket.Transport, *ipc.Backend) {
	t.Helper()
	b := ipc.New(opts...)
	tr, err := socket.New(b)
	if err != nil {
		t.Fatal(err)
	}
	return tr, b
}

func listen(t *testing.T, tr *socket.Transport) (*socket.Socket, netip.AddrPort) {
	t.Helper()
	ln, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	if err != nil {
		t.Fatal(err)
	}
	if err := ln.Bind(any4); err != nil {
		t.Fatal(err)
	}
	if err := ln.Listen(8); err != nil {
		t.Fatal(err)
	}
	addr, err := ln.SockName()
	if err != nil {
		t.Fatal(err)
	}
	return ln, addr
}

func TestLoopbackRoundTrip(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()

	c, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoTCP)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Connect(addr); err != nil {
		t.Fatal(err)
	}
	srv, peer, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	local, _ := c.SockName()
	if peer != local {
		t.Fatalf("peer %v != client local %v", peer, local)
	}

	payload := bytes.Repeat([]byte("0123456789"), 1000) // spans several segments
	if n, err := c.Send(payload, 0); err != nil || n != len(payload) {
		t.Fatalf("send n=%d err=%v", n, err)
	}
	got := make([]byte, 0, len(payload))
	buf := make([]byte, 3000)
	for len(got) < len(payload) {
		n, err := srv.Recv(buf, 0)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}

	// reply direction
	if _, err := srv.Send([]byte("ok"), 0); err != nil {
		t.Fatal(err)
	}
	n, err := c.Recv(buf, 0)
	if err != nil || string(buf[:n]) != "ok" {
		t.Fatalf("reply %q %v", buf[:n], err)
	}

	c.Close()
	n, err = srv.Recv(buf, 0)
	if err != nil || n != 0 {
		t.Fatalf("expected orderly close, n=%d err=%v", n, err)
	}
}

func TestRecvPeekKeepsData(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()
	c, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	_ = c.Connect(addr)
	srv, _, _ := ln.Accept()
	defer srv.Close()

	_, _ = c.Send([]byte("USER anonymous\r\n"), 0)
	buf := make([]byte, 4)
	if n, err := srv.Recv(buf, api.MsgPeek); err != nil || string(buf[:n]) != "USER" {
		t.Fatalf("peek %q %v", buf[:n], err)
	}
	all := make([]byte, 64)
	n, _ := srv.Recv(all, 0)
	if string(all[:n]) != "USER anonymous\r\n" {
		t.Fatalf("got %q", all[:n])
	}
}

func TestPollZeroTimeout(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()
	c, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	_ = c.Connect(addr)
	srv, _, _ := ln.Accept()
	defer srv.Close()

	entries := []socket.PollEntry{
		{Sock: srv, Events: api.PollIn},
		{Sock: nil, Events: api.PollIn | api.PollOut},
		{Sock: ln, Events: api.PollIn},
	}
	start := time.Now()
	n, err := tr.Poll(entries, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected no ready entries, got %d: %+v", n, entries)
	}
	if entries[1].REvents != 0 {
		t.Fatal("unused slot reported events")
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatal("zero-timeout poll did not return promptly")
	}
}

func TestPollTimeoutElapses(t *testing.T) {
	tr, _ := newTransport(t)
	ln, _ := listen(t, tr)
	defer ln.Close()
	start := time.Now()
	n, err := tr.Poll([]socket.PollEntry{{Sock: ln, Events: api.PollIn}}, 30)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if d := time.Since(start); d < 25*time.Millisecond {
		t.Fatalf("returned after %v, before the timeout", d)
	}
}

func TestPollWakesOnConnect(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		c, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
		if err != nil {
			t.Error(err)
			return
		}
		if err := c.Connect(addr); err != nil {
			t.Error(err)
		}
	}()
	entries := []socket.PollEntry{{Sock: ln, Events: api.PollIn}}
	n, err := tr.Poll(entries, -1)
	wg.Wait()
	if err != nil || n != 1 || entries[0].REvents != api.PollIn {
		t.Fatalf("n=%d err=%v rev=%v", n, err, entries[0].REvents)
	}
}

func TestNonBlockingConnectWritable(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()
	c, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	if err := c.SetNonBlocking(true); err != nil {
		t.Fatal(err)
	}
	if !c.NonBlocking() {
		t.Fatal("non-blocking flag not recorded")
	}
	if err := c.Connect(addr); err != nil && !errors.Is(err, api.ErrWouldBlock) {
		t.Fatal(err)
	}
	entries := []socket.PollEntry{{Sock: c, Events: api.PollOut}}
	n, err := tr.Poll(entries, 0)
	if err != nil || n != 1 || entries[0].REvents&api.PollOut == 0 {
		t.Fatalf("n=%d err=%v rev=%v", n, err, entries[0].REvents)
	}
}

func TestNonBlockingAcceptAndRecv(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()
	_ = ln.SetNonBlocking(true)
	if _, _, err := ln.Accept(); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("accept: %v", err)
	}
	c, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	_ = c.Connect(addr)
	srv, _, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	_ = srv.SetNonBlocking(true)
	if _, err := srv.Recv(make([]byte, 8), 0); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("recv: %v", err)
	}
	if _, err := c.Recv(make([]byte, 8), api.MsgDontWait); !errors.Is(err, api.ErrWouldBlock) {
		t.Fatalf("recv dontwait: %v", err)
	}
}

func TestThroughputUnsupportedIsSuccess(t *testing.T) {
	tr, _ := newTransport(t)
	if tr.Caps().Options.Has(api.OptThroughput) {
		t.Fatal("ipc leaf must not advertise throughput")
	}
	s, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer s.Close()
	if err := s.SetThroughput(true); err != nil {
		t.Fatalf("unsupported option must succeed, got %v", err)
	}
	if err := s.SetNoDelay(true); err != nil {
		t.Fatal(err)
	}
	if err := s.SetKeepAlive(true); err != nil {
		t.Fatal(err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	tr, b := newTransport(t)
	s, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if b.Service().Open() != 0 {
		t.Fatal("descriptor leaked")
	}
	var zero socket.Socket
	if err := zero.Close(); err != nil {
		t.Fatalf("close of unopened socket: %v", err)
	}
	if _, err := s.Send([]byte("x"), 0); !errors.Is(err, api.ErrBadHandle) {
		t.Fatalf("send after close: %v", err)
	}
}

func TestAcceptRequiresListening(t *testing.T) {
	tr, _ := newTransport(t)
	s, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer s.Close()
	if _, _, err := s.Accept(); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("got %v", err)
	}
}

func TestNilHandleIsContractViolation(t *testing.T) {
	defer func() {
		if _, ok := recover().(*api.ContractError); !ok {
			t.Fatal("expected *api.ContractError panic")
		}
	}()
	var s *socket.Socket
	_, _ = s.Send(nil, 0)
}

func TestConnectRefused(t *testing.T) {
	tr, _ := newTransport(t)
	c, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	err := c.Connect(netip.MustParseAddrPort("127.0.0.1:2121"))
	if !errors.Is(err, api.ErrConnRefused) {
		t.Fatalf("got %v", err)
	}
}

func TestServiceResultCodesAreDecoded(t *testing.T) {
	tr, b := newTransport(t)
	b.Service().InjectResult(ipc.ResultBadAddress)
	_, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("bad address: %v", err)
	}
	b.Service().InjectResult(0xBEEF)
	_, err = tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	if !errors.Is(err, api.ErrBrokenPipe) {
		t.Fatalf("unknown result: %v", err)
	}
}

func TestDescriptorTableFull(t *testing.T) {
	tr, _ := newTransport(t, ipc.WithMaxSockets(2))
	a, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	b, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer a.Close()
	defer b.Close()
	if _, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault); !errors.Is(err, api.ErrBusy) {
		t.Fatalf("got %v", err)
	}
}

func TestSendToClosedPeer(t *testing.T) {
	tr, _ := newTransport(t)
	ln, addr := listen(t, tr)
	defer ln.Close()
	c, _ := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	_ = c.Connect(addr)
	srv, _, _ := ln.Accept()
	srv.Close()
	if _, err := c.Send([]byte("x"), 0); !errors.Is(err, api.ErrBrokenPipe) {
		t.Fatalf("got %v", err)
	}
}

func TestSelectStrategyUnavailable(t *testing.T) {
	if _, err := socket.New(ipc.New(), socket.WithStrategy(api.PollSelect)); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("got %v", err)
	}
}

func TestSharedServiceAcrossTransports(t *testing.T) {
	svc := ipc.NewService(8)
	trA, _ := newTransport(t, ipc.WithService(svc))
	trB, _ := newTransport(t, ipc.WithService(svc))
	ln, addr := listen(t, trA)
	defer ln.Close()
	c, _ := trB.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	defer c.Close()
	if err := c.Connect(addr); err != nil {
		t.Fatal(err)
	}
	if svc.Open() != 3 {
		t.Fatalf("open = %d", svc.Open())
	}
}

func TestConcurrentFailuresKeepTheirOwnErrno(t *testing.T) {
	svc := ipc.NewService(ipc.DefaultMaxSockets)
	a, b := ipc.New(ipc.WithService(svc)), ipc.New(ipc.WithService(svc))
	fd, err := b.Socket(api.DomainInet, api.SockStream, api.ProtoDefault)
	if err != nil {
		t.Fatal(err)
	}
	refused := netip.MustParseAddrPort("127.0.0.1:1")

	const rounds = 2000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := a.Close(9999); api.CodeOf(err) != api.CodeBadHandle {
				t.Errorf("close: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := b.Connect(fd, refused); api.CodeOf(err) != api.CodeConnRefused {
				t.Errorf("connect: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}
