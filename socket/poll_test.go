package socket_test

import (
	"net/netip"
	"testing"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/control"
	"github.com/momentics/hioload-ftp/fake"
	"github.com/momentics/hioload-ftp/socket"
)

func openN(t *testing.T, tr *socket.Transport, n int) []*socket.Socket {
	t.Helper()
	out := make([]*socket.Socket, n)
	for i := range out {
		s, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = s
	}
	return out
}

func TestAutoPicksSelectWithoutNativePoll(t *testing.T) {
	tr, err := socket.New(fake.NewSelectBackend(64))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Strategy() != api.PollSelect {
		t.Fatalf("strategy = %v", tr.Strategy())
	}
	if _, err := socket.New(fake.NewSelectBackend(64), socket.WithStrategy(api.PollNative)); api.CodeOf(err) != api.CodeNotSupported {
		t.Fatalf("native on select-only leaf: %v", err)
	}
}

func TestSelectEmulation(t *testing.T) {
	b := fake.NewSelectBackend(64)
	tr, _ := socket.New(b)
	s := openN(t, tr, 3) // fds 3, 4, 5
	b.ReadyR[3] = true
	b.ReadyW[5] = true

	closed := s[2]
	entries := []socket.PollEntry{
		{Sock: s[0], Events: api.PollIn},
		{Sock: nil, Events: api.PollIn},
		{Sock: s[1], Events: api.PollIn | api.PollOut},
		{Sock: s[2], Events: api.PollOut},
	}
	n, err := tr.Poll(entries, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("ready = %d, want 2", n)
	}
	if b.LastNfd != 6 {
		t.Fatalf("nfd = %d, want 6", b.LastNfd)
	}
	if entries[0].REvents != api.PollIn || entries[2].REvents != 0 || entries[3].REvents != api.PollOut {
		t.Fatalf("revents %+v", entries)
	}

	closed.Close()
	n, _ = tr.Poll(entries, 0)
	if n != 1 || entries[3].REvents != 0 {
		t.Fatalf("closed socket took part: n=%d %+v", n, entries[3])
	}
	if b.LastNfd != 5 {
		t.Fatalf("nfd after close = %d, want 5", b.LastNfd)
	}
}

func TestSelectUnrequestedEventsNotReported(t *testing.T) {
	b := fake.NewSelectBackend(64)
	tr, _ := socket.New(b)
	s := openN(t, tr, 1)
	b.ReadyR[3], b.ReadyW[3] = true, true
	entries := []socket.PollEntry{{Sock: s[0], Events: api.PollOut}}
	if n, _ := tr.Poll(entries, 0); n != 1 || entries[0].REvents != api.PollOut {
		t.Fatalf("n=%d rev=%v", n, entries[0].REvents)
	}
	if len(b.LastR) != 0 {
		t.Fatalf("read bitmap populated: %v", b.LastR)
	}
}

func TestSelectCapacityViolation(t *testing.T) {
	b := fake.NewSelectBackend(4)
	tr, _ := socket.New(b)
	s := openN(t, tr, 2) // fds 3 and 4; 4 is out of range
	defer func() {
		ce, ok := recover().(*api.ContractError)
		if !ok {
			t.Fatal("expected contract violation")
		}
		if ce.Op != "socket.poll" {
			t.Fatalf("op = %q", ce.Op)
		}
	}()
	tr.Poll([]socket.PollEntry{{Sock: s[0], Events: api.PollIn}, {Sock: s[1], Events: api.PollIn}}, 0)
}

func TestOptionSettersBestEffort(t *testing.T) {
	b := fake.NewSelectBackend(64)
	b.Unsupported = api.OptKeepAlive
	tr, _ := socket.New(b)
	s := openN(t, tr, 1)[0]

	if err := s.SetThroughput(true); err != nil {
		t.Fatalf("option absent from caps: %v", err)
	}
	if _, touched := b.Opts[api.OptThroughput]; touched {
		t.Fatal("backend called for an option it does not advertise")
	}
	if err := s.SetKeepAlive(true); err != nil {
		t.Fatalf("runtime not-supported: %v", err)
	}
	if err := s.SetNoDelay(true); err != nil || !b.Opts[api.OptNoDelay] {
		t.Fatalf("nodelay: %v", err)
	}
	if err := s.SetNonBlocking(true); err != nil || !s.NonBlocking() {
		t.Fatalf("nonblocking: %v", err)
	}
}

func TestStateMachine(t *testing.T) {
	tr, _ := socket.New(fake.NewSelectBackend(64))
	s := openN(t, tr, 1)[0]
	if s.State() != socket.StateOpen {
		t.Fatalf("state = %v", s.State())
	}
	if err := s.Listen(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Connect(netip.MustParseAddrPort("127.0.0.1:21")); api.CodeOf(err) != api.CodeInvalidArgument {
		t.Fatalf("connect on listener: %v", err)
	}
	if err := s.Bind(netip.MustParseAddrPort("127.0.0.1:0")); api.CodeOf(err) != api.CodeInvalidArgument {
		t.Fatalf("bind on listener: %v", err)
	}
	if _, _, err := s.Accept(); api.CodeOf(err) != api.CodeWouldBlock {
		t.Fatalf("accept: %v", err)
	}
}

func TestCloseOnceReachesBackend(t *testing.T) {
	b := fake.NewSelectBackend(64)
	tr, _ := socket.New(b)
	s := openN(t, tr, 1)[0]
	s.Close()
	s.Close()
	if b.Closed[3] != 1 {
		t.Fatalf("backend close count = %d", b.Closed[3])
	}
	if s.Valid() {
		t.Fatal("closed socket still valid")
	}
}

func TestTransportMetrics(t *testing.T) {
	m := control.NewMetricsRegistry()
	tr, _ := socket.New(fake.NewSelectBackend(64), socket.WithMetrics(m))
	s := openN(t, tr, 2)
	s[0].Send([]byte("hello"), 0)
	if got := m.Counter("socket.open"); got != 2 {
		t.Fatalf("socket.open = %d", got)
	}
	if got := m.Counter("socket.bytes_sent"); got != 5 {
		t.Fatalf("socket.bytes_sent = %d", got)
	}
}
