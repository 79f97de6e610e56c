// File: api/socket.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral socket vocabulary. Engine code is parameterized only by
// these values, never by native constants.

package api

import "strings"

// Domain is the socket address family.
type Domain int

const (
	DomainInet Domain = iota
	DomainInet6
)

// SockType is the socket type.
type SockType int

const (
	SockStream SockType = iota
	SockDgram
)

// Protocol selects the transport protocol; ProtoDefault lets the stack pick.
type Protocol int

const (
	ProtoDefault Protocol = iota
	ProtoTCP
	ProtoUDP
)

// MsgFlags modifies a single send/recv call.
type MsgFlags uint8

const (
	MsgPeek MsgFlags = 1 << iota
	MsgDontWait
)

// SockOption names a canonical socket option.
type SockOption uint8

const (
	OptReuseAddr SockOption = 1 << iota
	OptNoDelay
	OptKeepAlive
	OptThroughput
	OptNonBlocking
)

func (o SockOption) String() string {
	switch o {
	case OptReuseAddr:
		return "reuseaddr"
	case OptNoDelay:
		return "nodelay"
	case OptKeepAlive:
		return "keepalive"
	case OptThroughput:
		return "throughput"
	case OptNonBlocking:
		return "nonblocking"
	}
	return "unknown"
}

// SockOptions is a set of SockOption bits.
type SockOptions uint8

// Has reports whether o is in the set.
func (s SockOptions) Has(o SockOption) bool { return uint8(s)&uint8(o) != 0 }

func (s SockOptions) String() string {
	var names []string
	for _, o := range []SockOption{OptReuseAddr, OptNoDelay, OptKeepAlive, OptThroughput, OptNonBlocking} {
		if s.Has(o) {
			names = append(names, o.String())
		}
	}
	return strings.Join(names, ",")
}

// AllSockOptions is the full canonical option set.
const AllSockOptions = SockOptions(OptReuseAddr | OptNoDelay | OptKeepAlive | OptThroughput | OptNonBlocking)

// PollEvent is a readiness condition bit.
type PollEvent uint8

const (
	PollIn PollEvent = 1 << iota
	PollOut
	PollErr
)

// PollStrategy selects how Poll waits.
type PollStrategy int

const (
	PollAuto   PollStrategy = iota // native when available, else select emulation
	PollNative                     // direct multiplexed wait
	PollSelect                     // fixed-size readiness bitmap
)

func (p PollStrategy) String() string {
	switch p {
	case PollNative:
		return "native"
	case PollSelect:
		return "select"
	}
	return "auto"
}

// SocketCaps describes what a socket backend supports on this build.
type SocketCaps struct {
	Options    SockOptions
	NativePoll bool
	SelectPoll bool
	SelectSize int // fixed slot capacity of the select bitmap
}
