// File: socket/doc.go
// Package socket
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket transport abstraction: one lifecycle (open, bind, listen, accept,
// connect, send, recv, close), best-effort option setters and a multiplexed
// poll, dispatched to exactly one native leaf backend per platform.
//
// Leaves live in sub-packages (posix, ipc) and only implement Backend plus
// one or both poll strategies. The Transport resolves the strategy once at
// construction; callers never see which one is in effect.
//
// The package performs no locking and starts no goroutines. Handles are owned
// by whoever opened or accepted them.
package socket
