// File: socket/ipc/doc.go
// Package ipc
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket leaf over an in-process IPC-style socket service. The service keeps
// loopback-only stream sockets in a descriptor table, queues pending
// connections and byte segments with github.com/eapache/queue and offers a
// native multiplexed poll. Failures come back as raw results that need a
// two-step decode; the leaf normalizes them into the api taxonomy so no
// service code escapes.
//
// Several transports can share one Service (WithService) to talk to each
// other, which is how tests and the inspection CLI exercise the socket layer
// without touching the host network.
package ipc
