// File: socket/posix/doc.go
// Package posix
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// POSIX socket leaf built on golang.org/x/sys/unix. Offers both poll
// strategies: poll(2) as the native multiplexed wait and select(2) over a
// fixed-size fd_set. Only linux builds carry the implementation; other
// targets get a constructor that reports api.CodeNotSupported.
package posix
