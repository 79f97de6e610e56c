//go:build !linux

// File: socket/posix/posix_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub implementation for unsupported platforms.

package posix

import (
	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/socket"
)

// New reports that the POSIX leaf is unavailable on this platform.
func New() (socket.Backend, error) {
	return nil, api.NewError(api.CodeNotSupported, "posix.new", "", nil)
}
