//go:build !unix

// File: internal/errno/errno_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-unix targets rely on the io/fs sentinels only.

package errno

import "github.com/momentics/hioload-ftp/api"

func fromErrno(err error) (api.ErrorCode, bool) {
	return api.CodeOK, false
}
