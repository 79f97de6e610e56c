//go:build unix

// File: internal/errno/errno_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// errno mapping for unix targets.

package errno

import (
	"errors"

	"github.com/momentics/hioload-ftp/api"
	"golang.org/x/sys/unix"
)

var table = map[unix.Errno]api.ErrorCode{
	unix.EAGAIN:       api.CodeWouldBlock,
	unix.EINPROGRESS:  api.CodeWouldBlock,
	unix.EALREADY:     api.CodeWouldBlock,
	unix.EINTR:        api.CodeWouldBlock,
	unix.ECONNRESET:   api.CodeConnReset,
	unix.ECONNABORTED: api.CodeConnReset,
	unix.ENOTCONN:     api.CodeConnReset,
	unix.EPIPE:        api.CodeBrokenPipe,
	unix.ECONNREFUSED: api.CodeConnRefused,
	unix.EADDRINUSE:   api.CodeAddrInUse,
	unix.EACCES:       api.CodePermission,
	unix.EPERM:        api.CodePermission,
	unix.ENOENT:       api.CodeNotFound,
	unix.EEXIST:       api.CodeExists,
	unix.ENOTDIR:      api.CodeNotDirectory,
	unix.EISDIR:       api.CodeIsDirectory,
	unix.ENOTEMPTY:    api.CodeNotEmpty,
	unix.ENOSPC:       api.CodeNoSpace,
	unix.EDQUOT:       api.CodeNoSpace,
	unix.EINVAL:       api.CodeInvalidArgument,
	unix.EFAULT:       api.CodeInvalidArgument,
	unix.EAFNOSUPPORT: api.CodeNotSupported,
	unix.ENOPROTOOPT:  api.CodeNotSupported,
	unix.EOPNOTSUPP:   api.CodeNotSupported,
	unix.ENOSYS:       api.CodeNotSupported,
	unix.EROFS:        api.CodeReadOnly,
	unix.EXDEV:        api.CodeCrossDevice,
	unix.EBADF:        api.CodeBadHandle,
	unix.ENOTSOCK:     api.CodeBadHandle,
	unix.ETIMEDOUT:    api.CodeTimeout,
	unix.EBUSY:        api.CodeBusy,
	unix.EMFILE:       api.CodeBusy,
	unix.ENFILE:       api.CodeBusy,
	unix.EIO:          api.CodeIO,
}

// FromErrno maps a raw errno value.
func FromErrno(e unix.Errno) api.ErrorCode {
	if c, ok := table[e]; ok {
		return c
	}
	return api.CodeIO
}

func fromErrno(err error) (api.ErrorCode, bool) {
	var e unix.Errno
	if errors.As(err, &e) {
		return FromErrno(e), true
	}
	return api.CodeOK, false
}
