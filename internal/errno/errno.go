// File: internal/errno/errno.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package errno

import (
	"errors"
	"io/fs"
	"os"

	"github.com/momentics/hioload-ftp/api"
)

// Code classifies err into the canonical taxonomy.
func Code(err error) api.ErrorCode {
	if err == nil {
		return api.CodeOK
	}
	var ae *api.Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	if c, ok := fromErrno(err); ok {
		return c
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return api.CodeNotFound
	case errors.Is(err, fs.ErrExist):
		return api.CodeExists
	case errors.Is(err, fs.ErrPermission):
		return api.CodePermission
	case errors.Is(err, fs.ErrInvalid):
		return api.CodeInvalidArgument
	case errors.Is(err, fs.ErrClosed):
		return api.CodeBadHandle
	case errors.Is(err, os.ErrDeadlineExceeded):
		return api.CodeTimeout
	case errors.Is(err, errors.ErrUnsupported):
		return api.CodeNotSupported
	}
	return api.CodeIO
}

// Wrap converts err into an *api.Error tagged with op and path. The native
// value is flattened to its message so callers cannot match on it.
func Wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var ae *api.Error
	if errors.As(err, &ae) {
		return api.WithOp(ae, op, path)
	}
	return api.NewError(Code(err), op, path, errors.New(native(err)))
}

// native strips *fs.PathError and friends down to the innermost message.
func native(err error) string {
	for {
		u := errors.Unwrap(err)
		if u == nil {
			return err.Error()
		}
		err = u
	}
}
