// Package api
// Author: momentics <momentics@gmail.com>
//
// Canonical cross-platform error taxonomy. Every leaf backend translates its
// native error representation into one of these codes before returning.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a canonical error condition.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	CodeWouldBlock
	CodeConnReset
	CodeBrokenPipe
	CodeConnRefused
	CodeAddrInUse
	CodePermission
	CodeNotFound
	CodeExists
	CodeNotDirectory
	CodeIsDirectory
	CodeNotEmpty
	CodeNoSpace
	CodeInvalidArgument
	CodeNotSupported
	CodeReadOnly
	CodeModeMismatch
	CodeCrossDevice
	CodeBadHandle
	CodeTimeout
	CodeBusy
	CodeIO
	CodeInternal
)

var codeNames = [...]string{
	CodeOK:              "ok",
	CodeWouldBlock:      "would block",
	CodeConnReset:       "connection reset",
	CodeBrokenPipe:      "broken pipe",
	CodeConnRefused:     "connection refused",
	CodeAddrInUse:       "address in use",
	CodePermission:      "permission denied",
	CodeNotFound:        "not found",
	CodeExists:          "already exists",
	CodeNotDirectory:    "not a directory",
	CodeIsDirectory:     "is a directory",
	CodeNotEmpty:        "directory not empty",
	CodeNoSpace:         "no space left",
	CodeInvalidArgument: "invalid argument",
	CodeNotSupported:    "not supported",
	CodeReadOnly:        "read-only",
	CodeModeMismatch:    "handle mode mismatch",
	CodeCrossDevice:     "cross-device operation",
	CodeBadHandle:       "bad handle",
	CodeTimeout:         "timed out",
	CodeBusy:            "resource busy",
	CodeIO:              "i/o error",
	CodeInternal:        "internal error",
}

func (c ErrorCode) String() string {
	if c >= 0 && int(c) < len(codeNames) && codeNames[c] != "" {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Sentinels for errors.Is. Any *Error matches the sentinel with the same code.
var (
	ErrWouldBlock      = &Error{Code: CodeWouldBlock}
	ErrConnReset       = &Error{Code: CodeConnReset}
	ErrBrokenPipe      = &Error{Code: CodeBrokenPipe}
	ErrConnRefused     = &Error{Code: CodeConnRefused}
	ErrAddrInUse       = &Error{Code: CodeAddrInUse}
	ErrPermission      = &Error{Code: CodePermission}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrExists          = &Error{Code: CodeExists}
	ErrNotDirectory    = &Error{Code: CodeNotDirectory}
	ErrIsDirectory     = &Error{Code: CodeIsDirectory}
	ErrNotEmpty        = &Error{Code: CodeNotEmpty}
	ErrNoSpace         = &Error{Code: CodeNoSpace}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument}
	ErrNotSupported    = &Error{Code: CodeNotSupported}
	ErrReadOnly        = &Error{Code: CodeReadOnly}
	ErrModeMismatch    = &Error{Code: CodeModeMismatch}
	ErrCrossDevice     = &Error{Code: CodeCrossDevice}
	ErrBadHandle       = &Error{Code: CodeBadHandle}
	ErrTimeout         = &Error{Code: CodeTimeout}
	ErrBusy            = &Error{Code: CodeBusy}
	ErrIO              = &Error{Code: CodeIO}
	ErrInternal        = &Error{Code: CodeInternal}
)

// Error is the only error type returned across the abstraction boundary.
type Error struct {
	Code ErrorCode
	Op   string // operation, e.g. "socket.recv" or "vfs.open"
	Path string // path or endpoint, optional
	Err  error  // underlying cause, never a platform sentinel the caller must decode
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		if e.Path != "" {
			msg = e.Op + " " + e.Path + ": " + msg
		} else {
			msg = e.Op + ": " + msg
		}
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, op, path string, cause error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: cause}
}

// WithOp returns a copy of err annotated with op and path. Non-*Error values are
// classified as CodeIO so nothing else crosses the boundary.
func WithOp(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.Path == "" {
			out.Path = path
		}
		return &out
	}
	return &Error{Code: CodeIO, Op: op, Path: path, Err: err}
}

// CodeOf extracts the canonical code of err. nil yields CodeOK, foreign
// errors yield CodeIO.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeIO
}
