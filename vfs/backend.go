// File: vfs/backend.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts implemented by built-in leaves and by user capability tables.

package vfs

import (
	"github.com/momentics/hioload-ftp/api"
)

// Backend serves one device. Paths handed to a backend are absolute within
// the device ("/" is the device root) and already cleaned. Returned errors
// must be *api.Error values.
type Backend interface {
	Open(path string, mode api.OpenMode) (FileImpl, error)
	OpenDir(path string) (DirImpl, error)
	Stat(path string) (api.Stat, error)
	Lstat(path string) (api.Stat, error)
	Mkdir(path string) error
	Unlink(path string) error
	Rmdir(path string) error
	Rename(src, dst string) error
	Readlink(path string) (string, error)
}

// FileImpl is the leaf side of an open file. Read returns io.EOF at end of
// stream.
type FileImpl interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(off int64) error
	Close() error
}

// DirImpl is the leaf side of a directory iteration. Next returns io.EOF
// once exhausted. Lstat resolves an entry it produced; parent is the inner
// path the directory was opened with.
type DirImpl interface {
	Next() (DirEntry, error)
	Lstat(e DirEntry, parent string) (api.Stat, error)
	Close() error
}

// Readier is optionally implemented by a FileImpl whose backing operation
// completes asynchronously.
type Readier interface {
	Ready() bool
}

// DirEntry is one name produced by a directory. Metadata is deferred to
// Dir.Lstat. Token is private to the leaf that produced the entry.
type DirEntry struct {
	Name  string
	Type  api.EntryType
	Kind  api.Kind
	Token any
}

// Table is the capability table of a user-defined device. Every call carries
// the context registered with the device, passed through untouched. File
// and directory values returned by Open and OpenDir are opaque to the core.
type Table interface {
	Open(ctx any, path string, mode api.OpenMode) (any, error)
	Read(ctx, file any, p []byte) (int, error)
	Write(ctx, file any, p []byte) (int, error)
	Seek(ctx, file any, off int64) error
	Close(ctx, file any) error

	OpenDir(ctx any, path string) (any, error)
	ReadDir(ctx, dir any) (DirEntry, error)
	DirLstat(ctx, dir any, e DirEntry, parent string) (api.Stat, error)
	CloseDir(ctx, dir any) error

	Stat(ctx any, path string) (api.Stat, error)
	Lstat(ctx any, path string) (api.Stat, error)
	Mkdir(ctx any, path string) error
	Unlink(ctx any, path string) error
	Rmdir(ctx any, path string) error
	Rename(ctx any, src, dst string) error
	Readlink(ctx any, path string) (string, error)
}
