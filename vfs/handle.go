// File: vfs/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// File and directory handles. Both are tagged with the backend kind at
// creation and never change it.

package vfs

import (
	"errors"
	"io"
	"path"

	"github.com/momentics/hioload-ftp/api"
)

// File is an open file handle. The zero value is an unopened handle on which
// only Close, IsOpen and Kind are meaningful.
type File struct {
	kind api.Kind
	mode api.OpenMode
	path string
	impl FileImpl
	open bool
}

// Kind returns the backend kind that created the handle.
func (f *File) Kind() api.Kind {
	mustFile(f, "vfs.file_kind")
	return f.kind
}

// Mode returns the mode the handle was opened with.
func (f *File) Mode() api.OpenMode {
	mustFile(f, "vfs.file_mode")
	return f.mode
}

// IsOpen reports whether the handle is currently open.
func (f *File) IsOpen() bool {
	mustFile(f, "vfs.isfile_open")
	return f.open
}

// Ready reports whether the backend is ready for the next transfer step.
// Backends without asynchronous completion are always ready.
func (f *File) Ready() bool {
	if !f.IsOpen() {
		return false
	}
	if r, ok := f.impl.(Readier); ok {
		return r.Ready()
	}
	return true
}

// Read reads into p. At end of stream it returns 0 and io.EOF.
func (f *File) Read(p []byte) (int, error) {
	const op = "vfs.read"
	if err := f.usable(op); err != nil {
		return 0, err
	}
	if f.mode != api.OpenRead {
		return 0, api.NewError(api.CodeModeMismatch, op, f.path, nil)
	}
	n, err := f.impl.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, api.WithOp(err, op, f.path)
}

// Write writes p. A handle opened for reading fails with
// api.CodeModeMismatch.
func (f *File) Write(p []byte) (int, error) {
	const op = "vfs.write"
	if err := f.usable(op); err != nil {
		return 0, err
	}
	if !f.mode.Writable() {
		return 0, api.NewError(api.CodeModeMismatch, op, f.path, nil)
	}
	n, err := f.impl.Write(p)
	return n, api.WithOp(err, op, f.path)
}

// Seek moves the position to off bytes from the start.
func (f *File) Seek(off int64) error {
	const op = "vfs.seek"
	if err := f.usable(op); err != nil {
		return err
	}
	if off < 0 {
		return api.NewError(api.CodeInvalidArgument, op, f.path, nil)
	}
	return api.WithOp(f.impl.Seek(off), op, f.path)
}

// Close releases the handle. Closing an unopened or closed handle is a
// no-op.
func (f *File) Close() error {
	mustFile(f, "vfs.close")
	if !f.open {
		return nil
	}
	f.open = false
	err := f.impl.Close()
	f.impl = nil
	return api.WithOp(err, "vfs.close", f.path)
}

func (f *File) usable(op string) error {
	mustFile(f, op)
	if !f.open {
		return api.NewError(api.CodeBadHandle, op, f.path, nil)
	}
	return nil
}

func mustFile(f *File, op string) {
	if f == nil {
		api.Violation(op, "nil file handle")
	}
}

// Dir is a single-pass directory iteration. Restarting requires a fresh
// OpenDir.
type Dir struct {
	kind  api.Kind
	path  string
	inner string
	impl  DirImpl
	open  bool
	done  bool
}

// Kind returns the backend kind that created the handle.
func (d *Dir) Kind() api.Kind {
	mustDir(d, "vfs.dir_kind")
	return d.kind
}

// Path returns the VFS path the directory was opened with.
func (d *Dir) Path() string {
	mustDir(d, "vfs.dir_path")
	return d.path
}

// IsOpen reports whether the handle is currently open.
func (d *Dir) IsOpen() bool {
	mustDir(d, "vfs.isdir_open")
	return d.open
}

// Next returns the next entry, or io.EOF once the directory is exhausted.
// Further calls keep returning io.EOF.
func (d *Dir) Next() (DirEntry, error) {
	const op = "vfs.readdir"
	if err := d.usable(op); err != nil {
		return DirEntry{}, err
	}
	if d.done {
		return DirEntry{}, io.EOF
	}
	e, err := d.impl.Next()
	if errors.Is(err, io.EOF) {
		d.done = true
		return DirEntry{}, io.EOF
	}
	if err != nil {
		return DirEntry{}, api.WithOp(err, op, d.path)
	}
	e.Kind = d.kind
	return e, nil
}

// Lstat resolves the metadata of an entry this directory produced, without
// following symlinks. Passing an entry of another backend kind panics.
func (d *Dir) Lstat(e DirEntry) (api.Stat, error) {
	const op = "vfs.dirlstat"
	if err := d.usable(op); err != nil {
		return api.Stat{}, err
	}
	if e.Kind != d.kind {
		api.Violation(op, "entry of kind %s dispatched through %s directory", e.Kind, d.kind)
	}
	st, err := d.impl.Lstat(e, d.inner)
	return st, api.WithOp(err, op, path.Join(d.path, e.Name))
}

// Close ends the iteration. Closing an unopened or closed handle is a no-op.
func (d *Dir) Close() error {
	mustDir(d, "vfs.closedir")
	if !d.open {
		return nil
	}
	d.open = false
	err := d.impl.Close()
	d.impl = nil
	return api.WithOp(err, "vfs.closedir", d.path)
}

func (d *Dir) usable(op string) error {
	mustDir(d, op)
	if !d.open {
		return api.NewError(api.CodeBadHandle, op, d.path, nil)
	}
	return nil
}

func mustDir(d *Dir, op string) {
	if d == nil {
		api.Violation(op, "nil directory handle")
	}
}
