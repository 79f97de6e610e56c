// File: vfs/stdiofs/stdiofs.go
// Package stdiofs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Standard-stream leaf over an afero filesystem. File handles are buffered
// streams; buffers are flushed on seek and close.

package stdiofs

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/internal/errno"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/spf13/afero"
)

const (
	defaultBufSize = 64 << 10
	readDirBatch   = 64
)

// Backend serves an afero.Fs.
type Backend struct {
	fs       afero.Fs
	bufSize  int
	readOnly bool
}

var _ vfs.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithBufferSize sets the stream buffer size.
func WithBufferSize(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithReadOnly rejects every mutation with api.CodeReadOnly.
func WithReadOnly(on bool) Option {
	return func(b *Backend) { b.readOnly = on }
}

// New serves fsys.
func New(fsys afero.Fs, opts ...Option) *Backend {
	b := &Backend{fs: fsys, bufSize: defaultBufSize}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fs returns the served filesystem.
func (b *Backend) Fs() afero.Fs { return b.fs }

func (b *Backend) writable(op, p string) error {
	if b.readOnly {
		return api.NewError(api.CodeReadOnly, op, p, nil)
	}
	return nil
}

func wrap(err error, op, p string) error {
	if errors.Is(err, afero.ErrNoReadlink) {
		return api.NewError(api.CodeNotSupported, op, p, nil)
	}
	return errno.Wrap(err, op, p)
}

func (b *Backend) Open(p string, mode api.OpenMode) (vfs.FileImpl, error) {
	const op = "stdiofs.open"
	flag := os.O_RDONLY
	switch mode {
	case api.OpenWrite:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case api.OpenAppend:
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	if mode.Writable() {
		if err := b.writable(op, p); err != nil {
			return nil, err
		}
	}
	if fi, err := b.fs.Stat(p); err == nil && fi.IsDir() {
		return nil, api.NewError(api.CodeIsDirectory, op, p, nil)
	}
	f, err := b.fs.OpenFile(p, flag, 0o644)
	if err != nil {
		return nil, wrap(err, op, p)
	}
	s := &stream{f: f, p: p}
	if mode.Writable() {
		s.w = bufio.NewWriterSize(f, b.bufSize)
	} else {
		s.r = bufio.NewReaderSize(f, b.bufSize)
	}
	return s, nil
}

func (b *Backend) OpenDir(p string) (vfs.DirImpl, error) {
	const op = "stdiofs.opendir"
	fi, err := b.fs.Stat(p)
	if err != nil {
		return nil, wrap(err, op, p)
	}
	if !fi.IsDir() {
		return nil, api.NewError(api.CodeNotDirectory, op, p, nil)
	}
	f, err := b.fs.Open(p)
	if err != nil {
		return nil, wrap(err, op, p)
	}
	return &dir{b: b, f: f, p: p}, nil
}

func (b *Backend) Stat(p string) (api.Stat, error) {
	fi, err := b.fs.Stat(p)
	if err != nil {
		return api.Stat{}, wrap(err, "stdiofs.stat", p)
	}
	return api.StatFromInfo(fi), nil
}

func (b *Backend) Lstat(p string) (api.Stat, error) {
	fi, err := b.lstat(p)
	if err != nil {
		return api.Stat{}, wrap(err, "stdiofs.lstat", p)
	}
	return api.StatFromInfo(fi), nil
}

func (b *Backend) lstat(p string) (os.FileInfo, error) {
	if l, ok := b.fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(p)
		return fi, err
	}
	return b.fs.Stat(p)
}

func (b *Backend) Mkdir(p string) error {
	const op = "stdiofs.mkdir"
	if err := b.writable(op, p); err != nil {
		return err
	}
	if _, err := b.lstat(p); err == nil {
		return api.NewError(api.CodeExists, op, p, nil)
	}
	return wrap(b.fs.Mkdir(p, 0o755), op, p)
}

func (b *Backend) Unlink(p string) error {
	const op = "stdiofs.unlink"
	if err := b.writable(op, p); err != nil {
		return err
	}
	fi, err := b.lstat(p)
	if err != nil {
		return wrap(err, op, p)
	}
	if fi.IsDir() {
		return api.NewError(api.CodeIsDirectory, op, p, nil)
	}
	return wrap(b.fs.Remove(p), op, p)
}

func (b *Backend) Rmdir(p string) error {
	const op = "stdiofs.rmdir"
	if err := b.writable(op, p); err != nil {
		return err
	}
	fi, err := b.lstat(p)
	if err != nil {
		return wrap(err, op, p)
	}
	if !fi.IsDir() {
		return api.NewError(api.CodeNotDirectory, op, p, nil)
	}
	if empty, err := afero.IsEmpty(b.fs, p); err != nil {
		return wrap(err, op, p)
	} else if !empty {
		return api.NewError(api.CodeNotEmpty, op, p, nil)
	}
	return wrap(b.fs.Remove(p), op, p)
}

func (b *Backend) Rename(src, dst string) error {
	const op = "stdiofs.rename"
	if err := b.writable(op, src); err != nil {
		return err
	}
	if _, err := b.lstat(src); err != nil {
		return wrap(err, op, src)
	}
	return wrap(b.fs.Rename(src, dst), op, src)
}

func (b *Backend) Readlink(p string) (string, error) {
	const op = "stdiofs.readlink"
	lr, ok := b.fs.(afero.LinkReader)
	if !ok {
		return "", api.NewError(api.CodeNotSupported, op, p, nil)
	}
	target, err := lr.ReadlinkIfPossible(p)
	if err != nil {
		return "", wrap(err, op, p)
	}
	return target, nil
}

// stream is a buffered file handle. Exactly one of r and w is set.
type stream struct {
	f afero.File
	p string
	r *bufio.Reader
	w *bufio.Writer
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, wrap(err, "stdiofs.read", s.p)
}

func (s *stream) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	return n, wrap(err, "stdiofs.write", s.p)
}

func (s *stream) Seek(off int64) error {
	const op = "stdiofs.seek"
	if s.w != nil {
		if err := s.w.Flush(); err != nil {
			return wrap(err, op, s.p)
		}
	}
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return wrap(err, op, s.p)
	}
	if s.r != nil {
		s.r.Reset(s.f)
	}
	return nil
}

func (s *stream) Close() error {
	var err error
	if s.w != nil {
		err = s.w.Flush()
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return wrap(err, "stdiofs.close", s.p)
}

type dir struct {
	b     *Backend
	f     afero.File
	p     string
	batch []os.FileInfo
	eof   bool
}

func (d *dir) Next() (vfs.DirEntry, error) {
	for len(d.batch) == 0 {
		if d.eof {
			return vfs.DirEntry{}, io.EOF
		}
		var err error
		d.batch, err = d.f.Readdir(readDirBatch)
		if errors.Is(err, io.EOF) || (err == nil && len(d.batch) == 0) {
			d.eof = true
			continue
		}
		if err != nil {
			return vfs.DirEntry{}, wrap(err, "stdiofs.readdir", d.p)
		}
	}
	fi := d.batch[0]
	d.batch = d.batch[1:]
	return vfs.DirEntry{Name: fi.Name(), Type: api.TypeOf(fi.Mode())}, nil
}

func (d *dir) Lstat(e vfs.DirEntry, parent string) (api.Stat, error) {
	return d.b.Lstat(path.Join(parent, e.Name))
}

func (d *dir) Close() error { return wrap(d.f.Close(), "stdiofs.closedir", d.p) }
