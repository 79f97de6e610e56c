// File: vfs/nativefs/nativefs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Leaf backend over the host filesystem, jailed under one directory.

package nativefs

import (
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/internal/errno"
	"github.com/momentics/hioload-ftp/vfs"
)

const readDirBatch = 64

// Backend serves a host directory tree.
type Backend struct {
	root     string
	real     string // root with symlinks resolved
	readOnly bool
}

var _ vfs.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithReadOnly rejects every mutation with api.CodeReadOnly.
func WithReadOnly(on bool) Option {
	return func(b *Backend) { b.readOnly = on }
}

// New jails a backend under root, which must be an existing directory.
func New(root string, opts ...Option) (*Backend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errno.Wrap(err, "nativefs.new", root)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, errno.Wrap(err, "nativefs.new", root)
	}
	if !fi.IsDir() {
		return nil, api.NewError(api.CodeNotDirectory, "nativefs.new", root, nil)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errno.Wrap(err, "nativefs.new", root)
	}
	b := &Backend{root: abs, real: resolved}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Root returns the host directory the backend is jailed under.
func (b *Backend) Root() string { return b.root }

// host maps an inner path to a host path inside the jail. Symlinks in the
// parent directories are resolved and must stay inside the root; follow
// resolves a symlink in the final component as well.
func (b *Backend) host(op, p string, follow bool) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", api.NewError(api.CodeInvalidArgument, op, p, nil)
	}
	full := filepath.Join(b.root, filepath.FromSlash(path.Clean(p)))
	if !within(b.root, full) {
		return "", api.NewError(api.CodePermission, op, p, nil)
	}
	if full == b.root {
		return b.real, nil
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(full))
	if err != nil {
		return "", errno.Wrap(err, op, p)
	}
	if !within(b.real, parent) {
		return "", api.NewError(api.CodePermission, op, p, nil)
	}
	full = filepath.Join(parent, filepath.Base(full))
	if !follow {
		return full, nil
	}
	if fi, err := os.Lstat(full); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return full, nil
	}
	target, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", errno.Wrap(err, op, p)
	}
	if !within(b.real, target) {
		return "", api.NewError(api.CodePermission, op, p, nil)
	}
	return target, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (b *Backend) writable(op, p string) error {
	if b.readOnly {
		return api.NewError(api.CodeReadOnly, op, p, nil)
	}
	return nil
}

func (b *Backend) Open(p string, mode api.OpenMode) (vfs.FileImpl, error) {
	const op = "nativefs.open"
	full, err := b.host(op, p, true)
	if err != nil {
		return nil, err
	}
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
	f, err := os.OpenFile(full, flag, 0o644)
	if err != nil {
		return nil, errno.Wrap(err, op, p)
	}
	if mode == api.OpenRead {
		if fi, err := f.Stat(); err == nil && fi.IsDir() {
			f.Close()
			return nil, api.NewError(api.CodeIsDirectory, op, p, nil)
		}
	}
	return &file{f: f, p: p}, nil
}

func (b *Backend) OpenDir(p string) (vfs.DirImpl, error) {
	const op = "nativefs.opendir"
	full, err := b.host(op, p, true)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return nil, errno.Wrap(err, op, p)
	}
	if !fi.IsDir() {
		return nil, api.NewError(api.CodeNotDirectory, op, p, nil)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, errno.Wrap(err, op, p)
	}
	return &dir{b: b, f: f}, nil
}

func (b *Backend) Stat(p string) (api.Stat, error) {
	full, err := b.host("nativefs.stat", p, true)
	if err != nil {
		return api.Stat{}, err
	}
	st, err := hostStat(full, true)
	return st, errno.Wrap(err, "nativefs.stat", p)
}

func (b *Backend) Lstat(p string) (api.Stat, error) {
	full, err := b.host("nativefs.lstat", p, false)
	if err != nil {
		return api.Stat{}, err
	}
	st, err := hostStat(full, false)
	return st, errno.Wrap(err, "nativefs.lstat", p)
}

func (b *Backend) Mkdir(p string) error {
	const op = "nativefs.mkdir"
	full, err := b.host(op, p, false)
	if err != nil {
		return err
	}
	if err := b.writable(op, p); err != nil {
		return err
	}
	return errno.Wrap(os.Mkdir(full, 0o755), op, p)
}

func (b *Backend) Unlink(p string) error {
	const op = "nativefs.unlink"
	full, err := b.host(op, p, false)
	if err != nil {
		return err
	}
	if err := b.writable(op, p); err != nil {
		return err
	}
	fi, err := os.Lstat(full)
	if err != nil {
		return errno.Wrap(err, op, p)
	}
	if fi.IsDir() {
		return api.NewError(api.CodeIsDirectory, op, p, nil)
	}
	return errno.Wrap(os.Remove(full), op, p)
}

func (b *Backend) Rmdir(p string) error {
	const op = "nativefs.rmdir"
	full, err := b.host(op, p, false)
	if err != nil {
		return err
	}
	if err := b.writable(op, p); err != nil {
		return err
	}
	fi, err := os.Lstat(full)
	if err != nil {
		return errno.Wrap(err, op, p)
	}
	if !fi.IsDir() {
		return api.NewError(api.CodeNotDirectory, op, p, nil)
	}
	return errno.Wrap(os.Remove(full), op, p)
}

func (b *Backend) Rename(src, dst string) error {
	const op = "nativefs.rename"
	from, err := b.host(op, src, false)
	if err != nil {
		return err
	}
	to, err := b.host(op, dst, false)
	if err != nil {
		return err
	}
	if err := b.writable(op, src); err != nil {
		return err
	}
	return errno.Wrap(os.Rename(from, to), op, src)
}

func (b *Backend) Readlink(p string) (string, error) {
	const op = "nativefs.readlink"
	full, err := b.host(op, p, false)
	if err != nil {
		return "", err
	}
	target, err := os.Readlink(full)
	if err != nil {
		return "", errno.Wrap(err, op, p)
	}
	return filepath.ToSlash(target), nil
}

type file struct {
	f *os.File
	p string
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.f.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, errno.Wrap(err, "nativefs.read", f.p)
}

func (f *file) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	return n, errno.Wrap(err, "nativefs.write", f.p)
}

func (f *file) Seek(off int64) error {
	_, err := f.f.Seek(off, io.SeekStart)
	return errno.Wrap(err, "nativefs.seek", f.p)
}

func (f *file) Close() error {
	return errno.Wrap(f.f.Close(), "nativefs.close", f.p)
}

// dir enumerates in batches; metadata is resolved per entry on demand.
type dir struct {
	b     *Backend
	f     *os.File
	batch []os.DirEntry
	eof   bool
}

func (d *dir) Next() (vfs.DirEntry, error) {
	for len(d.batch) == 0 {
		if d.eof {
			return vfs.DirEntry{}, io.EOF
		}
		var err error
		d.batch, err = d.f.ReadDir(readDirBatch)
		if errors.Is(err, io.EOF) {
			d.eof = true
			continue
		}
		if err != nil {
			return vfs.DirEntry{}, errno.Wrap(err, "nativefs.readdir", d.f.Name())
		}
	}
	e := d.batch[0]
	d.batch = d.batch[1:]
	return vfs.DirEntry{Name: e.Name(), Type: api.TypeOf(e.Type())}, nil
}

func (d *dir) Lstat(e vfs.DirEntry, parent string) (api.Stat, error) {
	return d.b.Lstat(path.Join(parent, e.Name))
}

func (d *dir) Close() error {
	return errno.Wrap(d.f.Close(), "nativefs.closedir", "")
}
