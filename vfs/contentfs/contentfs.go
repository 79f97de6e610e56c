// File: vfs/contentfs/contentfs.go
// Package contentfs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Game-content leaf. Exposes read-only content partitions (secure, normal,
// update and so on) given as fs.FS trees. Enumeration never stats: metadata
// is resolved per entry when Dir.Lstat asks for it.

package contentfs

import (
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/internal/errno"
	"github.com/momentics/hioload-ftp/vfs"
)

const readDirBatch = 32

// Backend serves a fixed set of partitions.
type Backend struct {
	parts map[string]fs.FS
	names []string
}

var _ vfs.Backend = (*Backend)(nil)

// New builds a backend. Partition names must be non-empty and free of "/".
func New(parts map[string]fs.FS) (*Backend, error) {
	b := &Backend{parts: make(map[string]fs.FS, len(parts))}
	for name, fsys := range parts {
		if name == "" || strings.ContainsRune(name, '/') || fsys == nil {
			return nil, api.NewError(api.CodeInvalidArgument, "contentfs.new", name, nil)
		}
		b.parts[name] = fsys
		b.names = append(b.names, name)
	}
	sort.Strings(b.names)
	return b, nil
}

// locate splits an inner path into partition and fs.FS path. The device
// root yields an empty partition.
func (b *Backend) locate(op, p string) (fs.FS, string, error) {
	rel := strings.Trim(path.Clean("/"+p), "/")
	if rel == "" {
		return nil, "", nil
	}
	part, name, _ := strings.Cut(rel, "/")
	fsys, ok := b.parts[part]
	if !ok {
		return nil, "", api.NewError(api.CodeNotFound, op, p, nil)
	}
	if name == "" {
		name = "."
	}
	return fsys, name, nil
}

func readOnly(op, p string) error {
	return api.NewError(api.CodeReadOnly, op, p, nil)
}

func (b *Backend) Open(p string, mode api.OpenMode) (vfs.FileImpl, error) {
	const op = "contentfs.open"
	if mode.Writable() {
		return nil, readOnly(op, p)
	}
	fsys, name, err := b.locate(op, p)
	if err != nil {
		return nil, err
	}
	if fsys == nil {
		return nil, api.NewError(api.CodeIsDirectory, op, p, nil)
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, errno.Wrap(err, op, p)
	}
	if fi, err := f.Stat(); err == nil && fi.IsDir() {
		f.Close()
		return nil, api.NewError(api.CodeIsDirectory, op, p, nil)
	}
	return &file{fsys: fsys, name: name, p: p, f: f}, nil
}

func (b *Backend) OpenDir(p string) (vfs.DirImpl, error) {
	const op = "contentfs.opendir"
	fsys, name, err := b.locate(op, p)
	if err != nil {
		return nil, err
	}
	if fsys == nil {
		return &partDir{b: b, names: b.names}, nil
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, errno.Wrap(err, op, p)
	}
	rd, ok := f.(fs.ReadDirFile)
	if !ok {
		f.Close()
		return nil, api.NewError(api.CodeNotDirectory, op, p, nil)
	}
	return &dir{b: b, f: rd, p: p}, nil
}

func (b *Backend) Stat(p string) (api.Stat, error) {
	const op = "contentfs.stat"
	fsys, name, err := b.locate(op, p)
	if err != nil {
		return api.Stat{}, err
	}
	if fsys == nil {
		return api.Stat{Type: api.TypeDir, Nlink: 2 + uint64(len(b.names)), Perm: 0o555, HasPerm: true}, nil
	}
	fi, err := fs.Stat(fsys, name)
	if err != nil {
		return api.Stat{}, errno.Wrap(err, op, p)
	}
	st := api.StatFromInfo(fi)
	st.Perm &^= 0o222
	return st, nil
}

// Lstat equals Stat: fs.FS trees expose no links.
func (b *Backend) Lstat(p string) (api.Stat, error) { return b.Stat(p) }

func (b *Backend) Mkdir(p string) error       { return readOnly("contentfs.mkdir", p) }
func (b *Backend) Unlink(p string) error      { return readOnly("contentfs.unlink", p) }
func (b *Backend) Rmdir(p string) error       { return readOnly("contentfs.rmdir", p) }
func (b *Backend) Rename(src, _ string) error { return readOnly("contentfs.rename", src) }

func (b *Backend) Readlink(p string) (string, error) {
	return "", api.NewError(api.CodeNotSupported, "contentfs.readlink", p, nil)
}

type file struct {
	fsys fs.FS
	name string
	p    string
	f    fs.File
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.f.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, errno.Wrap(err, "contentfs.read", f.p)
}

func (f *file) Write([]byte) (int, error) { return 0, readOnly("contentfs.write", f.p) }

// Seek uses io.Seeker when the tree offers it, otherwise reopens the file
// and skips forward.
func (f *file) Seek(off int64) error {
	const op = "contentfs.seek"
	if s, ok := f.f.(io.Seeker); ok {
		_, err := s.Seek(off, io.SeekStart)
		return errno.Wrap(err, op, f.p)
	}
	nf, err := f.fsys.Open(f.name)
	if err != nil {
		return errno.Wrap(err, op, f.p)
	}
	if _, err := io.CopyN(io.Discard, nf, off); err != nil && !errors.Is(err, io.EOF) {
		nf.Close()
		return errno.Wrap(err, op, f.p)
	}
	f.f.Close()
	f.f = nf
	return nil
}

func (f *file) Close() error { return errno.Wrap(f.f.Close(), "contentfs.close", f.p) }

// partDir lists the partitions at the device root.
type partDir struct {
	b     *Backend
	names []string
	next  int
}

func (d *partDir) Next() (vfs.DirEntry, error) {
	if d.next >= len(d.names) {
		return vfs.DirEntry{}, io.EOF
	}
	d.next++
	return vfs.DirEntry{Name: d.names[d.next-1], Type: api.TypeDir}, nil
}

func (d *partDir) Lstat(e vfs.DirEntry, parent string) (api.Stat, error) {
	return d.b.Lstat(path.Join(parent, e.Name))
}

func (d *partDir) Close() error { return nil }

type dir struct {
	b     *Backend
	f     fs.ReadDirFile
	p     string
	batch []fs.DirEntry
	eof   bool
}

func (d *dir) Next() (vfs.DirEntry, error) {
	for len(d.batch) == 0 {
		if d.eof {
			return vfs.DirEntry{}, io.EOF
		}
		var err error
		d.batch, err = d.f.ReadDir(readDirBatch)
		if errors.Is(err, io.EOF) || (err == nil && len(d.batch) == 0) {
			d.eof = true
			continue
		}
		if err != nil {
			return vfs.DirEntry{}, errno.Wrap(err, "contentfs.readdir", d.p)
		}
	}
	e := d.batch[0]
	d.batch = d.batch[1:]
	return vfs.DirEntry{Name: e.Name(), Type: api.TypeOf(e.Type())}, nil
}

// Lstat stats the entry on demand through the partition tree.
func (d *dir) Lstat(e vfs.DirEntry, parent string) (api.Stat, error) {
	return d.b.Lstat(path.Join(parent, e.Name))
}

func (d *dir) Close() error { return errno.Wrap(d.f.Close(), "contentfs.closedir", d.p) }
