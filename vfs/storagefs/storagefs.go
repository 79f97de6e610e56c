// File: vfs/storagefs/storagefs.go
// Package storagefs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw storage leaf. Each partition appears as one read-only regular file at
// the device root, backed by an io.ReaderAt over the partition image.

package storagefs

import (
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/internal/errno"
	"github.com/momentics/hioload-ftp/vfs"
)

// Partition is one raw storage area.
type Partition struct {
	Name    string
	Size    int64
	Source  io.ReaderAt
	ModTime time.Time
}

// Backend lists and serves a fixed set of partitions.
type Backend struct {
	parts   map[string]Partition
	names   []string
	closers []io.Closer
}

var _ vfs.Backend = (*Backend)(nil)

// New builds a backend over parts. Names must be unique and free of "/".
func New(parts ...Partition) (*Backend, error) {
	b := &Backend{parts: make(map[string]Partition, len(parts))}
	for _, p := range parts {
		if p.Name == "" || strings.ContainsRune(p.Name, '/') || p.Source == nil || p.Size < 0 {
			return nil, api.NewError(api.CodeInvalidArgument, "storagefs.new", p.Name, nil)
		}
		if _, dup := b.parts[p.Name]; dup {
			return nil, api.NewError(api.CodeExists, "storagefs.new", p.Name, nil)
		}
		b.parts[p.Name] = p
		b.names = append(b.names, p.Name)
	}
	sort.Strings(b.names)
	return b, nil
}

// OpenImages exposes each named image file as a partition. The files stay
// open until Close.
func OpenImages(images map[string]string) (*Backend, error) {
	var parts []Partition
	var closers []io.Closer
	fail := func(err error) (*Backend, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	for name, file := range images {
		f, err := os.Open(file)
		if err != nil {
			return fail(errno.Wrap(err, "storagefs.open_image", name))
		}
		closers = append(closers, f)
		fi, err := f.Stat()
		if err != nil {
			return fail(errno.Wrap(err, "storagefs.open_image", name))
		}
		parts = append(parts, Partition{Name: name, Size: fi.Size(), Source: f, ModTime: fi.ModTime()})
	}
	b, err := New(parts...)
	if err != nil {
		return fail(err)
	}
	b.closers = closers
	return b, nil
}

// Close releases image files opened by OpenImages.
func (b *Backend) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = errno.Wrap(err, "storagefs.close", "")
		}
	}
	b.closers = nil
	return first
}

func (b *Backend) lookup(op, p string) (Partition, error) {
	name := strings.TrimPrefix(p, "/")
	if name == "" {
		return Partition{}, api.NewError(api.CodeIsDirectory, op, p, nil)
	}
	part, ok := b.parts[name]
	if !ok {
		return Partition{}, api.NewError(api.CodeNotFound, op, p, nil)
	}
	return part, nil
}

func readOnly(op, p string) error {
	return api.NewError(api.CodeReadOnly, op, p, nil)
}

func (b *Backend) Open(p string, mode api.OpenMode) (vfs.FileImpl, error) {
	if mode.Writable() {
		return nil, readOnly("storagefs.open", p)
	}
	part, err := b.lookup("storagefs.open", p)
	if err != nil {
		return nil, err
	}
	return &file{r: io.NewSectionReader(part.Source, 0, part.Size), p: p}, nil
}

func (b *Backend) OpenDir(p string) (vfs.DirImpl, error) {
	if p != "/" {
		if _, err := b.lookup("storagefs.opendir", p); err != nil {
			return nil, err
		}
		return nil, api.NewError(api.CodeNotDirectory, "storagefs.opendir", p, nil)
	}
	return &dir{b: b}, nil
}

func (b *Backend) Stat(p string) (api.Stat, error) {
	if p == "/" {
		return api.Stat{Type: api.TypeDir, Nlink: 2, Perm: 0o555, HasPerm: true}, nil
	}
	part, err := b.lookup("storagefs.stat", p)
	if err != nil {
		return api.Stat{}, err
	}
	return partStat(part), nil
}

func partStat(part Partition) api.Stat {
	return api.Stat{
		Type:    api.TypeRegular,
		Size:    part.Size,
		Nlink:   1,
		ModTime: part.ModTime,
		Perm:    0o444,
		HasPerm: true,
	}
}

func (b *Backend) Lstat(p string) (api.Stat, error) { return b.Stat(p) }

func (b *Backend) Mkdir(p string) error       { return readOnly("storagefs.mkdir", p) }
func (b *Backend) Unlink(p string) error      { return readOnly("storagefs.unlink", p) }
func (b *Backend) Rmdir(p string) error       { return readOnly("storagefs.rmdir", p) }
func (b *Backend) Rename(src, _ string) error { return readOnly("storagefs.rename", src) }

func (b *Backend) Readlink(p string) (string, error) {
	return "", api.NewError(api.CodeInvalidArgument, "storagefs.readlink", p, nil)
}

type file struct {
	r *io.SectionReader
	p string
}

func (f *file) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, errno.Wrap(err, "storagefs.read", f.p)
}

func (f *file) Write([]byte) (int, error) { return 0, readOnly("storagefs.write", f.p) }

func (f *file) Seek(off int64) error {
	if off > f.r.Size() {
		return api.NewError(api.CodeInvalidArgument, "storagefs.seek", f.p, nil)
	}
	_, err := f.r.Seek(off, io.SeekStart)
	return errno.Wrap(err, "storagefs.seek", f.p)
}

func (f *file) Close() error { return nil }

type dir struct {
	b    *Backend
	next int
}

func (d *dir) Next() (vfs.DirEntry, error) {
	if d.next >= len(d.b.names) {
		return vfs.DirEntry{}, io.EOF
	}
	name := d.b.names[d.next]
	d.next++
	return vfs.DirEntry{Name: name, Type: api.TypeRegular, Token: d.b.parts[name]}, nil
}

// Lstat answers from the partition carried in the entry.
func (d *dir) Lstat(e vfs.DirEntry, _ string) (api.Stat, error) {
	part, ok := e.Token.(Partition)
	if !ok {
		return api.Stat{}, api.NewError(api.CodeInvalidArgument, "storagefs.dirlstat", e.Name, nil)
	}
	return partStat(part), nil
}

func (d *dir) Close() error { return nil }
