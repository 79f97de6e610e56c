// File: vfs/root.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Root backend: the virtual top level. It stores nothing and enumerates the
// registry on every opendir.

package vfs

import (
	"io"
	"time"

	"github.com/momentics/hioload-ftp/api"
)

type rootBackend struct {
	reg     *Registry
	started time.Time
}

var _ Backend = (*rootBackend)(nil)

func (b *rootBackend) stat() api.Stat {
	return api.Stat{
		Type:    api.TypeDir,
		Nlink:   2 + uint64(b.reg.Len()),
		ModTime: b.started,
		Perm:    0o555,
		HasPerm: true,
	}
}

func (b *rootBackend) Open(p string, mode api.OpenMode) (FileImpl, error) {
	if mode.Writable() {
		return nil, api.NewError(api.CodePermission, "root.open", p, nil)
	}
	return nil, api.NewError(api.CodeIsDirectory, "root.open", p, nil)
}

func (b *rootBackend) OpenDir(string) (DirImpl, error) {
	d := &rootDir{reg: b.reg}
	b.reg.Each(func(dev Device) bool {
		d.names = append(d.names, dev.Name)
		return true
	})
	return d, nil
}

func (b *rootBackend) Stat(string) (api.Stat, error)  { return b.stat(), nil }
func (b *rootBackend) Lstat(string) (api.Stat, error) { return b.stat(), nil }

func (b *rootBackend) Mkdir(p string) error {
	return api.NewError(api.CodePermission, "root.mkdir", p, nil)
}

func (b *rootBackend) Unlink(p string) error {
	return api.NewError(api.CodePermission, "root.unlink", p, nil)
}

func (b *rootBackend) Rmdir(p string) error {
	return api.NewError(api.CodePermission, "root.rmdir", p, nil)
}

func (b *rootBackend) Rename(src, _ string) error {
	return api.NewError(api.CodePermission, "root.rename", src, nil)
}

func (b *rootBackend) Readlink(p string) (string, error) {
	return "", api.NewError(api.CodeInvalidArgument, "root.readlink", p, nil)
}

// rootDir yields one directory entry per device registered at opendir time.
type rootDir struct {
	reg   *Registry
	names []string
	next  int
}

func (d *rootDir) Next() (DirEntry, error) {
	if d.next >= len(d.names) {
		return DirEntry{}, io.EOF
	}
	name := d.names[d.next]
	d.next++
	return DirEntry{Name: name, Type: api.TypeDir}, nil
}

// Lstat resolves a device entry through the device's own backend so the
// result matches a direct lstat of /<device>.
func (d *rootDir) Lstat(e DirEntry, _ string) (api.Stat, error) {
	dev, err := d.reg.Lookup(e.Name)
	if err != nil {
		return api.Stat{}, err
	}
	return dev.Backend.Lstat("/")
}

func (d *rootDir) Close() error {
	d.names = nil
	return nil
}
