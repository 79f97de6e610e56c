// File: vfs/user.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Adapter forwarding every operation of a user device to its capability
// table, exactly once per call, with the registered context.

package vfs

import (
	"github.com/momentics/hioload-ftp/api"
)

type userBackend struct {
	t   Table
	ctx any
}

var _ Backend = (*userBackend)(nil)

func (b *userBackend) Open(p string, mode api.OpenMode) (FileImpl, error) {
	h, err := b.t.Open(b.ctx, p, mode)
	if err != nil {
		return nil, err
	}
	return &userFile{b: b, h: h}, nil
}

func (b *userBackend) OpenDir(p string) (DirImpl, error) {
	h, err := b.t.OpenDir(b.ctx, p)
	if err != nil {
		return nil, err
	}
	return &userDir{b: b, h: h}, nil
}

func (b *userBackend) Stat(p string) (api.Stat, error)  { return b.t.Stat(b.ctx, p) }
func (b *userBackend) Lstat(p string) (api.Stat, error) { return b.t.Lstat(b.ctx, p) }
func (b *userBackend) Mkdir(p string) error             { return b.t.Mkdir(b.ctx, p) }
func (b *userBackend) Unlink(p string) error            { return b.t.Unlink(b.ctx, p) }
func (b *userBackend) Rmdir(p string) error             { return b.t.Rmdir(b.ctx, p) }
func (b *userBackend) Rename(src, dst string) error     { return b.t.Rename(b.ctx, src, dst) }

func (b *userBackend) Readlink(p string) (string, error) { return b.t.Readlink(b.ctx, p) }

type userFile struct {
	b *userBackend
	h any
}

func (f *userFile) Read(p []byte) (int, error)  { return f.b.t.Read(f.b.ctx, f.h, p) }
func (f *userFile) Write(p []byte) (int, error) { return f.b.t.Write(f.b.ctx, f.h, p) }
func (f *userFile) Seek(off int64) error        { return f.b.t.Seek(f.b.ctx, f.h, off) }
func (f *userFile) Close() error                { return f.b.t.Close(f.b.ctx, f.h) }

type userDir struct {
	b *userBackend
	h any
}

func (d *userDir) Next() (DirEntry, error) { return d.b.t.ReadDir(d.b.ctx, d.h) }

func (d *userDir) Lstat(e DirEntry, parent string) (api.Stat, error) {
	return d.b.t.DirLstat(d.b.ctx, d.h, e, parent)
}

func (d *userDir) Close() error { return d.b.t.CloseDir(d.b.ctx, d.h) }
