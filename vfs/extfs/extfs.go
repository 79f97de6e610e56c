// File: vfs/extfs/extfs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// External storage leaf. Volumes come and go while the server runs; the
// source is asked for the current set on every call and each volume is
// served through the stdio leaf.

package extfs

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/stdiofs"
	"github.com/spf13/afero"
)

// VolumeSource reports the volumes mounted right now, keyed by name.
type VolumeSource interface {
	Volumes() map[string]afero.Fs
}

// Static is a fixed volume set.
type Static map[string]afero.Fs

func (s Static) Volumes() map[string]afero.Fs { return s }

// MountDir treats every directory directly under a host mount point as one
// volume, the way removable drives appear under /media.
type MountDir string

func (m MountDir) Volumes() map[string]afero.Fs {
	ents, err := os.ReadDir(string(m))
	if err != nil {
		return nil
	}
	out := make(map[string]afero.Fs, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			out[e.Name()] = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(string(m), e.Name()))
		}
	}
	return out
}

// Backend routes each call to the volume named by the first path segment.
type Backend struct {
	src  VolumeSource
	opts []stdiofs.Option
}

var _ vfs.Backend = (*Backend)(nil)

// New serves the volumes of src. opts apply to every volume.
func New(src VolumeSource, opts ...stdiofs.Option) *Backend {
	return &Backend{src: src, opts: opts}
}

// volume resolves the volume leaf and the path inside it. The device root
// yields a nil leaf.
func (b *Backend) volume(op, p string) (*stdiofs.Backend, string, error) {
	rel := strings.Trim(path.Clean("/"+p), "/")
	if rel == "" {
		return nil, "/", nil
	}
	name, inner, _ := strings.Cut(rel, "/")
	fsys, ok := b.src.Volumes()[name]
	if !ok {
		return nil, "", api.NewError(api.CodeNotFound, op, p, nil)
	}
	return stdiofs.New(fsys, b.opts...), "/" + inner, nil
}

func (b *Backend) names() []string {
	vols := b.src.Volumes()
	out := make([]string, 0, len(vols))
	for name := range vols {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func rootStat(n int) api.Stat {
	return api.Stat{Type: api.TypeDir, Nlink: 2 + uint64(n), Perm: 0o555, HasPerm: true}
}

func (b *Backend) Open(p string, mode api.OpenMode) (vfs.FileImpl, error) {
	v, inner, err := b.volume("extfs.open", p)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, api.NewError(api.CodeIsDirectory, "extfs.open", p, nil)
	}
	return v.Open(inner, mode)
}

func (b *Backend) OpenDir(p string) (vfs.DirImpl, error) {
	v, inner, err := b.volume("extfs.opendir", p)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return &volDir{b: b, names: b.names()}, nil
	}
	d, err := v.OpenDir(inner)
	if err != nil {
		return nil, err
	}
	return &subDir{DirImpl: d, inner: inner}, nil
}

func (b *Backend) Stat(p string) (api.Stat, error) {
	v, inner, err := b.volume("extfs.stat", p)
	if err != nil {
		return api.Stat{}, err
	}
	if v == nil {
		return rootStat(len(b.src.Volumes())), nil
	}
	return v.Stat(inner)
}

func (b *Backend) Lstat(p string) (api.Stat, error) {
	v, inner, err := b.volume("extfs.lstat", p)
	if err != nil {
		return api.Stat{}, err
	}
	if v == nil {
		return rootStat(len(b.src.Volumes())), nil
	}
	return v.Lstat(inner)
}

// mutate runs fn on the volume leaf. Volume roots themselves are fixed.
func (b *Backend) mutate(op, p string, fn func(v *stdiofs.Backend, inner string) error) error {
	v, inner, err := b.volume(op, p)
	if err != nil {
		return err
	}
	if v == nil || inner == "/" {
		return api.NewError(api.CodePermission, op, p, nil)
	}
	return fn(v, inner)
}

func (b *Backend) Mkdir(p string) error {
	return b.mutate("extfs.mkdir", p, (*stdiofs.Backend).Mkdir)
}

func (b *Backend) Unlink(p string) error {
	return b.mutate("extfs.unlink", p, (*stdiofs.Backend).Unlink)
}

func (b *Backend) Rmdir(p string) error {
	return b.mutate("extfs.rmdir", p, (*stdiofs.Backend).Rmdir)
}

// Rename works within one volume; moving between volumes answers
// api.CodeCrossDevice.
func (b *Backend) Rename(src, dst string) error {
	const op = "extfs.rename"
	sv, _, _ := strings.Cut(strings.Trim(path.Clean("/"+src), "/"), "/")
	dv, _, _ := strings.Cut(strings.Trim(path.Clean("/"+dst), "/"), "/")
	if sv != dv {
		return api.NewError(api.CodeCrossDevice, op, src, nil)
	}
	_, dinner, err := b.volume(op, dst)
	if err != nil {
		return err
	}
	return b.mutate(op, src, func(v *stdiofs.Backend, inner string) error {
		return v.Rename(inner, dinner)
	})
}

func (b *Backend) Readlink(p string) (string, error) {
	v, inner, err := b.volume("extfs.readlink", p)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", api.NewError(api.CodeInvalidArgument, "extfs.readlink", p, nil)
	}
	return v.Readlink(inner)
}

// volDir lists the volumes mounted at opendir time.
type volDir struct {
	b     *Backend
	names []string
	next  int
}

func (d *volDir) Next() (vfs.DirEntry, error) {
	if d.next >= len(d.names) {
		return vfs.DirEntry{}, io.EOF
	}
	d.next++
	return vfs.DirEntry{Name: d.names[d.next-1], Type: api.TypeDir}, nil
}

func (d *volDir) Lstat(e vfs.DirEntry, parent string) (api.Stat, error) {
	return d.b.Lstat(path.Join(parent, e.Name))
}

func (d *volDir) Close() error { return nil }

// subDir is a directory inside a volume. Entries are resolved against the
// volume-rooted path, not the device-level one the dispatcher hands in.
type subDir struct {
	vfs.DirImpl
	inner string
}

func (d *subDir) Lstat(e vfs.DirEntry, _ string) (api.Stat, error) {
	return d.DirImpl.Lstat(e, d.inner)
}
