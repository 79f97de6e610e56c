// File: vfs/vfs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Path resolution and whole-path operations.

package vfs

import (
	"time"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/control"
	"go.uber.org/zap"
)

// VFS routes path and handle operations to the device backends of a
// registry.
type VFS struct {
	reg     *Registry
	root    *rootBackend
	metrics *control.MetricsRegistry
	log     *zap.Logger
}

// Option configures a VFS.
type Option func(*VFS)

// WithMetrics attaches a metrics registry for per-operation counters.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(v *VFS) { v.metrics = m }
}

// New creates a dispatcher over reg.
func New(reg *Registry, opts ...Option) *VFS {
	if reg == nil {
		api.Violation("vfs.new", "nil registry")
	}
	v := &VFS{
		reg:  reg,
		root: &rootBackend{reg: reg, started: time.Now()},
		log:  Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Registry returns the registry the dispatcher reads.
func (v *VFS) Registry() *Registry { return v.reg }

// target is a resolved path.
type target struct {
	dev   string
	kind  api.Kind
	b     Backend
	inner string
}

func (t target) isRoot() bool { return t.kind == api.KindRoot }

// resolve maps a VFS path to its backend.
func (v *VFS) resolve(op, p string) (target, error) {
	dev, inner, err := split(op, p)
	if err != nil {
		return target{}, err
	}
	if dev == "" {
		return target{kind: api.KindRoot, b: v.root, inner: "/"}, nil
	}
	d, err := v.reg.Lookup(dev)
	if err != nil {
		return target{}, api.NewError(api.CodeNotFound, op, p, nil)
	}
	return target{dev: d.Name, kind: d.Kind, b: d.Backend, inner: inner}, nil
}

// resolveMutable resolves p for a mutating operation. The root and the top
// level of a device cannot be created, removed or renamed through the VFS.
func (v *VFS) resolveMutable(op, p string) (target, error) {
	dev, inner, err := split(op, p)
	if err != nil {
		return target{}, err
	}
	if dev == "" || inner == "/" {
		return target{}, api.NewError(api.CodePermission, op, p, nil)
	}
	return v.resolve(op, p)
}

func (v *VFS) count(op string) {
	if v.metrics != nil {
		v.metrics.Add("vfs."+op, 1)
	}
}

// Open opens a file. Write mode creates and truncates; append creates and
// positions writes at the end.
func (v *VFS) Open(p string, mode api.OpenMode) (*File, error) {
	const op = "vfs.open"
	v.count("open")
	t, err := v.resolve(op, p)
	if err != nil {
		return nil, err
	}
	impl, err := t.b.Open(t.inner, mode)
	if err != nil {
		return nil, api.WithOp(err, op, p)
	}
	v.log.Debug("open", zap.String("path", p), zap.Stringer("mode", mode), zap.Stringer("kind", t.kind))
	return &File{kind: t.kind, mode: mode, path: p, impl: impl, open: true}, nil
}

// OpenDir starts a single-pass iteration over a directory.
func (v *VFS) OpenDir(p string) (*Dir, error) {
	const op = "vfs.opendir"
	v.count("opendir")
	t, err := v.resolve(op, p)
	if err != nil {
		return nil, err
	}
	impl, err := t.b.OpenDir(t.inner)
	if err != nil {
		return nil, api.WithOp(err, op, p)
	}
	return &Dir{kind: t.kind, path: p, inner: t.inner, impl: impl, open: true}, nil
}

// Stat returns metadata, following symlinks.
func (v *VFS) Stat(p string) (api.Stat, error) {
	const op = "vfs.stat"
	v.count("stat")
	t, err := v.resolve(op, p)
	if err != nil {
		return api.Stat{}, err
	}
	st, err := t.b.Stat(t.inner)
	return st, api.WithOp(err, op, p)
}

// Lstat returns metadata without following symlinks.
func (v *VFS) Lstat(p string) (api.Stat, error) {
	const op = "vfs.lstat"
	v.count("lstat")
	t, err := v.resolve(op, p)
	if err != nil {
		return api.Stat{}, err
	}
	st, err := t.b.Lstat(t.inner)
	return st, api.WithOp(err, op, p)
}

// Mkdir creates a directory. Creating an entry at the top level fails with
// api.CodePermission.
func (v *VFS) Mkdir(p string) error {
	const op = "vfs.mkdir"
	v.count("mkdir")
	t, err := v.resolveMutable(op, p)
	if err != nil {
		return err
	}
	return api.WithOp(t.b.Mkdir(t.inner), op, p)
}

// Unlink removes a file.
func (v *VFS) Unlink(p string) error {
	const op = "vfs.unlink"
	v.count("unlink")
	t, err := v.resolveMutable(op, p)
	if err != nil {
		return err
	}
	return api.WithOp(t.b.Unlink(t.inner), op, p)
}

// Rmdir removes an empty directory.
func (v *VFS) Rmdir(p string) error {
	const op = "vfs.rmdir"
	v.count("rmdir")
	t, err := v.resolveMutable(op, p)
	if err != nil {
		return err
	}
	return api.WithOp(t.b.Rmdir(t.inner), op, p)
}

// Rename moves src to dst within one device. Paths on different devices
// fail with api.CodeCrossDevice.
func (v *VFS) Rename(src, dst string) error {
	const op = "vfs.rename"
	v.count("rename")
	s, err := v.resolveMutable(op, src)
	if err != nil {
		return err
	}
	d, err := v.resolveMutable(op, dst)
	if err != nil {
		return err
	}
	if !v.reg.same(s.dev, d.dev) {
		return api.NewError(api.CodeCrossDevice, op, src, nil)
	}
	return api.WithOp(s.b.Rename(s.inner, d.inner), op, src)
}

// Readlink returns the target of a symbolic link.
func (v *VFS) Readlink(p string) (string, error) {
	const op = "vfs.readlink"
	v.count("readlink")
	t, err := v.resolve(op, p)
	if err != nil {
		return "", err
	}
	s, err := t.b.Readlink(t.inner)
	return s, api.WithOp(err, op, p)
}
