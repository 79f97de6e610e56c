// File: vfs/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Device Registry: ordered name -> backend mapping. The root backend reads
// it live, so every listing of "/" reflects the current registrations.

package vfs

import (
	"io"
	"strings"

	"github.com/google/btree"
	"github.com/momentics/hioload-ftp/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Device is one registry entry. Table and Context are set only for
// KindUser devices.
type Device struct {
	Name    string
	Kind    api.Kind
	Backend Backend
	Table   Table
	Context any
}

type item struct {
	key string
	dev Device
}

func lessItem(a, b item) bool { return a.key < b.key }

// Registry owns the mounted devices. It is not safe for concurrent
// mutation.
type Registry struct {
	tree     *btree.BTreeG[item]
	foldCase bool
	log      *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// FoldCase makes device names case-insensitive. The name as first
// registered is kept for display.
func FoldCase(on bool) RegistryOption {
	return func(r *Registry) { r.foldCase = on }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tree: btree.NewG[item](16, lessItem),
		log:  Logger().Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) key(name string) string {
	if r.foldCase {
		return strings.ToLower(name)
	}
	return name
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}

// Init registers a fixed set of built-in devices. Devices whose kind is
// disabled in feats are skipped. Registration stops at the first error.
func (r *Registry) Init(devs []Device, feats api.VFSFeatures) error {
	for _, d := range devs {
		if !feats.Enabled(d.Kind) {
			r.log.Info("device kind disabled, skipping",
				zap.String("device", d.Name), zap.Stringer("kind", d.Kind))
			continue
		}
		if err := r.insert(d); err != nil {
			return err
		}
	}
	return nil
}

// Add registers a built-in backend under name.
func (r *Registry) Add(name string, kind api.Kind, b Backend) error {
	if kind == api.KindUser {
		api.Violation("vfs.add_device", "user devices are registered with AddUser")
	}
	return r.insert(Device{Name: name, Kind: kind, Backend: b})
}

// AddUser registers a user capability table. ctx is handed back verbatim on
// every call.
func (r *Registry) AddUser(name string, t Table, ctx any) error {
	if t == nil {
		api.Violation("vfs.add_device", "nil capability table for %q", name)
	}
	return r.insert(Device{
		Name:    name,
		Kind:    api.KindUser,
		Backend: &userBackend{t: t, ctx: ctx},
		Table:   t,
		Context: ctx,
	})
}

func (r *Registry) insert(d Device) error {
	const op = "vfs.add_device"
	if !validName(d.Name) {
		return api.NewError(api.CodeInvalidArgument, op, d.Name, nil)
	}
	if d.Kind == api.KindNone || d.Kind == api.KindRoot || d.Backend == nil {
		return api.NewError(api.CodeInvalidArgument, op, d.Name, nil)
	}
	it := item{key: r.key(d.Name), dev: d}
	if r.tree.Has(it) {
		return api.NewError(api.CodeExists, op, d.Name, nil)
	}
	r.tree.ReplaceOrInsert(it)
	r.log.Debug("device added", zap.String("device", d.Name), zap.Stringer("kind", d.Kind))
	return nil
}

// Lookup finds a device by name.
func (r *Registry) Lookup(name string) (Device, error) {
	it, ok := r.tree.Get(item{key: r.key(name)})
	if !ok {
		return Device{}, api.NewError(api.CodeNotFound, "vfs.lookup", name, nil)
	}
	return it.dev, nil
}

// Each calls fn for every device in name order until fn returns false.
func (r *Registry) Each(fn func(Device) bool) {
	r.tree.Ascend(func(it item) bool { return fn(it.dev) })
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	out := make([]string, 0, r.tree.Len())
	r.Each(func(d Device) bool {
		out = append(out, d.Name)
		return true
	})
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int { return r.tree.Len() }

// same reports whether two names address the same device.
func (r *Registry) same(a, b string) bool { return r.key(a) == r.key(b) }

// Exit releases every device. Backends implementing io.Closer are closed;
// all close errors are returned together. The registry is empty afterwards
// and may be initialized again.
func (r *Registry) Exit() error {
	var err error
	r.Each(func(d Device) bool {
		if c, ok := d.Backend.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				r.log.Warn("device close failed", zap.String("device", d.Name), zap.Error(cerr))
				err = multierr.Append(err, api.WithOp(cerr, "vfs.exit", d.Name))
			}
		}
		return true
	})
	r.tree.Clear(false)
	r.log.Debug("registry cleared")
	return err
}
