// File: vfs/savefs/savefs.go
// Package savefs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Save-data leaf. Every top-level directory is a save container stored as a
// bolt bucket; nested directories are nested buckets and file contents are
// values. Modification times live in a hidden meta bucket beside the
// entries they describe.
//
// File handles buffer in memory. Writes become visible when the handle is
// closed, in one transaction, the same way a save container is committed.

package savefs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
)

// metaBucket holds mtimes for the sibling entries of its parent.
var metaBucket = []byte("\x00meta")

// Backend serves save containers from one bolt database.
type Backend struct {
	db       *bolt.DB
	writable bool
	created  time.Time
}

var _ vfs.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*config)

type config struct {
	writable bool
	timeout  time.Duration
}

// WithWritable allows mutation. Backends opened without it answer every
// write with api.CodeReadOnly.
func WithWritable(on bool) Option {
	return func(c *config) { c.writable = on }
}

// WithLockTimeout bounds the wait for the database file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Open opens or creates the database at dbPath.
func Open(dbPath string, opts ...Option) (*Backend, error) {
	c := config{writable: true, timeout: time.Second}
	for _, opt := range opts {
		opt(&c)
	}
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: c.timeout})
	if err != nil {
		return nil, wrap(err, "savefs.open_db", dbPath)
	}
	created := time.Now()
	if fi, err := os.Stat(dbPath); err == nil {
		created = fi.ModTime()
	}
	return &Backend{db: db, writable: c.writable, created: created}, nil
}

// Close releases the database.
func (b *Backend) Close() error {
	return wrap(b.db.Close(), "savefs.close_db", "")
}

// Containers lists the save containers in order.
func (b *Backend) Containers() ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	return out, wrap(err, "savefs.containers", "/")
}

func wrap(err error, op, p string) error {
	if err == nil {
		return nil
	}
	var ae *api.Error
	if errors.As(err, &ae) {
		return api.WithOp(ae, op, p)
	}
	code := api.CodeIO
	switch {
	case errors.Is(err, bolt.ErrBucketNotFound):
		code = api.CodeNotFound
	case errors.Is(err, bolt.ErrBucketExists):
		code = api.CodeExists
	case errors.Is(err, bolt.ErrIncompatibleValue):
		code = api.CodeIsDirectory
	case errors.Is(err, bolt.ErrDatabaseReadOnly), errors.Is(err, bolt.ErrTxNotWritable):
		code = api.CodeReadOnly
	case errors.Is(err, bolt.ErrTimeout):
		code = api.CodeBusy
	case errors.Is(err, bolt.ErrDatabaseNotOpen), errors.Is(err, bolt.ErrTxClosed):
		code = api.CodeBadHandle
	case errors.Is(err, os.ErrNotExist):
		code = api.CodeNotFound
	case errors.Is(err, os.ErrPermission):
		code = api.CodePermission
	}
	return api.NewError(code, op, p, errors.New(err.Error()))
}

func segments(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// bucketOf walks to the directory bucket at segs. It returns nil when the
// path does not name a directory. The root has no bucket.
func bucketOf(tx *bolt.Tx, segs []string) *bolt.Bucket {
	if len(segs) == 0 {
		return nil
	}
	bk := tx.Bucket([]byte(segs[0]))
	for _, s := range segs[1:] {
		if bk == nil {
			return nil
		}
		bk = bk.Bucket([]byte(s))
	}
	return bk
}

// parentOf resolves the parent bucket of a non-container entry.
func parentOf(tx *bolt.Tx, op, p string) (*bolt.Bucket, string, error) {
	segs := segments(p)
	if len(segs) < 2 {
		return nil, "", api.NewError(api.CodePermission, op, p, nil)
	}
	parent := bucketOf(tx, segs[:len(segs)-1])
	if parent == nil {
		return nil, "", api.NewError(api.CodeNotFound, op, p, nil)
	}
	return parent, segs[len(segs)-1], nil
}

func (b *Backend) guard(op, p string) error {
	if !b.writable {
		return api.NewError(api.CodeReadOnly, op, p, nil)
	}
	return nil
}

func putTime(parent *bolt.Bucket, name string, t time.Time) error {
	meta, err := parent.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(t.UnixNano()))
	return meta.Put([]byte(name), v[:])
}

func getTime(parent *bolt.Bucket, name string) time.Time {
	if meta := parent.Bucket(metaBucket); meta != nil {
		if v := meta.Get([]byte(name)); len(v) == 8 {
			return time.Unix(0, int64(binary.BigEndian.Uint64(v)))
		}
	}
	return time.Time{}
}

func dropTime(parent *bolt.Bucket, name string) error {
	if meta := parent.Bucket(metaBucket); meta != nil {
		return meta.Delete([]byte(name))
	}
	return nil
}

func (b *Backend) Open(p string, mode api.OpenMode) (vfs.FileImpl, error) {
	const op = "savefs.open"
	if mode.Writable() {
		if err := b.guard(op, p); err != nil {
			return nil, err
		}
	}
	f := &file{b: b, p: p, mode: mode}
	missing := false
	err := b.db.View(func(tx *bolt.Tx) error {
		parent, name, err := parentOf(tx, op, p)
		if err != nil {
			return err
		}
		if parent.Bucket([]byte(name)) != nil {
			return api.NewError(api.CodeIsDirectory, op, p, nil)
		}
		v := parent.Get([]byte(name))
		if v == nil && mode == api.OpenRead {
			return api.NewError(api.CodeNotFound, op, p, nil)
		}
		if mode != api.OpenWrite {
			f.buf = append([]byte(nil), v...)
		}
		missing = v == nil
		return nil
	})
	if err != nil {
		return nil, wrap(err, op, p)
	}
	if mode == api.OpenAppend {
		f.off = len(f.buf)
	}
	// Write truncates and append creates at open time, like O_TRUNC and
	// O_CREAT on a host file; the contents still commit on close.
	if mode == api.OpenWrite || missing {
		err := b.db.Update(func(tx *bolt.Tx) error {
			parent, name, err := parentOf(tx, op, p)
			if err != nil {
				return err
			}
			if err := parent.Put([]byte(name), []byte{}); err != nil {
				return err
			}
			return putTime(parent, name, time.Now())
		})
		if err != nil {
			return nil, wrap(err, op, p)
		}
		f.dirty = true
	}
	return f, nil
}

func (b *Backend) OpenDir(p string) (vfs.DirImpl, error) {
	const op = "savefs.opendir"
	d := &dir{b: b}
	err := b.db.View(func(tx *bolt.Tx) error {
		segs := segments(p)
		if len(segs) == 0 {
			return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
				d.entries = append(d.entries, vfs.DirEntry{Name: string(name), Type: api.TypeDir})
				return nil
			})
		}
		bk := bucketOf(tx, segs)
		if bk == nil {
			if parent := bucketOf(tx, segs[:len(segs)-1]); parent != nil && parent.Get([]byte(segs[len(segs)-1])) != nil {
				return api.NewError(api.CodeNotDirectory, op, p, nil)
			}
			return api.NewError(api.CodeNotFound, op, p, nil)
		}
		return bk.ForEach(func(k, v []byte) error {
			if bytes.Equal(k, metaBucket) {
				return nil
			}
			t := api.TypeRegular
			if v == nil {
				t = api.TypeDir
			}
			d.entries = append(d.entries, vfs.DirEntry{Name: string(k), Type: t})
			return nil
		})
	})
	if err != nil {
		return nil, wrap(err, op, p)
	}
	sort.Slice(d.entries, func(i, j int) bool { return d.entries[i].Name < d.entries[j].Name })
	return d, nil
}

func (b *Backend) Stat(p string) (api.Stat, error) {
	const op = "savefs.stat"
	var st api.Stat
	err := b.db.View(func(tx *bolt.Tx) error {
		segs := segments(p)
		if len(segs) == 0 {
			n := 0
			tx.ForEach(func([]byte, *bolt.Bucket) error { n++; return nil })
			st = api.Stat{Type: api.TypeDir, Nlink: 2 + uint64(n), ModTime: b.created}
			return nil
		}
		if len(segs) == 1 {
			bk := tx.Bucket([]byte(segs[0]))
			if bk == nil {
				return api.NewError(api.CodeNotFound, op, p, nil)
			}
			st = dirStat(bk, b.created)
			return nil
		}
		parent, name, err := parentOf(tx, op, p)
		if err != nil {
			return err
		}
		if bk := parent.Bucket([]byte(name)); bk != nil {
			st = dirStat(bk, getTime(parent, name))
			return nil
		}
		v := parent.Get([]byte(name))
		if v == nil {
			return api.NewError(api.CodeNotFound, op, p, nil)
		}
		st = api.Stat{Type: api.TypeRegular, Size: int64(len(v)), Nlink: 1, ModTime: getTime(parent, name)}
		return nil
	})
	return st, wrap(err, op, p)
}

func dirStat(bk *bolt.Bucket, mtime time.Time) api.Stat {
	n := uint64(2)
	bk.ForEach(func(k, v []byte) error {
		if v == nil && !bytes.Equal(k, metaBucket) {
			n++
		}
		return nil
	})
	return api.Stat{Type: api.TypeDir, Nlink: n, ModTime: mtime}
}

// Lstat equals Stat: save containers hold no links.
func (b *Backend) Lstat(p string) (api.Stat, error) { return b.Stat(p) }

func (b *Backend) Mkdir(p string) error {
	const op = "savefs.mkdir"
	if err := b.guard(op, p); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		segs := segments(p)
		switch len(segs) {
		case 0:
			return api.NewError(api.CodeExists, op, p, nil)
		case 1:
			_, err := tx.CreateBucket([]byte(segs[0]))
			return err
		}
		parent, name, err := parentOf(tx, op, p)
		if err != nil {
			return err
		}
		if parent.Get([]byte(name)) != nil {
			return api.NewError(api.CodeExists, op, p, nil)
		}
		if _, err := parent.CreateBucket([]byte(name)); err != nil {
			return err
		}
		return putTime(parent, name, time.Now())
	})
	return wrap(err, op, p)
}

func (b *Backend) Unlink(p string) error {
	const op = "savefs.unlink"
	if err := b.guard(op, p); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		parent, name, err := parentOf(tx, op, p)
		if err != nil {
			return err
		}
		if parent.Bucket([]byte(name)) != nil {
			return api.NewError(api.CodeIsDirectory, op, p, nil)
		}
		if parent.Get([]byte(name)) == nil {
			return api.NewError(api.CodeNotFound, op, p, nil)
		}
		if err := parent.Delete([]byte(name)); err != nil {
			return err
		}
		return dropTime(parent, name)
	})
	return wrap(err, op, p)
}

func isEmpty(bk *bolt.Bucket) bool {
	empty := true
	bk.ForEach(func(k, _ []byte) error {
		if !bytes.Equal(k, metaBucket) {
			empty = false
		}
		return nil
	})
	return empty
}

func (b *Backend) Rmdir(p string) error {
	const op = "savefs.rmdir"
	if err := b.guard(op, p); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		segs := segments(p)
		if len(segs) == 0 {
			return api.NewError(api.CodePermission, op, p, nil)
		}
		if len(segs) == 1 {
			bk := tx.Bucket([]byte(segs[0]))
			if bk == nil {
				return api.NewError(api.CodeNotFound, op, p, nil)
			}
			if !isEmpty(bk) {
				return api.NewError(api.CodeNotEmpty, op, p, nil)
			}
			return tx.DeleteBucket([]byte(segs[0]))
		}
		parent, name, err := parentOf(tx, op, p)
		if err != nil {
			return err
		}
		bk := parent.Bucket([]byte(name))
		if bk == nil {
			if parent.Get([]byte(name)) != nil {
				return api.NewError(api.CodeNotDirectory, op, p, nil)
			}
			return api.NewError(api.CodeNotFound, op, p, nil)
		}
		if !isEmpty(bk) {
			return api.NewError(api.CodeNotEmpty, op, p, nil)
		}
		if err := parent.DeleteBucket([]byte(name)); err != nil {
			return err
		}
		return dropTime(parent, name)
	})
	return wrap(err, op, p)
}

// Rename moves a file. Buckets cannot be moved, so renaming a directory
// answers api.CodeNotSupported.
func (b *Backend) Rename(src, dst string) error {
	const op = "savefs.rename"
	if err := b.guard(op, src); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		from, fname, err := parentOf(tx, op, src)
		if err != nil {
			return err
		}
		to, tname, err := parentOf(tx, op, dst)
		if err != nil {
			return err
		}
		if from.Bucket([]byte(fname)) != nil {
			return api.NewError(api.CodeNotSupported, op, src, nil)
		}
		v := from.Get([]byte(fname))
		if v == nil {
			return api.NewError(api.CodeNotFound, op, src, nil)
		}
		if to.Bucket([]byte(tname)) != nil {
			return api.NewError(api.CodeIsDirectory, op, dst, nil)
		}
		data := append([]byte(nil), v...)
		mtime := getTime(from, fname)
		if err := from.Delete([]byte(fname)); err != nil {
			return err
		}
		if err := dropTime(from, fname); err != nil {
			return err
		}
		if err := to.Put([]byte(tname), data); err != nil {
			return err
		}
		return putTime(to, tname, mtime)
	})
	return wrap(err, op, src)
}

func (b *Backend) Readlink(p string) (string, error) {
	return "", api.NewError(api.CodeInvalidArgument, "savefs.readlink", p, nil)
}

// file is an in-memory image of one value, committed on Close when dirty.
type file struct {
	b     *Backend
	p     string
	mode  api.OpenMode
	buf   []byte
	off   int
	dirty bool
}

func (f *file) Read(p []byte) (int, error) {
	if f.off >= len(f.buf) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.off:])
	f.off += n
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	if f.mode == api.OpenAppend {
		f.off = len(f.buf)
	}
	if end := f.off + len(p); end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	copy(f.buf[f.off:], p)
	f.off += len(p)
	f.dirty = true
	return len(p), nil
}

func (f *file) Seek(off int64) error {
	if off < 0 || uint64(off) > math.MaxInt {
		return api.NewError(api.CodeInvalidArgument, "savefs.seek", f.p, nil)
	}
	f.off = int(off)
	return nil
}

func (f *file) Close() error {
	if !f.dirty {
		return nil
	}
	const op = "savefs.commit"
	err := f.b.db.Update(func(tx *bolt.Tx) error {
		parent, name, err := parentOf(tx, op, f.p)
		if err != nil {
			return err
		}
		if f.buf == nil {
			f.buf = []byte{}
		}
		if err := parent.Put([]byte(name), f.buf); err != nil {
			return err
		}
		return putTime(parent, name, time.Now())
	})
	f.buf = nil
	return wrap(err, op, f.p)
}

// dir is a snapshot of the names present at opendir time.
type dir struct {
	b       *Backend
	entries []vfs.DirEntry
	next    int
}

func (d *dir) Next() (vfs.DirEntry, error) {
	if d.next >= len(d.entries) {
		return vfs.DirEntry{}, io.EOF
	}
	e := d.entries[d.next]
	d.next++
	return e, nil
}

func (d *dir) Lstat(e vfs.DirEntry, parent string) (api.Stat, error) {
	return d.b.Lstat(path.Join(parent, e.Name))
}

func (d *dir) Close() error {
	d.entries = nil
	return nil
}
