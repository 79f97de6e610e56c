// File: fake/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
)

// Call is one recorded capability table invocation.
type Call struct {
	Op  string
	Ctx any
}

// Table is an in-memory vfs.Table that records every call it receives.
// Directories are implicit: any prefix of a stored file is a directory.
type Table struct {
	mu    sync.Mutex
	files map[string][]byte
	mtime map[string]time.Time
	dirs  map[string]bool
	calls []Call

	// Fail, when set, makes the named operation return it.
	Fail map[string]error
}

var _ vfs.Table = (*Table)(nil)

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		files: map[string][]byte{},
		mtime: map[string]time.Time{},
		dirs:  map[string]bool{"/": true},
		Fail:  map[string]error{},
	}
}

// Calls returns a copy of the recorded calls.
func (t *Table) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Count returns how many times op was called.
func (t *Table) Count(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls.
func (t *Table) Reset() {
	t.mu.Lock()
	t.calls = nil
	t.mu.Unlock()
}

func (t *Table) record(op string, ctx any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, Call{Op: op, Ctx: ctx})
	return t.Fail[op]
}

type file struct {
	name string
	mode api.OpenMode
	off  int
}

type dir struct {
	names []string
	next  int
}

func (t *Table) Open(ctx any, p string, mode api.OpenMode) (any, error) {
	if err := t.record("open", ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirs[p] {
		return nil, api.NewError(api.CodeIsDirectory, "fake.open", p, nil)
	}
	if !t.dirs[path.Dir(p)] {
		return nil, api.NewError(api.CodeNotFound, "fake.open", p, nil)
	}
	_, ok := t.files[p]
	switch mode {
	case api.OpenRead:
		if !ok {
			return nil, api.NewError(api.CodeNotFound, "fake.open", p, nil)
		}
	case api.OpenWrite:
		t.files[p] = nil
		t.mtime[p] = time.Now()
	case api.OpenAppend:
		if !ok {
			t.files[p] = nil
			t.mtime[p] = time.Now()
		}
	}
	return &file{name: p, mode: mode}, nil
}

func (t *Table) Read(ctx, f any, p []byte) (int, error) {
	if err := t.record("read", ctx); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := f.(*file)
	data := t.files[h.name]
	if h.off >= len(data) {
		return 0, io.EOF
	}
	n := copy(p, data[h.off:])
	h.off += n
	return n, nil
}

func (t *Table) Write(ctx, f any, p []byte) (int, error) {
	if err := t.record("write", ctx); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := f.(*file)
	data := t.files[h.name]
	if h.mode == api.OpenAppend {
		h.off = len(data)
	}
	if end := h.off + len(p); end > len(data) {
		data = append(data, make([]byte, end-len(data))...)
	}
	copy(data[h.off:], p)
	h.off += len(p)
	t.files[h.name] = data
	t.mtime[h.name] = time.Now()
	return len(p), nil
}

func (t *Table) Seek(ctx, f any, off int64) error {
	if err := t.record("seek", ctx); err != nil {
		return err
	}
	f.(*file).off = int(off)
	return nil
}

func (t *Table) Close(ctx, f any) error {
	return t.record("close", ctx)
}

func (t *Table) OpenDir(ctx any, p string) (any, error) {
	if err := t.record("opendir", ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirs[p] {
		return nil, api.NewError(api.CodeNotFound, "fake.opendir", p, nil)
	}
	d := &dir{}
	for name := range t.children(p) {
		d.names = append(d.names, name)
	}
	sort.Strings(d.names)
	return d, nil
}

// children returns the direct child names of p. Caller holds mu.
func (t *Table) children(p string) map[string]bool {
	out := map[string]bool{}
	add := func(full string) {
		if full != p && path.Dir(full) == p {
			out[path.Base(full)] = true
		}
	}
	for f := range t.files {
		add(f)
	}
	for d := range t.dirs {
		add(d)
	}
	return out
}

func (t *Table) ReadDir(ctx, d any) (vfs.DirEntry, error) {
	if err := t.record("readdir", ctx); err != nil {
		return vfs.DirEntry{}, err
	}
	h := d.(*dir)
	if h.next >= len(h.names) {
		return vfs.DirEntry{}, io.EOF
	}
	name := h.names[h.next]
	h.next++
	return vfs.DirEntry{Name: name}, nil
}

func (t *Table) DirLstat(ctx, _ any, e vfs.DirEntry, parent string) (api.Stat, error) {
	if err := t.record("dirlstat", ctx); err != nil {
		return api.Stat{}, err
	}
	return t.stat(path.Join(parent, e.Name))
}

func (t *Table) CloseDir(ctx, _ any) error {
	return t.record("closedir", ctx)
}

func (t *Table) stat(p string) (api.Stat, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirs[p] {
		return api.Stat{Type: api.TypeDir, Nlink: 2}, nil
	}
	data, ok := t.files[p]
	if !ok {
		return api.Stat{}, api.NewError(api.CodeNotFound, "fake.stat", p, nil)
	}
	return api.Stat{Type: api.TypeRegular, Size: int64(len(data)), Nlink: 1, ModTime: t.mtime[p]}, nil
}

func (t *Table) Stat(ctx any, p string) (api.Stat, error) {
	if err := t.record("stat", ctx); err != nil {
		return api.Stat{}, err
	}
	return t.stat(p)
}

func (t *Table) Lstat(ctx any, p string) (api.Stat, error) {
	if err := t.record("lstat", ctx); err != nil {
		return api.Stat{}, err
	}
	return t.stat(p)
}

func (t *Table) Mkdir(ctx any, p string) error {
	if err := t.record("mkdir", ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirs[p] {
		return api.NewError(api.CodeExists, "fake.mkdir", p, nil)
	}
	if _, ok := t.files[p]; ok {
		return api.NewError(api.CodeExists, "fake.mkdir", p, nil)
	}
	if !t.dirs[path.Dir(p)] {
		return api.NewError(api.CodeNotFound, "fake.mkdir", p, nil)
	}
	t.dirs[p] = true
	return nil
}

func (t *Table) Unlink(ctx any, p string) error {
	if err := t.record("unlink", ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[p]; !ok {
		return api.NewError(api.CodeNotFound, "fake.unlink", p, nil)
	}
	delete(t.files, p)
	delete(t.mtime, p)
	return nil
}

func (t *Table) Rmdir(ctx any, p string) error {
	if err := t.record("rmdir", ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirs[p] {
		return api.NewError(api.CodeNotFound, "fake.rmdir", p, nil)
	}
	if len(t.children(p)) > 0 {
		return api.NewError(api.CodeNotEmpty, "fake.rmdir", p, nil)
	}
	delete(t.dirs, p)
	return nil
}

func (t *Table) Rename(ctx any, src, dst string) error {
	if err := t.record("rename", ctx); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.files[src]
	if !ok {
		return api.NewError(api.CodeNotFound, "fake.rename", src, nil)
	}
	delete(t.files, src)
	t.files[dst] = data
	t.mtime[dst] = t.mtime[src]
	delete(t.mtime, src)
	return nil
}

func (t *Table) Readlink(ctx any, p string) (string, error) {
	if err := t.record("readlink", ctx); err != nil {
		return "", err
	}
	return "", api.NewError(api.CodeInvalidArgument, "fake.readlink", p, nil)
}
