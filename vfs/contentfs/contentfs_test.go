package contentfs_test

import (
	"errors"
	"io"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/contentfs"
)

// noSeek hides io.Seeker so the reopen path is exercised.
type noSeek struct{ fs.FS }

type plainFile struct{ fs.File }

func (n noSeek) Open(name string) (fs.File, error) {
	f, err := n.FS.Open(name)
	if err != nil {
		return nil, err
	}
	if rd, ok := f.(fs.ReadDirFile); ok {
		return rd, nil
	}
	return plainFile{f}, nil
}

func mount(t *testing.T) *vfs.VFS {
	t.Helper()
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	secure := fstest.MapFS{
		"0100000000001000.nca": {Data: []byte("program"), ModTime: mtime},
		"meta/control.nacp":    {Data: make([]byte, 0x4000), ModTime: mtime},
		"meta/icon/en.jpg":     {Data: []byte{0xFF, 0xD8}, ModTime: mtime},
	}
	normal := fstest.MapFS{
		"update.bin": {Data: []byte("0123456789")},
	}
	b, err := contentfs.New(map[string]fs.FS{"secure": secure, "normal": noSeek{normal}})
	if err != nil {
		t.Fatal(err)
	}
	reg := vfs.NewRegistry()
	if err := reg.Add("gc", api.KindGameContent, b); err != nil {
		t.Fatal(err)
	}
	return vfs.New(reg)
}

func list(t *testing.T, v *vfs.VFS, p string) map[string]api.Stat {
	t.Helper()
	d, err := v.OpenDir(p)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	out := map[string]api.Stat{}
	for {
		e, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		st, err := d.Lstat(e)
		if err != nil {
			t.Fatal(err)
		}
		out[e.Name] = st
	}
	return out
}

func TestDeferredMetadataMatchesLstat(t *testing.T) {
	v := mount(t)
	for _, dir := range []string{"/gc", "/gc/secure", "/gc/secure/meta", "/gc/normal"} {
		for name, got := range list(t, v, dir) {
			want, err := v.Lstat(dir + "/" + name)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("%s/%s: dirlstat %+v != lstat %+v", dir, name, got, want)
			}
		}
	}
	root := list(t, v, "/gc")
	if len(root) != 2 || !root["secure"].IsDir() {
		t.Fatalf("partitions %v", root)
	}
	meta := list(t, v, "/gc/secure/meta")
	if meta["control.nacp"].Size != 0x4000 || !meta["icon"].IsDir() {
		t.Fatalf("meta %v", meta)
	}
	if meta["control.nacp"].Perm&0o222 != 0 {
		t.Fatal("content reported writable")
	}
}

func TestReadAndSeek(t *testing.T) {
	v := mount(t)
	for _, p := range []string{"/gc/secure/0100000000001000.nca", "/gc/normal/update.bin"} {
		f, err := v.Open(p, api.OpenRead)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.Seek(3); err != nil {
			t.Fatal(err)
		}
		rest, err := io.ReadAll(f)
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
		if p == "/gc/normal/update.bin" && string(rest) != "3456789" {
			t.Fatalf("%s: %q", p, rest)
		}
		if p == "/gc/secure/0100000000001000.nca" && string(rest) != "gram" {
			t.Fatalf("%s: %q", p, rest)
		}
	}
}

func TestReadOnlyAndMissing(t *testing.T) {
	v := mount(t)
	if _, err := v.Open("/gc/secure/new", api.OpenWrite); !errors.Is(err, api.ErrReadOnly) {
		t.Fatalf("write: %v", err)
	}
	if err := v.Mkdir("/gc/secure/x"); !errors.Is(err, api.ErrReadOnly) {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := v.Stat("/gc/logo"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("missing partition: %v", err)
	}
	if _, err := v.Stat("/gc/secure/none"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("missing file: %v", err)
	}
	if _, err := v.Open("/gc/secure/meta", api.OpenRead); !errors.Is(err, api.ErrIsDirectory) {
		t.Fatalf("open dir: %v", err)
	}
	if _, err := v.OpenDir("/gc/normal/update.bin"); !errors.Is(err, api.ErrNotDirectory) {
		t.Fatalf("opendir file: %v", err)
	}
}
