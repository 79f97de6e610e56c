package stdiofs_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/stdiofs"
	"github.com/spf13/afero"
)

func mount(t *testing.T, fsys afero.Fs, opts ...stdiofs.Option) *vfs.VFS {
	t.Helper()
	reg := vfs.NewRegistry()
	if err := reg.Add("romfs", api.KindStdio, stdiofs.New(fsys, opts...)); err != nil {
		t.Fatal(err)
	}
	return vfs.New(reg)
}

func TestBufferedRoundTrip(t *testing.T) {
	fsys := afero.NewMemMapFs()
	v := mount(t, fsys, stdiofs.WithBufferSize(16))
	payload := bytes.Repeat([]byte("stream-"), 100)

	f, err := v.Open("/romfs/data.bin", api.OpenWrite)
	if err != nil {
		t.Fatal(err)
	}
	for off := 0; off < len(payload); off += 50 {
		end := min(off+50, len(payload))
		if _, err := f.Write(payload[off:end]); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	f, err = v.Open("/romfs/data.bin", api.OpenRead)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(f)
	f.Close()
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("read back %d bytes, err=%v", len(got), err)
	}
}

func TestSeekFlushesWrites(t *testing.T) {
	fsys := afero.NewMemMapFs()
	v := mount(t, fsys)
	f, _ := v.Open("/romfs/f", api.OpenWrite)
	f.Write([]byte("aaaaaa"))
	if err := f.Seek(2); err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("BB"))
	f.Close()
	data, _ := afero.ReadFile(fsys, "/f")
	if string(data) != "aaBBaa" {
		t.Fatalf("got %q", data)
	}

	r, _ := v.Open("/romfs/f", api.OpenRead)
	defer r.Close()
	buf := make([]byte, 2)
	r.Read(buf)
	r.Seek(4)
	n, _ := r.Read(buf)
	if string(buf[:n]) != "aa" {
		t.Fatalf("after seek %q", buf[:n])
	}
}

func TestDirectoryOps(t *testing.T) {
	fsys := afero.NewMemMapFs()
	v := mount(t, fsys)
	if err := v.Mkdir("/romfs/d"); err != nil {
		t.Fatal(err)
	}
	if err := v.Mkdir("/romfs/d"); !errors.Is(err, api.ErrExists) {
		t.Fatalf("mkdir twice: %v", err)
	}
	afero.WriteFile(fsys, "/d/x", []byte("xyz"), 0o644)
	if err := v.Rmdir("/romfs/d"); !errors.Is(err, api.ErrNotEmpty) {
		t.Fatalf("rmdir non-empty: %v", err)
	}
	if err := v.Unlink("/romfs/d"); !errors.Is(err, api.ErrIsDirectory) {
		t.Fatalf("unlink dir: %v", err)
	}

	d, err := v.OpenDir("/romfs/d")
	if err != nil {
		t.Fatal(err)
	}
	e, err := d.Next()
	if err != nil || e.Name != "x" || e.Type != api.TypeRegular || e.Kind != api.KindStdio {
		t.Fatalf("entry %+v %v", e, err)
	}
	got, _ := d.Lstat(e)
	want, _ := v.Lstat("/romfs/d/x")
	if got != want || got.Size != 3 {
		t.Fatalf("%+v != %+v", got, want)
	}
	for i := 0; i < 3; i++ {
		if _, err := d.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("exhausted dir #%d: %v", i, err)
		}
	}
	d.Close()

	if err := v.Rename("/romfs/d/x", "/romfs/y"); err != nil {
		t.Fatal(err)
	}
	if err := v.Unlink("/romfs/y"); err != nil {
		t.Fatal(err)
	}
	if err := v.Rmdir("/romfs/d"); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Stat("/romfs/d"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("stat removed dir: %v", err)
	}
	if _, err := v.Readlink("/romfs/anything"); !errors.Is(err, api.ErrNotSupported) {
		t.Fatalf("readlink: %v", err)
	}
}

func TestReadOnlyFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/f", []byte("x"), 0o644)
	v := mount(t, fsys, stdiofs.WithReadOnly(true))
	if _, err := v.Open("/romfs/f", api.OpenAppend); !errors.Is(err, api.ErrReadOnly) {
		t.Fatalf("append: %v", err)
	}
	if err := v.Rename("/romfs/f", "/romfs/g"); !errors.Is(err, api.ErrReadOnly) {
		t.Fatalf("rename: %v", err)
	}
}
