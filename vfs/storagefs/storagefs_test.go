package storagefs_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/storagefs"
)

func TestPartitionsReadOnly(t *testing.T) {
	prodinfo := bytes.Repeat([]byte{0xAB}, 4096)
	b, err := storagefs.New(
		storagefs.Partition{Name: "PRODINFO", Size: int64(len(prodinfo)), Source: bytes.NewReader(prodinfo)},
		storagefs.Partition{Name: "BCPKG2-1", Size: 16, Source: bytes.NewReader(make([]byte, 16))},
	)
	if err != nil {
		t.Fatal(err)
	}
	reg := vfs.NewRegistry()
	reg.Add("bis", api.KindStorage, b)
	v := vfs.New(reg)

	f, err := v.Open("/bis/PRODINFO", api.OpenRead)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Seek(4000); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(f)
	if len(rest) != 96 {
		t.Fatalf("read %d bytes after seek", len(rest))
	}
	f.Close()

	if _, err := v.Open("/bis/PRODINFO", api.OpenWrite); !errors.Is(err, api.ErrReadOnly) {
		t.Fatalf("open write: %v", err)
	}
	if err := v.Unlink("/bis/PRODINFO"); !errors.Is(err, api.ErrReadOnly) {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := v.Stat("/bis/SAFE"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("stat missing: %v", err)
	}

	d, _ := v.OpenDir("/bis")
	defer d.Close()
	var names []string
	for {
		e, err := d.Next()
		if err == io.EOF {
			break
		}
		names = append(names, e.Name)
		got, _ := d.Lstat(e)
		want, _ := v.Lstat("/bis/" + e.Name)
		if got != want {
			t.Errorf("%s: %+v != %+v", e.Name, got, want)
		}
	}
	if len(names) != 2 || names[0] != "BCPKG2-1" {
		t.Fatalf("names %v", names)
	}
}

func TestDuplicatePartition(t *testing.T) {
	r := bytes.NewReader(nil)
	_, err := storagefs.New(storagefs.Partition{Name: "a", Source: r}, storagefs.Partition{Name: "a", Source: r})
	if !errors.Is(err, api.ErrExists) {
		t.Fatalf("got %v", err)
	}
}

func TestOpenImages(t *testing.T) {
	img := filepath.Join(t.TempDir(), "user.img")
	os.WriteFile(img, []byte("raw-bytes"), 0o600)
	b, err := storagefs.OpenImages(map[string]string{"USER": img})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	st, err := b.Stat("/USER")
	if err != nil || st.Size != 9 {
		t.Fatalf("%+v %v", st, err)
	}
	if _, err := storagefs.OpenImages(map[string]string{"X": filepath.Join(t.TempDir(), "none")}); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("missing image: %v", err)
	}
}
