package extfs_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/extfs"
	"github.com/spf13/afero"
)

// hotplug is a volume source whose set changes under the server.
type hotplug struct {
	mu   sync.Mutex
	vols map[string]afero.Fs
}

func (h *hotplug) Volumes() map[string]afero.Fs {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]afero.Fs, len(h.vols))
	for k, v := range h.vols {
		out[k] = v
	}
	return out
}

func (h *hotplug) set(name string, fsys afero.Fs) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fsys == nil {
		delete(h.vols, name)
		return
	}
	h.vols[name] = fsys
}

func names(t *testing.T, v *vfs.VFS, p string) []string {
	t.Helper()
	d, err := v.OpenDir(p)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	var out []string
	for {
		e, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got, err := d.Lstat(e)
		if err != nil {
			t.Fatalf("dirlstat %s: %v", e.Name, err)
		}
		want, err := v.Lstat(p + "/" + e.Name)
		if err != nil {
			t.Fatalf("lstat %s: %v", e.Name, err)
		}
		if got != want {
			t.Errorf("%s: %+v != %+v", e.Name, got, want)
		}
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

func TestVolumesAreLive(t *testing.T) {
	src := &hotplug{vols: map[string]afero.Fs{"ums0": afero.NewMemMapFs()}}
	reg := vfs.NewRegistry()
	reg.Add("hdd", api.KindExternal, extfs.New(src))
	v := vfs.New(reg)

	if got := names(t, v, "/hdd"); len(got) != 1 || got[0] != "ums0" {
		t.Fatalf("volumes %v", got)
	}
	f, err := v.Open("/hdd/ums0/backup.bin", api.OpenWrite)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("abc"))
	f.Close()

	if err := v.Mkdir("/hdd/ums0/sub"); err != nil {
		t.Fatal(err)
	}
	if got := names(t, v, "/hdd/ums0"); len(got) != 2 {
		t.Fatalf("volume listing %v", got)
	}
	f, err = v.Open("/hdd/ums0/sub/a.txt", api.OpenWrite)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("hello"))
	f.Close()
	if got := names(t, v, "/hdd/ums0/sub"); len(got) != 1 || got[0] != "a.txt" {
		t.Fatalf("nested listing %v", got)
	}

	src.set("ums1", afero.NewMemMapFs())
	if got := names(t, v, "/hdd"); len(got) != 2 {
		t.Fatalf("after plug %v", got)
	}
	if st, _ := v.Stat("/hdd"); st.Nlink != 4 {
		t.Fatalf("nlink %d", st.Nlink)
	}
	if err := v.Rename("/hdd/ums0/backup.bin", "/hdd/ums1/backup.bin"); !errors.Is(err, api.ErrCrossDevice) {
		t.Fatalf("cross volume rename: %v", err)
	}
	if err := v.Rename("/hdd/ums0/backup.bin", "/hdd/ums0/b2.bin"); err != nil {
		t.Fatal(err)
	}

	src.set("ums0", nil)
	if _, err := v.Stat("/hdd/ums0/b2.bin"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("vanished volume: %v", err)
	}
	if err := v.Rmdir("/hdd/ums1"); !errors.Is(err, api.ErrPermission) {
		t.Fatalf("volume root rmdir: %v", err)
	}
}

func TestMountDir(t *testing.T) {
	media := t.TempDir()
	os.Mkdir(filepath.Join(media, "usb0"), 0o755)
	os.WriteFile(filepath.Join(media, "usb0", "readme.txt"), []byte("hi"), 0o644)
	os.WriteFile(filepath.Join(media, "not-a-volume"), nil, 0o644)

	reg := vfs.NewRegistry()
	reg.Add("media", api.KindExternal, extfs.New(extfs.MountDir(media)))
	v := vfs.New(reg)
	if got := names(t, v, "/media"); len(got) != 1 || got[0] != "usb0" {
		t.Fatalf("volumes %v", got)
	}
	if got := names(t, v, "/media/usb0"); len(got) != 1 || got[0] != "readme.txt" {
		t.Fatalf("volume entries %v", got)
	}
	f, err := v.Open("/media/usb0/readme.txt", api.OpenRead)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "hi" {
		t.Fatalf("got %q", data)
	}
}
