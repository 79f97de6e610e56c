package vfs_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/fake"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/stdiofs"
	"github.com/spf13/afero"
)

type closer struct {
	vfs.Backend
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func mem() vfs.Backend { return stdiofs.New(afero.NewMemMapFs()) }

func TestRegistryOrderedAndUnique(t *testing.T) {
	r := vfs.NewRegistry()
	for _, n := range []string{"sdmc", "bis", "save", "gc"} {
		if err := r.Add(n, api.KindFS, mem()); err != nil {
			t.Fatal(err)
		}
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"bis", "gc", "save", "sdmc"}) {
		t.Fatalf("names %v", got)
	}
	if err := r.Add("sdmc", api.KindFS, mem()); !errors.Is(err, api.ErrExists) {
		t.Fatalf("duplicate: %v", err)
	}
	for _, bad := range []string{"", "a/b", "..", "."} {
		if err := r.Add(bad, api.KindFS, mem()); !errors.Is(err, api.ErrInvalidArgument) {
			t.Errorf("%q: %v", bad, err)
		}
	}
	if err := r.Add("root", api.KindRoot, mem()); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("root kind: %v", err)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("lookup: %v", err)
	}
	if r.Len() != 4 {
		t.Fatalf("len %d", r.Len())
	}
}

func TestRegistryFoldCase(t *testing.T) {
	r := vfs.NewRegistry(vfs.FoldCase(true))
	r.Add("SdMc", api.KindFS, mem())
	if err := r.Add("sdmc", api.KindFS, mem()); !errors.Is(err, api.ErrExists) {
		t.Fatalf("folded duplicate: %v", err)
	}
	d, err := r.Lookup("SDMC")
	if err != nil || d.Name != "SdMc" {
		t.Fatalf("lookup %+v %v", d, err)
	}

	exact := vfs.NewRegistry()
	exact.Add("SdMc", api.KindFS, mem())
	if err := exact.Add("sdmc", api.KindFS, mem()); err != nil {
		t.Fatalf("case-sensitive registry: %v", err)
	}
}

func TestRegistryInitGatesKinds(t *testing.T) {
	r := vfs.NewRegistry()
	devs := []vfs.Device{
		{Name: "sdmc", Kind: api.KindFS, Backend: mem()},
		{Name: "save", Kind: api.KindSave, Backend: mem()},
		{Name: "bis", Kind: api.KindStorage, Backend: mem()},
		{Name: "hdd", Kind: api.KindExternal, Backend: mem()},
	}
	if err := r.Init(devs, api.VFSFeatures{Storage: true}); err != nil {
		t.Fatal(err)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"bis", "sdmc"}) {
		t.Fatalf("names %v", got)
	}
}

func TestRegistryExit(t *testing.T) {
	r := vfs.NewRegistry()
	a := &closer{Backend: mem()}
	b := &closer{Backend: mem(), err: api.NewError(api.CodeIO, "flush", "", nil)}
	r.Add("a", api.KindFS, a)
	r.Add("b", api.KindSave, b)
	r.AddUser("u", fake.NewTable(), nil)

	err := r.Exit()
	if !errors.Is(err, api.ErrIO) {
		t.Fatalf("exit: %v", err)
	}
	if a.closed != 1 || b.closed != 1 {
		t.Fatalf("closed a=%d b=%d", a.closed, b.closed)
	}
	if r.Len() != 0 {
		t.Fatal("registry not cleared")
	}
	if err := r.Add("a", api.KindFS, mem()); err != nil {
		t.Fatalf("re-init after exit: %v", err)
	}
}

func TestAddUserDeviceKind(t *testing.T) {
	r := vfs.NewRegistry()
	tbl := fake.NewTable()
	ctx := &struct{ id int }{42}
	if err := r.AddUser("plugin", tbl, ctx); err != nil {
		t.Fatal(err)
	}
	d, _ := r.Lookup("plugin")
	if d.Kind != api.KindUser || d.Context != ctx || d.Table != tbl {
		t.Fatalf("device %+v", d)
	}
	defer func() {
		if _, ok := recover().(*api.ContractError); !ok {
			t.Fatal("Add with KindUser must panic")
		}
	}()
	r.Add("x", api.KindUser, mem())
}
