package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/momentics/hioload-ftp/control"
)

// setup writes a config serving one fs device over the ipc socket leaf and
// returns its path plus the device's host directory.
func setup(t *testing.T) (cfgPath, root string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "sd")
	if err := os.MkdirAll(filepath.Join(root, "apps"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "boot.dol"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := control.DefaultConfig()
	cfg.Socket.Backend = control.BackendIPC
	cfg.VFS.Devices = []control.DeviceConfig{{Name: "sd", Kind: "fs", Path: root}}
	cfgPath = filepath.Join(dir, "config.yaml")
	if err := cfg.Save(cfgPath); err != nil {
		t.Fatal(err)
	}
	return cfgPath, root
}

// run executes one command and returns stdout, stderr and the exit code.
func run(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	c := NewForTesting(&out, &errOut, append([]string{"ftpcore"}, args...))
	c.In = strings.NewReader(stdin)
	code := 0
	c.Exit = func(n int) { code = n }
	c.Run()
	return out.String(), errOut.String(), code
}

func TestVersion(t *testing.T) {
	for _, arg := range []string{"version", "-v", "--version"} {
		out, _, code := run(t, "", arg)
		if code != 0 || !strings.Contains(out, "ftpcore vtest") {
			t.Errorf("%s: out=%q code=%d", arg, out, code)
		}
	}
}

func TestHelpAndNoCommand(t *testing.T) {
	for _, args := range [][]string{nil, {"help"}, {"-h"}} {
		out, _, code := run(t, "", args...)
		if code != 0 || !strings.Contains(out, "Usage:") {
			t.Errorf("%v: out=%q code=%d", args, out, code)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	out, errOut, code := run(t, "", "format")
	if code != 1 {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(errOut, "Unknown command: format") || !strings.Contains(out, "Usage:") {
		t.Errorf("out=%q err=%q", out, errOut)
	}
}

func TestWrongArity(t *testing.T) {
	_, errOut, code := run(t, "", "mv", "/sd/a")
	if code != 1 || !strings.Contains(errOut, "expects 2") {
		t.Errorf("err=%q code=%d", errOut, code)
	}
}

func TestListRootShowsDevices(t *testing.T) {
	cfg, _ := setup(t)
	out, errOut, code := run(t, "", "-c", cfg, "ls", "/")
	if code != 0 {
		t.Fatalf("code=%d err=%q", code, errOut)
	}
	if !strings.Contains(out, "sd/") {
		t.Errorf("root listing %q", out)
	}
}

func TestListDevice(t *testing.T) {
	cfg, _ := setup(t)
	out, _, code := run(t, "", "-c", cfg, "ls", "/sd")
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var sawDir, sawFile bool
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "d") && strings.HasSuffix(l, "apps/"):
			sawDir = true
		case strings.HasPrefix(l, "-") && strings.HasSuffix(l, "boot.dol") && strings.Contains(l, " 7 "):
			sawFile = true
		}
	}
	if !sawDir || !sawFile {
		t.Errorf("listing %q", out)
	}
}

func TestStat(t *testing.T) {
	cfg, _ := setup(t)
	out, _, code := run(t, "", "-c", cfg, "stat", "/sd/boot.dol")
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	for _, want := range []string{"type: file", "size: 7", "links: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("stat output %q lacks %q", out, want)
		}
	}
}

func TestPutThenCat(t *testing.T) {
	cfg, root := setup(t)
	out, errOut, code := run(t, "hello\n", "-c", cfg, "put", "/sd/apps/readme.txt")
	if code != 0 {
		t.Fatalf("put: code=%d err=%q", code, errOut)
	}
	if !strings.Contains(out, "6 bytes") {
		t.Errorf("put output %q", out)
	}
	if b, _ := os.ReadFile(filepath.Join(root, "apps", "readme.txt")); string(b) != "hello\n" {
		t.Errorf("host file = %q", b)
	}
	out, _, code = run(t, "", "-c", cfg, "cat", "/sd/apps/readme.txt")
	if code != 0 || out != "hello\n" {
		t.Errorf("cat: out=%q code=%d", out, code)
	}
}

func TestMutations(t *testing.T) {
	cfg, root := setup(t)
	steps := [][]string{
		{"mkdir", "/sd/saves"},
		{"mv", "/sd/boot.dol", "/sd/saves/boot.dol"},
		{"rm", "/sd/saves/boot.dol"},
		{"rmdir", "/sd/saves"},
	}
	for _, s := range steps {
		if _, errOut, code := run(t, "", append([]string{"-c", cfg}, s...)...); code != 0 {
			t.Fatalf("%v: code=%d err=%q", s, code, errOut)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "saves")); !os.IsNotExist(err) {
		t.Errorf("directory survived: %v", err)
	}
}

func TestErrorsExitNonZero(t *testing.T) {
	cfg, _ := setup(t)
	tests := [][]string{
		{"cat", "/sd/missing"},
		{"mkdir", "/sd"},
		{"rm", "/"},
		{"mv", "/sd/boot.dol", "/usb/boot.dol"},
	}
	for _, args := range tests {
		_, errOut, code := run(t, "", append([]string{"-c", cfg}, args...)...)
		if code != 1 || !strings.Contains(errOut, "Error:") {
			t.Errorf("%v: code=%d err=%q", args, code, errOut)
		}
	}
}

func TestFeatures(t *testing.T) {
	cfg, _ := setup(t)
	out, _, code := run(t, "", "-c", cfg, "features")
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	for _, want := range []string{"socket: ipc (poll native)", "* save", "* external"} {
		if !strings.Contains(out, want) {
			t.Errorf("features output %q lacks %q", out, want)
		}
	}
}

func TestProbes(t *testing.T) {
	cfg, _ := setup(t)
	out, _, code := run(t, "", "-c", cfg, "probes")
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(out, "registry.devices: [sd]") || !strings.Contains(out, "socket.backend: ipc") {
		t.Errorf("probes output %q", out)
	}
}

func TestLoopback(t *testing.T) {
	cfg, _ := setup(t)
	out, errOut, code := run(t, "", "-c", cfg, "loopback")
	if code != 0 {
		t.Fatalf("code=%d err=%q", code, errOut)
	}
	if !strings.Contains(out, `"220 ftpcore ready\r\n"`) || !strings.Contains(out, "via ipc") {
		t.Errorf("loopback output %q", out)
	}
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ftpcore", "config.yaml")
	out, _, code := run(t, "", "-c", path, "init")
	if code != 0 || !strings.Contains(out, "Created config at "+path) {
		t.Fatalf("out=%q code=%d", out, code)
	}
	cfg, err := control.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Socket.Backend != control.BackendAuto {
		t.Errorf("reloaded backend %q", cfg.Socket.Backend)
	}
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("socket: {backend: dpdk}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, errOut, code := run(t, "", "-c", path, "ls", "/")
	if code != 1 || !strings.Contains(errOut, "socket.backend") {
		t.Errorf("err=%q code=%d", errOut, code)
	}
}
