// File: internal/cli/cli.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package cli provides the ftpcore inspection commands with injectable
// io.Writer and io.Reader for testing.
package cli

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/control"
	"github.com/momentics/hioload-ftp/facade"
	"github.com/momentics/hioload-ftp/pool"
	"github.com/momentics/hioload-ftp/socket"
	"github.com/momentics/hioload-ftp/vfs"
)

// DefaultConfigPath is read when no -c flag is given.
const DefaultConfigPath = "~/.ftpcore/config.yaml"

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	In      io.Reader // Standard input, read by put
	Version string
	Args    []string // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Logger overrides the logger built from the config when non-nil.
	Logger *zap.Logger

	bufs *pool.BytePool

	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		In:      os.Stdin,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		bufs:    pool.NewBytePool(32 * 1024),
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI with colors disabled, a silent logger and
// captured output.
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		In:      strings.NewReader(""),
		Version: "test",
		Args:    args,
		Exit:    func(int) {},
		Logger:  zap.NewNop(),
		bufs:    pool.NewBytePool(4 * 1024),
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	args := c.Args[1:]
	cfgPath := DefaultConfigPath
	if len(args) >= 2 && (args[0] == "-c" || args[0] == "--config") {
		cfgPath, args = args[1], args[2:]
	}
	if len(args) == 0 {
		c.PrintUsage()
		return
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "ftpcore v%s\n", c.Version)
		return
	case "help", "-h", "--help":
		c.PrintUsage()
		return
	case "init":
		c.InitConfig(cfgPath)
		return
	}

	arity := map[string]int{
		"ls": 1, "stat": 1, "cat": 1, "put": 1, "mkdir": 1, "rm": 1, "rmdir": 1,
		"mv": 2, "readlink": 1, "features": 0, "probes": 0, "loopback": 0,
	}
	want, ok := arity[cmd]
	if !ok {
		fmt.Fprintf(c.Err, "Unknown command: %s\n", cmd)
		c.PrintUsage()
		c.Exit(1)
		return
	}
	if len(rest) != want {
		fmt.Fprintf(c.Err, "Usage: ftpcore %s expects %d argument(s)\n", cmd, want)
		c.Exit(1)
		return
	}

	cfg, err := control.Load(cfgPath)
	if err != nil {
		c.fail(err)
		return
	}
	if cmd == "features" {
		c.fail(c.Features(cfg))
		return
	}

	var opts []facade.Option
	if c.Logger != nil {
		opts = append(opts, facade.WithLogger(c.Logger))
	}
	core, err := facade.New(cfg, opts...)
	if err != nil {
		c.fail(err)
		return
	}
	defer core.Close()

	fs := core.VFS()
	switch cmd {
	case "ls":
		err = c.List(fs, rest[0])
	case "stat":
		err = c.Stat(fs, rest[0])
	case "cat":
		err = c.Cat(fs, rest[0])
	case "put":
		err = c.Put(fs, rest[0])
	case "mkdir":
		err = fs.Mkdir(rest[0])
	case "rm":
		err = fs.Unlink(rest[0])
	case "rmdir":
		err = fs.Rmdir(rest[0])
	case "mv":
		err = fs.Rename(rest[0], rest[1])
	case "readlink":
		var target string
		if target, err = fs.Readlink(rest[0]); err == nil {
			fmt.Fprintln(c.Out, target)
		}
	case "probes":
		c.Probes(core.Probes())
	case "loopback":
		err = c.Loopback(core.Transport())
	}
	c.fail(err)
}

// fail reports err, if any, and exits with status 1.
func (c *CLI) fail(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
	c.Exit(1)
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `ftpcore - FTP platform core inspector

Usage:
  ftpcore [-c config] <command> [args]

Commands:
  ls <path>                List a directory, "/" lists devices
  stat <path>              Show metadata
  cat <path>               Copy a file to stdout
  put <path>               Write stdin to a file
  mkdir <path>             Create a directory
  rm <path>                Remove a file
  rmdir <path>             Remove an empty directory
  mv <from> <to>           Rename within one device
  readlink <path>          Print a symlink target
  features                 Show the capability descriptor
  probes                   Dump debug probes
  loopback                 Exchange a line over the socket transport
  init                     Write the default config file
  version, -v              Show version
  help, -h                 Show this help

Config: `+DefaultConfigPath)
}

// InitConfig writes the default configuration to path.
func (c *CLI) InitConfig(path string) {
	if err := control.DefaultConfig().Save(path); err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", control.ExpandPath(path))
}

// List prints one line per directory entry.
func (c *CLI) List(fs *vfs.VFS, p string) error {
	d, err := fs.OpenDir(p)
	if err != nil {
		return err
	}
	defer d.Close()
	for {
		e, err := d.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		st, err := d.Lstat(e)
		if err != nil {
			fmt.Fprintf(c.Out, "%s %s\n", c.red("?"), e.Name)
			continue
		}
		name := e.Name
		if st.IsDir() {
			name = c.cyan(name + "/")
		}
		fmt.Fprintf(c.Out, "%s %s %8s %s %s\n",
			modeString(st), c.gray(ownerString(st)), c.yellow(sizeString(st)),
			st.ModTime.Format("Jan _2 15:04"), name)
	}
}

// Stat prints the metadata record of p.
func (c *CLI) Stat(fs *vfs.VFS, p string) error {
	st, err := fs.Lstat(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("path:"), p)
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("type:"), st.Type)
	fmt.Fprintf(c.Out, "%s %d\n", c.cyan("size:"), st.Size)
	fmt.Fprintf(c.Out, "%s %d\n", c.cyan("links:"), st.Nlink)
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("mode:"), modeString(st))
	if st.HasOwner {
		fmt.Fprintf(c.Out, "%s %s (%d:%d)\n", c.cyan("owner:"), ownerString(st), st.UID, st.GID)
	}
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("modified:"), st.ModTime.Format("2006-01-02 15:04:05"))
	return nil
}

// Cat copies a file to Out.
func (c *CLI) Cat(fs *vfs.VFS, p string) error {
	f, err := fs.Open(p, api.OpenRead)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := c.bufs.GetBuffer()
	defer c.bufs.PutBuffer(buf)
	_, err = io.CopyBuffer(c.Out, f, buf)
	return err
}

// Put writes In to a file, replacing it.
func (c *CLI) Put(fs *vfs.VFS, p string) error {
	f, err := fs.Open(p, api.OpenWrite)
	if err != nil {
		return err
	}
	buf := c.bufs.GetBuffer()
	defer c.bufs.PutBuffer(buf)
	n, err := io.CopyBuffer(f, c.In, buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s %s %s\n", c.green("*"), p, c.yellow(fmt.Sprintf("%d bytes", n)))
	return nil
}

// Features prints the capability descriptor cfg resolves to.
func (c *CLI) Features(cfg *control.Config) error {
	f, err := facade.Detect(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("os:"), f.OS)
	fmt.Fprintf(c.Out, "%s %s (poll %s)\n", c.cyan("socket:"), f.SocketBackend, f.Poll)
	fmt.Fprintf(c.Out, "%s %s\n", c.cyan("options:"), f.Socket.Options)
	if f.Socket.SelectPoll {
		fmt.Fprintf(c.Out, "%s %d\n", c.cyan("select size:"), f.Socket.SelectSize)
	}
	for _, k := range []api.Kind{api.KindSave, api.KindStorage, api.KindGameContent, api.KindExternal} {
		mark := c.gray("-")
		if f.VFS.Enabled(k) {
			mark = c.green("*")
		}
		fmt.Fprintf(c.Out, "  %s %s\n", mark, k)
	}
	return nil
}

// Probes prints every debug probe in name order.
func (c *CLI) Probes(dp *control.DebugProbes) {
	for _, name := range dp.Names() {
		v, _ := dp.Probe(name)
		fmt.Fprintf(c.Out, "%s %v\n", c.cyan(name+":"), v)
	}
}

// Loopback connects the transport to itself and echoes a greeting.
func (c *CLI) Loopback(tr *socket.Transport) error {
	ln, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoDefault)
	if err != nil {
		return err
	}
	defer ln.Close()
	if err := ln.SetReuseAddr(true); err != nil {
		return err
	}
	if err := ln.Bind(netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		return err
	}
	if err := ln.Listen(1); err != nil {
		return err
	}
	addr, err := ln.SockName()
	if err != nil {
		return err
	}

	cl, err := tr.Open(api.DomainInet, api.SockStream, api.ProtoTCP)
	if err != nil {
		return err
	}
	defer cl.Close()
	if err := cl.Connect(addr); err != nil {
		return err
	}
	srv, _, err := ln.Accept()
	if err != nil {
		return err
	}
	defer srv.Close()

	greeting := []byte("220 ftpcore ready\r\n")
	if _, err := srv.Send(greeting, 0); err != nil {
		return err
	}
	entries := []socket.PollEntry{{Sock: cl, Events: api.PollIn}}
	n, err := tr.Poll(entries, 1000)
	if err != nil {
		return err
	}
	if n == 0 {
		return api.NewError(api.CodeTimeout, "loopback", addr.String(), nil)
	}
	buf := c.bufs.GetBuffer()
	defer c.bufs.PutBuffer(buf)
	got, err := cl.Recv(buf, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Out, "%s %s via %s (%s poll): %q\n",
		c.green("*"), addr, tr.Name(), tr.Strategy(), buf[:got])
	return nil
}

func modeString(st api.Stat) string {
	var t byte
	switch st.Type {
	case api.TypeDir:
		t = 'd'
	case api.TypeSymlink:
		t = 'l'
	case api.TypeRegular:
		t = '-'
	default:
		t = '?'
	}
	if !st.HasPerm {
		return string(t) + "?????????"
	}
	return string(t) + st.Perm.String()[1:]
}

func ownerString(st api.Stat) string {
	if !st.HasOwner {
		return "- -"
	}
	usr, group := vfs.Owner(st)
	if usr == "" {
		usr = fmt.Sprint(st.UID)
	}
	if group == "" {
		group = fmt.Sprint(st.GID)
	}
	return usr + " " + group
}

func sizeString(st api.Stat) string {
	if st.IsDir() {
		return "-"
	}
	return fmt.Sprint(st.Size)
}
