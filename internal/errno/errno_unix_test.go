//go:build unix

package errno

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-ftp/api"
	"golang.org/x/sys/unix"
)

func TestFromErrno(t *testing.T) {
	cases := map[unix.Errno]api.ErrorCode{
		unix.EAGAIN:        api.CodeWouldBlock,
		unix.ECONNRESET:    api.CodeConnReset,
		unix.EPIPE:         api.CodeBrokenPipe,
		unix.ENOENT:        api.CodeNotFound,
		unix.EXDEV:         api.CodeCrossDevice,
		unix.Errno(0x7fff): api.CodeIO,
	}
	for e, want := range cases {
		if got := FromErrno(e); got != want {
			t.Errorf("FromErrno(%v) = %v, want %v", e, got, want)
		}
	}
	err := Wrap(unix.ECONNREFUSED, "socket.connect", "127.0.0.1:1")
	var raw unix.Errno
	if errors.As(err, &raw) {
		t.Fatal("raw errno must not cross the boundary")
	}
	if !errors.Is(err, api.ErrConnRefused) {
		t.Fatalf("got %v", err)
	}
}
