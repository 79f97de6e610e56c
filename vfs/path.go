// File: vfs/path.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package vfs

import (
	"path"
	"strings"

	"github.com/momentics/hioload-ftp/api"
)

// split cleans p and separates the device name from the inner path. The
// root path yields an empty device.
func split(op, p string) (dev, inner string, err error) {
	if !strings.HasPrefix(p, "/") {
		return "", "", api.NewError(api.CodeInvalidArgument, op, p, nil)
	}
	p = path.Clean(p)
	if p == "/" {
		return "", "/", nil
	}
	rest := p[1:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i:], nil
	}
	return rest, "/", nil
}

// Join builds a VFS path from a device name and an inner path.
func Join(dev, inner string) string {
	if dev == "" {
		return "/"
	}
	return path.Join("/", dev, inner)
}
