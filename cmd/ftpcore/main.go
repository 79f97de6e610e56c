// File: cmd/ftpcore/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import "github.com/momentics/hioload-ftp/internal/cli"

// version is set via ldflags at build time: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	cli.New(version).Run()
}
