//go:build !linux
// +build !linux

// File: vfs/nativefs/stat_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package nativefs

import (
	"os"

	"github.com/momentics/hioload-ftp/api"
)

// hostStat falls back to os metadata: no owner ids, synthetic link count.
func hostStat(full string, follow bool) (api.Stat, error) {
	stat := os.Lstat
	if follow {
		stat = os.Stat
	}
	fi, err := stat(full)
	if err != nil {
		return api.Stat{}, err
	}
	return api.StatFromInfo(fi), nil
}
