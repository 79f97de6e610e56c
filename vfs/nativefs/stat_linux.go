//go:build linux
// +build linux

// File: vfs/nativefs/stat_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package nativefs

import (
	"io/fs"
	"time"

	"github.com/momentics/hioload-ftp/api"
	"golang.org/x/sys/unix"
)

// hostStat reads the full stat record, including link count and owner.
func hostStat(full string, follow bool) (api.Stat, error) {
	var st unix.Stat_t
	var err error
	if follow {
		err = unix.Stat(full, &st)
	} else {
		err = unix.Lstat(full, &st)
	}
	if err != nil {
		return api.Stat{}, err
	}
	out := api.Stat{
		Type:     typeOf(st.Mode),
		Size:     st.Size,
		Nlink:    uint64(st.Nlink),
		ModTime:  time.Unix(st.Mtim.Unix()),
		Perm:     fs.FileMode(st.Mode & 0o777),
		HasPerm:  true,
		UID:      st.Uid,
		GID:      st.Gid,
		HasOwner: true,
	}
	return out, nil
}

func typeOf(mode uint32) api.EntryType {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return api.TypeRegular
	case unix.S_IFDIR:
		return api.TypeDir
	case unix.S_IFLNK:
		return api.TypeSymlink
	}
	return api.TypeOther
}
