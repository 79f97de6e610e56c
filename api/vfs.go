// File: api/vfs.go
// Author: momentics <momentics@gmail.com>
//
// Shared VFS value types: open modes, backend kinds and the minimal
// metadata record every backend can produce.

package api

import (
	"io/fs"
	"time"
)

// OpenMode selects how a file is opened.
type OpenMode int

const (
	OpenRead   OpenMode = iota
	OpenWrite           // create + truncate
	OpenAppend          // create, writes go to the end
)

func (m OpenMode) String() string {
	switch m {
	case OpenRead:
		return "read"
	case OpenWrite:
		return "write"
	case OpenAppend:
		return "append"
	}
	return "unknown"
}

// Writable reports whether handles opened with m accept writes.
func (m OpenMode) Writable() bool { return m == OpenWrite || m == OpenAppend }

// Kind tags every handle with the backend that created it.
type Kind int

const (
	KindNone Kind = iota
	KindRoot
	KindFS
	KindSave
	KindStorage
	KindGameContent
	KindStdio
	KindExternal
	KindUser
)

var kindNames = [...]string{
	KindNone:        "none",
	KindRoot:        "root",
	KindFS:          "fs",
	KindSave:        "save",
	KindStorage:     "storage",
	KindGameContent: "gc",
	KindStdio:       "stdio",
	KindExternal:    "external",
	KindUser:        "user",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a configuration name back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s && Kind(i) != KindNone {
			return Kind(i), true
		}
	}
	return KindNone, false
}

// EntryType is the coarse object type.
type EntryType int

const (
	TypeUnknown EntryType = iota
	TypeRegular
	TypeDir
	TypeSymlink
	TypeOther
)

func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	case TypeOther:
		return "other"
	}
	return "unknown"
}

// TypeOf classifies an fs.FileMode.
func TypeOf(m fs.FileMode) EntryType {
	switch {
	case m.IsRegular():
		return TypeRegular
	case m.IsDir():
		return TypeDir
	case m&fs.ModeSymlink != 0:
		return TypeSymlink
	}
	return TypeOther
}

// Stat is the universally available metadata record. Type, Size, Nlink and
// ModTime are always filled. Permission bits and owner ids are optional.
type Stat struct {
	Type    EntryType
	Size    int64
	Nlink   uint64
	ModTime time.Time

	Perm    fs.FileMode
	HasPerm bool

	UID, GID uint32
	HasOwner bool
}

// IsDir reports whether the record describes a directory.
func (s Stat) IsDir() bool { return s.Type == TypeDir }

// StatFromInfo builds a Stat from an fs.FileInfo with permission bits and a
// link count of one (two for directories).
func StatFromInfo(fi fs.FileInfo) Stat {
	st := Stat{
		Type:    TypeOf(fi.Mode()),
		Size:    fi.Size(),
		Nlink:   1,
		ModTime: fi.ModTime(),
		Perm:    fi.Mode().Perm(),
		HasPerm: true,
	}
	if st.Type == TypeDir {
		st.Nlink = 2
		st.Size = 0
	}
	return st
}
