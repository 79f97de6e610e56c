// File: vfs/identity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Best-effort owner and group display names for listings.

package vfs

import (
	"os/user"
	"strconv"
	"sync"

	"github.com/momentics/hioload-ftp/api"
)

type idCache struct {
	mu     sync.Mutex
	users  map[uint32]string
	groups map[uint32]string
}

var ids = idCache{users: map[uint32]string{}, groups: map[uint32]string{}}

// Owner returns the user and group names owning st. Either is empty when the
// backend reports no owner or the host cannot resolve the id. Lookups are
// cached for the life of the process, failures included.
func Owner(st api.Stat) (usr, group string) {
	if !st.HasOwner {
		return "", ""
	}
	ids.mu.Lock()
	defer ids.mu.Unlock()

	usr, ok := ids.users[st.UID]
	if !ok {
		if u, err := user.LookupId(strconv.FormatUint(uint64(st.UID), 10)); err == nil {
			usr = u.Username
		}
		ids.users[st.UID] = usr
	}
	group, ok = ids.groups[st.GID]
	if !ok {
		if g, err := user.LookupGroupId(strconv.FormatUint(uint64(st.GID), 10)); err == nil {
			group = g.Name
		}
		ids.groups[st.GID] = group
	}
	return usr, group
}
