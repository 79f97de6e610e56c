// File: socket/fdset.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import "math/bits"

// FDSet is a fixed-capacity descriptor bitmap, the portable counterpart of
// the native fd_set.
type FDSet struct {
	size int
	bits []uint64
}

// NewFDSet allocates a bitmap holding descriptors [0, size).
func NewFDSet(size int) *FDSet {
	return &FDSet{size: size, bits: make([]uint64, (size+63)/64)}
}

// Size returns the slot capacity.
func (s *FDSet) Size() int { return s.size }

// Set marks fd. Out-of-range values are ignored; callers check capacity.
func (s *FDSet) Set(fd int) {
	if fd >= 0 && fd < s.size {
		s.bits[fd/64] |= 1 << (uint(fd) % 64)
	}
}

// Clear unmarks fd.
func (s *FDSet) Clear(fd int) {
	if fd >= 0 && fd < s.size {
		s.bits[fd/64] &^= 1 << (uint(fd) % 64)
	}
}

// IsSet reports whether fd is marked.
func (s *FDSet) IsSet(fd int) bool {
	if fd < 0 || fd >= s.size {
		return false
	}
	return s.bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// Zero clears every slot.
func (s *FDSet) Zero() {
	for i := range s.bits {
		s.bits[i] = 0
	}
}

// Count returns the number of marked descriptors.
func (s *FDSet) Count() int {
	n := 0
	for _, w := range s.bits {
		n += bits.OnesCount64(w)
	}
	return n
}
