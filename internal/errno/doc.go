// File: internal/errno/doc.go
// Package errno
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Translation of native error representations (errno values, io/fs
// sentinels) into the canonical api taxonomy. Leaves call Wrap at their
// boundary; nothing native is returned past it.

package errno
