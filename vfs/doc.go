// File: vfs/doc.go
// Package vfs
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// VFS dispatch core. One path and handle surface over any number of
// simultaneously mounted storage backends. Paths take the form
// /<device>/<inner path>; "/" itself is served by the root backend, a live
// listing of the Device Registry.
//
// Every handle carries the backend Kind that produced it. Dispatching a
// directory entry through a directory of another kind, or using a nil
// handle, is a contract violation and panics with *api.ContractError. I/O
// failures come back as *api.Error values.
//
// The dispatcher holds no locks. Handles belong to a single caller and
// registry mutation must be serialized by the host.
package vfs
