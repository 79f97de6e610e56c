// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable byte buffers for the transport leaves. Buffers are fixed-size so
// a segment can be recycled without tracking its original allocation.
package pool
