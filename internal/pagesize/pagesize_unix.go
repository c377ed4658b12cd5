//go:build unix

// Package pagesize queries the OS page size, used as the floor for the
// suballocator's minimum buddy block size (spec.md §4.2.4; SPEC_FULL §B
// wires golang.org/x/sys here, matching the teacher's use of x/sys for
// low-level OS primitives in hal/dx12).
package pagesize

import "golang.org/x/sys/unix"

// Get returns the OS page size in bytes.
func Get() uint64 {
	return uint64(unix.Getpagesize())
}
