//go:build !unix

package pagesize

// Get returns a conservative default page size on platforms where
// querying the OS page size isn't wired (non-unix).
func Get() uint64 {
	return 4096
}
