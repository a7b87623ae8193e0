//go:build linux

package input

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel each worker walks its range forward,
// so readahead can run ahead of every cursor.
func adviseSequential(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
