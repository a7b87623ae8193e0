//go:build !linux

package input

import "os"

func adviseSequential(_ *os.File) error {
	return nil
}
