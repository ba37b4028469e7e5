//go:build unix

package vm

import "golang.org/x/sys/unix"

// allocBuffer maps an anonymous private region for the arena.
func allocBuffer(size int) ([]byte, func([]byte) error, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, err
	}
	return buf, unix.Munmap, nil
}
