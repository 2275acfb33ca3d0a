//go:build unix

package main

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// mapRegion maps an anonymous, private read-write region of size bytes. Mappings are page
// aligned, which satisfies the heap's alignment requirement.
func mapRegion(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, cerrors.Wrapf(err, "failed to map %d bytes", size)
	}

	return data, func() error { return unix.Munmap(data) }, nil
}
