//go:build !unix

package main

// mapRegion falls back to a Go-allocated region where anonymous mappings are unavailable
func mapRegion(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
