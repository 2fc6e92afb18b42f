//go:build !windows

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Region is a published shared-memory region kept mapped until Close.
type Region struct {
	mu   sync.Mutex
	path string
	f    *os.File
	data []byte
}

func regionPath(name string) string {
	// Prefer /dev/shm (Linux); fallback to TMPDIR (macOS).
	if st, err := os.Stat("/dev/shm"); err == nil && st.IsDir() {
		return filepath.Join("/dev/shm", name)
	}
	return filepath.Join(os.TempDir(), name)
}

// Publish creates (or reuses) the RAM-backed file for name, maps it RW and
// writes b followed by zeros.
func Publish(name string, b []byte) (*Region, error) {
	if len(b) > Size {
		return nil, fmt.Errorf("state too large (%d > %d)", len(b), Size)
	}
	path := regionPath(name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	// Fixed size so every mapping has a consistent length.
	if err := f.Truncate(Size); err != nil {
		_ = f.Close()
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	copy(data, b)
	clear(data[len(b):])

	return &Region{path: path, f: f, data: data}, nil
}

// Close unmaps the region and removes it so readers stop seeing the state.
// Safe to call more than once.
func (r *Region) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return
	}
	_ = unix.Munmap(r.data)
	_ = r.f.Close()
	_ = os.Remove(r.path)
	r.data = nil
	r.f = nil
}

// Read maps the region for name read-only and returns the non-zero prefix.
func Read(name string) ([]byte, error) {
	f, err := os.OpenFile(regionPath(name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// A region still being created is shorter than Size; mapping past EOF
	// would fault on access.
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() < Size {
		return nil, fmt.Errorf("region %s not initialized", name)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, Size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	defer unix.Munmap(data)

	return trimZeros(data), nil
}
