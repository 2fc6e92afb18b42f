//go:build windows

package shm

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Region is a named page-file mapping kept open until Close, so the mapping
// exists for readers.
type Region struct {
	mu     sync.Mutex
	handle windows.Handle
	view   uintptr
}

func mappingName(name string) string {
	return `Local\` + name
}

// Publish creates (or opens) the named mapping and writes b followed by zeros.
func Publish(name string, b []byte) (*Region, error) {
	if len(b) > Size {
		return nil, fmt.Errorf("state too large (%d > %d)", len(b), Size)
	}
	name16, err := windows.UTF16PtrFromString(mappingName(name))
	if err != nil {
		return nil, err
	}

	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(Size), name16)
	if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		return nil, err
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(Size))
	if err != nil {
		_ = windows.CloseHandle(h)
		return nil, err
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), Size)
	copy(buf, b)
	clear(buf[len(b):])

	return &Region{handle: h, view: addr}, nil
}

// Close unmaps the view and closes the handle; the mapping disappears with
// the last handle. Safe to call more than once.
func (r *Region) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == 0 {
		return
	}
	_ = windows.UnmapViewOfFile(r.view)
	_ = windows.CloseHandle(r.handle)
	r.handle = 0
	r.view = 0
}

// Call OpenFileMappingW directly (not present in x/sys/windows).
var (
	modKernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procOpenFileMappingW = modKernel32.NewProc("OpenFileMappingW")
)

func openFileMapping(desiredAccess uint32, inherit bool, name *uint16) (windows.Handle, error) {
	inher := uintptr(0)
	if inherit {
		inher = 1
	}
	r0, _, e1 := procOpenFileMappingW.Call(uintptr(desiredAccess), inher, uintptr(unsafe.Pointer(name)))
	if r0 == 0 {
		if e1 != nil {
			return 0, e1
		}
		return 0, windows.ERROR_INVALID_HANDLE
	}
	return windows.Handle(r0), nil
}

// Read opens the mapping for name read-only and returns the non-zero prefix.
func Read(name string) ([]byte, error) {
	name16, err := windows.UTF16PtrFromString(mappingName(name))
	if err != nil {
		return nil, err
	}
	h, err := openFileMapping(windows.FILE_MAP_READ, false, name16)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(Size))
	if err != nil {
		return nil, err
	}
	defer windows.UnmapViewOfFile(addr)

	return trimZeros(unsafe.Slice((*byte)(unsafe.Pointer(addr)), Size)), nil
}
