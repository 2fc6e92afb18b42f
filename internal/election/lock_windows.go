//go:build windows

package election

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/it-atelier-gn/single-instance/internal/identity"
)

type platformLock struct {
	handle windows.Handle
}

// The mutex lives in the session local namespace, matching the per user
// scope of the identity.
func tryAcquire(_ string, id identity.Identity) (*Lock, error) {
	name := `Local\` + id.Key()
	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: mutex name: %w", ErrUnavailable, err)
	}

	// CreateMutex returns a valid handle together with ERROR_ALREADY_EXISTS
	// when another process created the object first.
	h, err := windows.CreateMutex(nil, true, name16)
	if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		return nil, fmt.Errorf("%w: create mutex %s: %w", ErrUnavailable, name, err)
	}
	if h == 0 {
		return nil, fmt.Errorf("%w: create mutex %s: invalid handle", ErrUnavailable, name)
	}

	return &Lock{
		name:         name,
		owned:        err == nil,
		platformLock: platformLock{handle: h},
	}, nil
}

func (l *Lock) release() {
	if l.handle == 0 {
		return
	}
	if l.owned {
		// Fails when called from another OS thread; closing the last handle
		// destroys the object either way.
		_ = windows.ReleaseMutex(l.handle)
	}
	_ = windows.CloseHandle(l.handle)
	l.handle = 0
}
