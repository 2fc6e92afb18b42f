// Package election decides which process owns an application identity.
//
// TryAcquire creates or opens a system wide exclusive object keyed by the
// identity and reports whether the caller obtained it. It never waits: a
// held object means the caller is a secondary instance. On unix the object
// is an flock(2) lock file, on Windows a named kernel mutex; both vanish
// with the owning process, so a crashed primary never leaks the election.
package election

import (
	"errors"
	"sync"

	"github.com/it-atelier-gn/single-instance/internal/identity"
)

// ErrUnavailable marks failures to create the underlying primitive. Callers
// must not treat such a failure as winning the election.
var ErrUnavailable = errors.New("election primitive unavailable")

// Lock is the handle returned by TryAcquire. A secondary still receives a
// Lock and must release it, but does not own the identity.
type Lock struct {
	mu       sync.Mutex
	name     string
	owned    bool
	released bool

	platformLock
}

// TryAcquire attempts to become the primary instance for id. dir is where
// lock files live on unix (empty means os.TempDir()); it is ignored on
// Windows where kernel object names are used instead.
func TryAcquire(dir string, id identity.Identity) (*Lock, bool, error) {
	l, err := tryAcquire(dir, id)
	if err != nil {
		return nil, false, err
	}
	return l, l.owned, nil
}

// Name is the lock file path or kernel object name backing the lock.
func (l *Lock) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Owned reports whether the lock is held as primary and not yet released.
func (l *Lock) Owned() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owned && !l.released
}

// Release gives the primitive back. Calling it more than once, or on a nil
// Lock, does nothing.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.release()
}
