//go:build !windows

package election

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/it-atelier-gn/single-instance/internal/identity"
)

type platformLock struct {
	fl *flock.Flock
}

func tryAcquire(dir string, id identity.Identity) (*Lock, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create lock dir: %w", ErrUnavailable, err)
	}

	path := filepath.Join(dir, id.Key()+".lock")
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		_ = fl.Close()
		return nil, fmt.Errorf("%w: lock %s: %w", ErrUnavailable, path, err)
	}

	return &Lock{
		name:         path,
		owned:        locked,
		platformLock: platformLock{fl: fl},
	}, nil
}

// The lock file itself stays on disk: unlinking it would let a concurrent
// launch lock an orphaned inode while a third one creates a fresh file.
func (l *Lock) release() {
	if l.fl != nil {
		_ = l.fl.Close()
	}
}
