// Package relay carries a secondary instance's command line to the primary
// instance through a mailbox file.
//
// The primary watches a directory for a file named MailboxName; a secondary
// writes its command line there and moves on without waiting. The primary
// reads the file, hands the content to a callback and deletes it. Delivery is
// best effort: a message is delivered at most once, and may be lost when two
// secondaries write before the primary reads, or when no primary listens.
package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MailboxName is the fixed file name of the mailbox inside the relay dir.
const MailboxName = "cmd.args"

// DropError describes a relay message that was lost. Relay failures never
// reach the host application; callers only log or count them.
type DropError struct {
	Op   string
	Path string
	Err  error
}

func (e *DropError) Error() string {
	return fmt.Sprintf("relay %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DropError) Unwrap() error { return e.Err }

// IsDropped reports whether err is a discarded relay failure.
func IsDropped(err error) bool {
	var de *DropError
	return errors.As(err, &de)
}

// MailboxPath returns the mailbox file inside dir.
func MailboxPath(dir string) string {
	return filepath.Join(dir, MailboxName)
}

// DefaultDir returns the directory holding the running executable. Primary
// and secondaries meet there, which only works when both run from the same
// installation directory.
func DefaultDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
