package relay

import (
	"os"
)

// Send writes message as the whole content of the mailbox in dir.
//
// The payload is written to a temporary file in dir and renamed over the
// mailbox, so the listener only ever sees complete messages and two racing
// senders replace each other whole. The temporary name never matches
// MailboxName.
func Send(dir, message string) error {
	target := MailboxPath(dir)

	tmp, err := os.CreateTemp(dir, "."+MailboxName+"-*")
	if err != nil {
		return &DropError{Op: "create", Path: target, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(message); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &DropError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &DropError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &DropError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return &DropError{Op: "rename", Path: target, Err: err}
	}
	return nil
}
