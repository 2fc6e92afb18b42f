package procinfo

import (
	"path/filepath"

	ps "github.com/mitchellh/go-ps"
)

// Alive reports whether a process with pid currently exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := ps.FindProcess(pid)
	return err == nil && proc != nil
}

// ExecutableName returns the base executable name of pid, or "" when the
// process does not exist.
func ExecutableName(pid int) string {
	if pid <= 0 {
		return ""
	}
	proc, err := ps.FindProcess(pid)
	if err != nil || proc == nil {
		return ""
	}
	return filepath.Base(proc.Executable())
}
