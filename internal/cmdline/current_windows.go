//go:build windows

package cmdline

import (
	"os"

	"golang.org/x/sys/windows"
)

func current() string {
	if p := windows.GetCommandLine(); p != nil {
		if s := windows.UTF16PtrToString(p); s != "" {
			return s
		}
	}
	return Compose(os.Args)
}
