//go:build !windows

package cmdline

import "os"

// unix exposes no raw command line, only argv.
func current() string {
	return Compose(os.Args)
}
