package user

import (
	"errors"
	"os"
	osuser "os/user"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

var ErrUnknownUser = errors.New("cannot determine current user name")

// CurrentName returns the login name of the user running this process.
// Domain prefixes ("DOMAIN\user") are stripped so the result matches the
// plain login name on every platform.
func CurrentName() (string, error) {
	if u, err := osuser.Current(); err == nil {
		if name := stripDomain(u.Username); name != "" {
			return name, nil
		}
	}

	// os/user can fail without cgo on some systems; ask the process table
	// for the owner of this process instead.
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if owner, err := p.Username(); err == nil {
			if name := stripDomain(owner); name != "" {
				return name, nil
			}
		}
	}

	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if name := stripDomain(os.Getenv(key)); name != "" {
			return name, nil
		}
	}
	return "", ErrUnknownUser
}

func stripDomain(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
