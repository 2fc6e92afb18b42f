// Package identity builds the key two launches of an application compare to
// decide whether they must be coordinated with each other.
//
// An Identity is the caller supplied unique name concatenated with the login
// name of the current user, so coordination never crosses user boundaries.
// Callers choose a unique name that cannot collide with unrelated
// applications; no escaping is applied to the raw identity.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/it-atelier-gn/single-instance/internal/user"
)

// ErrEmptyName is returned when no unique application name is given.
var ErrEmptyName = errors.New("unique application name is empty")

// maxKeyText bounds the readable part of Key so derived file and kernel
// object names stay well below platform limits.
const maxKeyText = 64

type Identity struct {
	UniqueName string
	UserName   string
}

// New returns the identity for uniqueName and the user running this process.
func New(uniqueName string) (Identity, error) {
	userName, err := user.CurrentName()
	if err != nil {
		return Identity{}, err
	}
	return For(uniqueName, userName)
}

// For returns the identity for uniqueName and an explicit user name.
func For(uniqueName, userName string) (Identity, error) {
	if uniqueName == "" {
		return Identity{}, ErrEmptyName
	}
	return Identity{UniqueName: uniqueName, UserName: userName}, nil
}

// String is the raw election key: unique name followed by user name.
func (id Identity) String() string {
	return id.UniqueName + id.UserName
}

// Key derives a token that is safe as a file name and as a kernel object
// name. Distinct identities always produce distinct keys because the hash of
// the raw identity is appended to the sanitized text.
func (id Identity) Key() string {
	raw := id.String()
	sum := sha256.Sum256([]byte(raw))

	var b strings.Builder
	for _, r := range raw {
		if b.Len() >= maxKeyText {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString(sum[:4]))
	return b.String()
}
