package shm

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/it-atelier-gn/single-instance/internal/identity"
)

// Presence describes the running primary instance of an identity.
type Presence struct {
	PID        int       `json:"pid" yaml:"pid"`
	Executable string    `json:"executable" yaml:"executable"`
	RelayDir   string    `json:"relay_dir" yaml:"relay_dir"`
	Identity   string    `json:"identity" yaml:"identity"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
}

// RegionName is the shared-memory name used for id.
func RegionName(id identity.Identity) string {
	return "singleinstance-" + id.Key()
}

// PublishPresence advertises p for id until the returned region is closed.
func PublishPresence(id identity.Identity, p Presence) (*Region, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return Publish(RegionName(id), b)
}

// ReadPresence returns the record published for id.
func ReadPresence(id identity.Identity) (*Presence, error) {
	b, err := Read(RegionName(id))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("no presence published")
	}
	var p Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	if p.PID <= 0 {
		return nil, fmt.Errorf("invalid presence pid %d", p.PID)
	}
	return &p, nil
}
