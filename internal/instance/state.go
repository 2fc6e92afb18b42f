package instance

import "fmt"

type State int

const (
	Unstarted State = iota
	Electing
	PrimaryActive
	SecondaryDone
	CleanedUp
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Electing:
		return "electing"
	case PrimaryActive:
		return "primary"
	case SecondaryDone:
		return "secondary"
	case CleanedUp:
		return "cleaned-up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
