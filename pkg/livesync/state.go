// Package livesync keeps a local, filtered view of a remote collection in
// sync with its source.
package livesync

import (
	"fmt"

	"github.com/grovetools/causes/errors"
)

// Phase is the lifecycle position of a Controller.
type Phase int

const (
	// PhaseIdle: no subscription and no data.
	PhaseIdle Phase = iota
	// PhaseLoading: subscribed, waiting for the first snapshot.
	PhaseLoading
	// PhaseReady: at least one snapshot applied on the current subscription.
	PhaseReady
	// PhaseError: the source reported a failure. Previously synced data is
	// kept.
	PhaseError
)

var phaseNames = [...]string{"idle", "loading", "ready", "error"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase name in JSON output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the phase plus, in PhaseError, the failure that caused it.
type State struct {
	Phase Phase
	Err   error
}

// Reason returns a presentation string for the failure, or "" outside
// PhaseError.
func (s State) Reason() string {
	if s.Err == nil {
		return ""
	}
	return errors.Message(s.Err)
}

func (s State) String() string {
	if s.Phase == PhaseError && s.Err != nil {
		return fmt.Sprintf("error(%s)", s.Reason())
	}
	return s.Phase.String()
}
