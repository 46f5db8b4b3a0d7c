// SPDX-License-Identifier: MIT

// Package session tracks the authentication lifecycle of the demo flow and
// decides when playback may start.
package session

import (
	"encoding/json"
	"fmt"
)

// Phase represents the current state of the authentication session.
type Phase string

const (
	// PhaseIdle indicates no authentication attempt has been made.
	PhaseIdle Phase = "idle"

	// PhaseAuthenticating indicates a credential request is in flight.
	PhaseAuthenticating Phase = "authenticating"

	// PhaseAuthenticated indicates a credential was acquired and playback may start.
	PhaseAuthenticated Phase = "authenticated"

	// PhaseFailed indicates the last attempt failed; a new submit is allowed.
	PhaseFailed Phase = "failed"
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	return string(p)
}

// IsValid checks whether the phase is valid.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIdle, PhaseAuthenticating, PhaseAuthenticated, PhaseFailed:
		return true
	default:
		return false
	}
}

// AllowsSubmit reports whether a new authentication attempt may start from
// this phase. Once authenticated, re-submission stays disabled.
func (p Phase) AllowsSubmit() bool {
	return p == PhaseIdle || p == PhaseFailed
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	phase := Phase(s)
	if !phase.IsValid() {
		return fmt.Errorf("invalid session phase: %q", s)
	}
	*p = phase
	return nil
}

// ParsePhase parses a string into a Phase.
func ParsePhase(s string) (Phase, error) {
	phase := Phase(s)
	if !phase.IsValid() {
		return "", fmt.Errorf("invalid session phase: %q", s)
	}
	return phase, nil
}
