// SPDX-License-Identifier: MIT

package session

import (
	"encoding/json"
	"testing"
)

func TestPhaseValidity(t *testing.T) {
	for _, p := range []Phase{PhaseIdle, PhaseAuthenticating, PhaseAuthenticated, PhaseFailed} {
		if !p.IsValid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Phase("bogus").IsValid() {
		t.Error("bogus phase should be invalid")
	}
}

func TestPhaseAllowsSubmit(t *testing.T) {
	cases := map[Phase]bool{
		PhaseIdle:           true,
		PhaseFailed:         true,
		PhaseAuthenticating: false,
		PhaseAuthenticated:  false,
	}
	for p, want := range cases {
		if got := p.AllowsSubmit(); got != want {
			t.Errorf("%s.AllowsSubmit() = %v, want %v", p, got, want)
		}
	}
}

func TestPhaseJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(PhaseAuthenticated)
	if err != nil {
		t.Fatal(err)
	}
	var p Phase
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatal(err)
	}
	if p != PhaseAuthenticated {
		t.Fatalf("round trip changed value: %s", p)
	}
	if err := json.Unmarshal([]byte(`"bogus"`), &p); err == nil {
		t.Fatal("expected error for invalid phase")
	}
}

func TestParsePhase(t *testing.T) {
	if _, err := ParsePhase("idle"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParsePhase("nope"); err == nil {
		t.Fatal("expected parse error")
	}
}
