package main

import (
	"errors"
	"testing"
)

func TestNextModeFallsBackOnError(t *testing.T) {
	if got := nextMode(modeLive, errors.New("connection refused")); got != modeSimulated {
		t.Errorf("live mode with error: got %v, want simulation", got)
	}
	if got := nextMode(modeLive, nil); got != modeLive {
		t.Errorf("live mode without error: got %v, want live", got)
	}
}

func TestNextModeIsOneWay(t *testing.T) {
	// Once simulated, the session never returns to live, errors or not.
	if got := nextMode(modeSimulated, nil); got != modeSimulated {
		t.Errorf("simulated without error: got %v, want simulation", got)
	}
	if got := nextMode(modeSimulated, errors.New("still down")); got != modeSimulated {
		t.Errorf("simulated with error: got %v, want simulation", got)
	}
}

func TestModeString(t *testing.T) {
	if modeLive.String() != "live" || modeSimulated.String() != "simulation" {
		t.Errorf("mode names: got %v / %v", modeLive, modeSimulated)
	}
}
