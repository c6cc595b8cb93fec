package main

// mode is the dashboard's data source: live against the facade, or a local
// simulation.
type mode int

const (
	modeLive mode = iota
	modeSimulated
)

func (m mode) String() string {
	if m == modeSimulated {
		return "simulation"
	}
	return "live"
}

// nextMode applies the one-way fallback rule: any facade failure in live
// mode switches to simulation for the remainder of the session. There is no
// automatic recovery back to live; that takes an explicit restart.
func nextMode(m mode, fetchErr error) mode {
	if m == modeSimulated {
		return modeSimulated
	}
	if fetchErr != nil {
		return modeSimulated
	}
	return modeLive
}
