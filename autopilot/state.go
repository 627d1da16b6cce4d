// Package autopilot implements the lag-driven scaling control plane: a
// recovery-window manager tracking engine rebalances, and a state machine
// that elastically adds or removes processing workers within configured
// bounds.
package autopilot

// State is the autopilot's lifecycle state. The transition table below is
// the single source of truth: an in-flight mutating operation is encoded
// as the Boosting/Decreasing states rather than a separate flag.
type State int

const (
	// StandBy means the worker count sits at the configured baseline and
	// lag is under control.
	StandBy State = iota
	// Boosting means a worker addition is in flight.
	Boosting
	// Boosted means the worker count sits above the baseline.
	Boosted
	// Decreasing means a worker removal is in flight.
	Decreasing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StandBy:
		return "stand_by"
	case Boosting:
		return "boosting"
	case Boosted:
		return "boosted"
	case Decreasing:
		return "decreasing"
	default:
		return "unknown"
	}
}

// StateNames lists every state string, for one-hot metrics.
var StateNames = []string{
	StandBy.String(),
	Boosting.String(),
	Boosted.String(),
	Decreasing.String(),
}

// transitions is the allowed-transition table. A machine under sustained
// lag keeps boosting until it hits the worker limit, so Boosted reaches
// Boosting.
var transitions = map[State][]State{
	StandBy:    {Boosting, Decreasing, StandBy},
	Boosting:   {Boosted},
	Boosted:    {Boosting, Decreasing, StandBy, Boosted},
	Decreasing: {StandBy, Boosted, Decreasing},
}

// CanTransition reports whether s → to is in the transition table.
func (s State) CanTransition(to State) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CanTransitionAny reports whether any of the targets is reachable from s.
func (s State) CanTransitionAny(targets ...State) bool {
	for _, to := range targets {
		if s.CanTransition(to) {
			return true
		}
	}
	return false
}
