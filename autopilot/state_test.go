package autopilot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	allowed := map[State][]State{
		StandBy:    {Boosting, Decreasing, StandBy},
		Boosting:   {Boosted},
		Boosted:    {Boosting, Decreasing, StandBy, Boosted},
		Decreasing: {StandBy, Boosted, Decreasing},
	}
	all := []State{StandBy, Boosting, Boosted, Decreasing}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionAny(t *testing.T) {
	// The tick gate: only states with an actionable target pass.
	assert.True(t, StandBy.CanTransitionAny(Boosting, Decreasing, StandBy))
	assert.True(t, Boosted.CanTransitionAny(Boosting, Decreasing, StandBy))
	assert.True(t, Decreasing.CanTransitionAny(Boosting, Decreasing, StandBy))
	// Boosting can only settle to Boosted: an add is in flight.
	assert.False(t, Boosting.CanTransitionAny(Boosting, Decreasing, StandBy))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stand_by", StandBy.String())
	assert.Equal(t, "boosting", Boosting.String())
	assert.Equal(t, "boosted", Boosted.String())
	assert.Equal(t, "decreasing", Decreasing.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.Len(t, StateNames, 4)
}
