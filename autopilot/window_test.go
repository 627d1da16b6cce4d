package autopilot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/health"
	"github.com/c360/streampilot/testutil"
)

func TestWindowClosedWhileSteady(t *testing.T) {
	eng := testutil.NewFakeEngine()
	w := NewWindowManager(time.Minute, nil, nil)
	w.Attach(eng)

	assert.False(t, w.IsOpen())
}

func TestWindowOpensOnRebalance(t *testing.T) {
	eng := testutil.NewFakeEngine()
	w := NewWindowManager(time.Minute, nil, nil)
	w.Attach(eng)

	eng.SetState(engine.StateRebalancing)
	assert.True(t, w.IsOpen())
}

func TestWindowGraceAfterSettling(t *testing.T) {
	eng := testutil.NewFakeEngine()
	w := NewWindowManager(30*time.Millisecond, nil, nil)
	w.Attach(eng)

	eng.SetState(engine.StateRebalancing)
	require.True(t, w.IsOpen())

	eng.SetState(engine.StateRunning)
	// Still open inside the grace interval.
	assert.True(t, w.IsOpen())

	assert.Eventually(t, func() bool { return !w.IsOpen() },
		500*time.Millisecond, 5*time.Millisecond)
}

func TestWindowOpenAtAttachWhenNotSteady(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.SetState(engine.StateRebalancing)

	w := NewWindowManager(time.Minute, nil, nil)
	w.Attach(eng)

	assert.True(t, w.IsOpen())
}

func TestWindowErrorStatesStayOpen(t *testing.T) {
	eng := testutil.NewFakeEngine()
	w := NewWindowManager(10*time.Millisecond, nil, nil)
	w.Attach(eng)

	eng.SetState(engine.StateError)
	time.Sleep(30 * time.Millisecond)
	// No grace countdown runs while the engine is unsteady.
	assert.True(t, w.IsOpen())
}

func TestWindowFeedsHealthMonitor(t *testing.T) {
	eng := testutil.NewFakeEngine()
	monitor := health.NewMonitor()
	w := NewWindowManager(time.Minute, monitor, nil)
	w.Attach(eng)

	eng.SetState(engine.StateRebalancing)
	status, ok := monitor.Get("engine")
	require.True(t, ok)
	assert.True(t, status.IsDegraded())

	eng.SetState(engine.StateRunning)
	status, _ = monitor.Get("engine")
	assert.True(t, status.IsHealthy())

	eng.SetState(engine.StateError)
	status, _ = monitor.Get("engine")
	assert.Equal(t, health.StatusUnhealthy, status.Status)
}
