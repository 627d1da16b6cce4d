package autopilot

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/health"
)

// WindowManager tracks engine state changes and exposes the recovery
// window predicate: the window is open while the engine is in a
// non-steady state, and stays open for a grace interval after the engine
// re-enters running. Scaling decisions are suppressed while it is open so
// they never compound with an in-flight partition reassignment.
type WindowManager struct {
	grace   time.Duration
	logger  *slog.Logger
	monitor *health.Monitor

	mu       sync.Mutex
	open     bool
	closesAt time.Time
}

// NewWindowManager creates a window manager. grace is used as given (the
// runner passes the autopilot's between-runs period); monitor may be nil.
func NewWindowManager(grace time.Duration, monitor *health.Monitor, logger *slog.Logger) *WindowManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WindowManager{
		grace:   grace,
		logger:  logger,
		monitor: monitor,
	}
}

// Attach registers the manager on the engine's state-change notifications
// and seeds the window from the current state.
func (w *WindowManager) Attach(eng engine.Engine) {
	w.mu.Lock()
	w.open = !eng.State().IsSteady()
	w.mu.Unlock()

	eng.OnStateChange(w.observe)
}

// IsOpen reports whether the recovery window is currently open.
func (w *WindowManager) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return false
	}
	if !w.closesAt.IsZero() && time.Now().After(w.closesAt) {
		w.open = false
		w.closesAt = time.Time{}
		return false
	}
	return true
}

// observe consumes one engine state transition. Must not block: the
// engine invokes it synchronously from its state-change path.
func (w *WindowManager) observe(oldState, newState engine.State) {
	w.mu.Lock()
	switch {
	case newState.IsSteady():
		// Re-entering steady state arms the grace interval; the window
		// closes only after it elapses.
		w.closesAt = time.Now().Add(w.grace)
		w.logger.Info("Engine settled, recovery window closing",
			"from", oldState.String(), "grace", w.grace.String())
	default:
		w.open = true
		w.closesAt = time.Time{}
		w.logger.Info("Recovery window open",
			"from", oldState.String(), "to", newState.String())
	}
	w.mu.Unlock()

	w.updateHealth(newState)
}

func (w *WindowManager) updateHealth(state engine.State) {
	if w.monitor == nil {
		return
	}
	switch state {
	case engine.StateRunning:
		w.monitor.UpdateHealthy("engine", "running")
	case engine.StateRebalancing:
		w.monitor.UpdateDegraded("engine", "rebalancing")
	default:
		w.monitor.UpdateUnhealthy("engine", state.String())
	}
}
