package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/metric"
)

// ThreadInfo maps worker name to its per-partition lag.
type ThreadInfo map[string]map[engine.TopicPartition]int64

// Result is the settled outcome of an asynchronous worker add/remove.
type Result struct {
	ThreadName string
	Err        error
}

// Autopilot coordinates elastic worker scaling: a scheduled decision loop
// driven by consumer lag, plus manual add/remove operations, all funneled
// through one transition table and one fair write lock.
//
// The lock guards decisions and state writes but is never held across the
// engine's blocking add/remove primitive: the primitive runs on its own
// goroutine and the completion settles state afterwards.
type Autopilot struct {
	eng       engine.Engine
	cfg       config.AutopilotConfig
	exclusion *regexp.Regexp
	metrics   *metric.AutopilotMetrics
	logger    *slog.Logger

	// desiredThreadCount is immutable post-construction: the baseline the
	// user configured.
	desiredThreadCount int
	genericTimeout     time.Duration

	lock  *timedLock
	state atomic.Int32 // mutations only while holding lock
	// targetThreadCount stays within
	// [desiredThreadCount, desiredThreadCount+ThreadLimit].
	targetThreadCount atomic.Int64

	infoMu     sync.Mutex
	threadInfo ThreadInfo

	windowMu      sync.Mutex
	windowManager *WindowManager

	schedMu   sync.Mutex
	schedStop context.CancelFunc
}

// New constructs a non-automated autopilot. Call Automate to install the
// scheduled decision loop.
func New(
	eng engine.Engine,
	cfg config.AutopilotConfig,
	props config.Properties,
	metrics *metric.AutopilotMetrics,
	logger *slog.Logger,
) (*Autopilot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pattern := cfg.ExclusionPattern
	if pattern == "" {
		pattern = config.DefaultExclusionPattern
	}
	exclusion, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Autopilot", "New", "compile exclusion pattern")
	}

	desired := props.Int(config.NumStreamThreads, config.DefaultNumStreamThreads)

	a := &Autopilot{
		eng:                eng,
		cfg:                cfg,
		exclusion:          exclusion,
		metrics:            metrics,
		logger:             logger,
		desiredThreadCount: desired,
		genericTimeout:     props.GenericTimeout(),
		lock:               newTimedLock(),
		threadInfo:         make(ThreadInfo),
	}
	a.state.Store(int32(StandBy))
	a.targetThreadCount.Store(int64(desired))
	return a, nil
}

// State returns the current autopilot state.
func (a *Autopilot) State() State {
	return State(a.state.Load())
}

// TargetThreadCount returns the most recently computed optimal count.
func (a *Autopilot) TargetThreadCount() int {
	return int(a.targetThreadCount.Load())
}

// DesiredThreadCount returns the configured worker baseline.
func (a *Autopilot) DesiredThreadCount() int {
	return a.desiredThreadCount
}

// setState assigns the state. Callers hold the write lock, except the
// async completions, whose rollback/settle writes are serialized by the
// in-flight states themselves: no other mutator passes the transition
// gate while Boosting or Decreasing.
func (a *Autopilot) setState(s State) {
	a.state.Store(int32(s))
	a.metrics.SetState(s.String(), StateNames)
}

// Run performs one scheduled evaluation. All failures are logged as a
// no-op and the next tick re-evaluates.
func (a *Autopilot) Run() {
	a.logger.Info("Autopilot gathering lag info from all workers",
		"lag_threshold", a.cfg.LagThreshold)

	if !a.lock.Acquire(a.genericTimeout) {
		a.logger.Error("Autopilot [NOOP]. Could not get lock, is someone else holding it?")
		return
	}

	oldState := a.State()
	completion, err := a.doRun()
	a.lock.Release()

	if err != nil {
		a.logger.Error("Autopilot [NOOP]. Something went wrong.", "error", err)
		return
	}

	if completion != nil {
		// Await the in-flight primitive outside the lock; its result only
		// matters for logging, the completion itself settles state.
		select {
		case result := <-completion:
			if result.Err != nil {
				a.logger.Error("Autopilot [NOOP]. Scaling action failed.", "error", result.Err)
				return
			}
		case <-time.After(a.genericTimeout):
			a.logger.Error("Autopilot [NOOP]. Scaling action timed out.")
			return
		}
	}

	a.logger.Info("Autopilot transitioned",
		"from", oldState.String(), "to", a.State().String())
}

// doRun is the decision body. Caller holds the write lock.
func (a *Autopilot) doRun() (<-chan Result, error) {
	threads := a.collectThreadInfo()
	if len(threads) == 0 {
		return nil, nil
	}

	state := a.State()
	if !state.CanTransitionAny(Boosting, Decreasing, StandBy) {
		a.logger.Info("Autopilot [NOOP]. Nothing to be done.", "state", state.String())
		return nil, nil
	}

	a.windowMu.Lock()
	wm := a.windowManager
	a.windowMu.Unlock()
	if wm == nil {
		return nil, errors.ErrNoWindowManager
	}
	if wm.IsOpen() {
		a.logger.Info("Autopilot [NOOP]. Recovery window is open.")
		return nil, nil
	}

	next := a.decideNextState()
	if a.metrics != nil {
		a.metrics.Decisions.WithLabelValues(next.String()).Inc()
	}

	switch next {
	case StandBy, Boosted:
		a.setState(next)
		return nil, nil
	case Boosting:
		a.logger.Info("Autopilot is boosting the worker count")
		return a.doAdd(), nil
	case Decreasing:
		a.logger.Info("Autopilot is decreasing the worker count")
		return a.doRemove(), nil
	default:
		return nil, fmt.Errorf("unexpected decision %v", next)
	}
}

// decideNextState computes the next state from the collected lag.
// Callers hold the write lock, except the remove completion, which calls
// it after the lock has been released.
func (a *Autopilot) decideNextState() State {
	a.infoMu.Lock()
	threadCount := len(a.threadInfo)
	var accumulatedLag int64
	for _, partitionLag := range a.threadInfo {
		for _, lag := range partitionLag {
			accumulatedLag += lag
		}
	}
	a.infoMu.Unlock()

	if threadCount == 0 {
		return a.State()
	}

	average := accumulatedLag / int64(threadCount)
	a.logger.Info("Autopilot found average partition-lag", "average", average)

	if a.metrics != nil {
		a.metrics.ThreadCount.Set(float64(threadCount))
		a.metrics.AccumulatedLag.Set(float64(accumulatedLag))
	}

	// The ceiling is desired+limit; reaching it saturates the autopilot.
	upperLimit := a.desiredThreadCount + a.cfg.ThreadLimit
	if threadCount == upperLimit {
		a.logger.Warn("Autopilot [NOOP]. Worker count has reached its limit.",
			"count", threadCount, "limit", upperLimit)
		return Boosted
	}

	target := a.desiredThreadCount
	for ; target < upperLimit; target++ {
		if accumulatedLag/int64(target) <= a.cfg.LagThreshold {
			break
		}
	}
	a.targetThreadCount.Store(int64(target))
	if a.metrics != nil {
		a.metrics.TargetThreadCount.Set(float64(target))
	}

	a.logger.Info("Autopilot found optimal worker target",
		"target", target, "current", threadCount)

	switch {
	case target > threadCount:
		return Boosting
	case target < threadCount:
		return Decreasing
	case target == a.desiredThreadCount:
		return StandBy
	default:
		return Boosted
	}
}

// AddStreamThread manually adds one worker. The transition table gates
// first, then the write lock with the caller's timeout.
func (a *Autopilot) AddStreamThread(timeout time.Duration) (<-chan Result, error) {
	if state := a.State(); !state.CanTransition(Boosting) {
		return nil, fmt.Errorf("%w: cannot manually transition from [%s] to [%s]",
			errors.ErrInvalidTransition, state, Boosting)
	}

	if !a.lock.Acquire(timeout) {
		return nil, errors.ErrLockUnavailable
	}
	defer a.lock.Release()

	return a.doAdd(), nil
}

// RemoveStreamThread manually removes one worker.
func (a *Autopilot) RemoveStreamThread(timeout time.Duration) (<-chan Result, error) {
	if state := a.State(); !state.CanTransition(Decreasing) {
		return nil, fmt.Errorf("%w: cannot manually transition from [%s] to [%s]",
			errors.ErrInvalidTransition, state, Decreasing)
	}

	if !a.lock.Acquire(timeout) {
		return nil, errors.ErrLockUnavailable
	}
	defer a.lock.Release()

	return a.doRemove(), nil
}

// doAdd dispatches the engine's add primitive asynchronously. Caller
// holds the write lock; the completion settles state without it.
func (a *Autopilot) doAdd() <-chan Result {
	previous := a.State()
	a.setState(Boosting)

	completion := make(chan Result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.genericTimeout)
		defer cancel()

		threadName, err := a.eng.AddThread(ctx)
		a.collectThreadInfo()

		if err != nil {
			a.logger.Error("Autopilot couldn't add a new worker", "error", err)
			// Roll the in-flight marker back so the machine is not stuck;
			// the worker count did not change.
			a.setState(previous)
			completion <- Result{Err: err}
			return
		}

		a.logger.Info("Worker successfully added by autopilot", "thread", threadName)
		a.setState(Boosted)
		completion <- Result{ThreadName: threadName}
	}()
	return completion
}

// doRemove dispatches the engine's remove primitive asynchronously.
func (a *Autopilot) doRemove() <-chan Result {
	previous := a.State()
	a.setState(Decreasing)

	completion := make(chan Result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.genericTimeout)
		defer cancel()

		threadName, err := a.eng.RemoveThread(ctx)
		a.collectThreadInfo()

		if err != nil {
			a.logger.Error("Autopilot couldn't remove any worker", "error", err)
			a.setState(previous)
			completion <- Result{Err: err}
			return
		}

		a.logger.Info("Worker successfully removed by autopilot", "thread", threadName)
		// Removal may or may not land back at the baseline; recompute.
		a.setState(a.decideNextState())
		completion <- Result{ThreadName: threadName}
	}()
	return completion
}

// ThreadInfo returns a snapshot of the most recently collected lag.
func (a *Autopilot) ThreadInfo() ThreadInfo {
	a.infoMu.Lock()
	defer a.infoMu.Unlock()

	snapshot := make(ThreadInfo, len(a.threadInfo))
	for name, partitionLag := range a.threadInfo {
		lag := make(map[engine.TopicPartition]int64, len(partitionLag))
		for tp, l := range partitionLag {
			lag[tp] = l
		}
		snapshot[name] = lag
	}
	return snapshot
}

// collectThreadInfo refreshes the lag map from the engine: the union of
// each worker's active and standby tasks, excluded topics and unknown
// offsets skipped, workers no longer reported pruned.
func (a *Autopilot) collectThreadInfo() ThreadInfo {
	threads := make(ThreadInfo)
	for _, tm := range a.eng.LocalThreads() {
		partitionLag := make(map[engine.TopicPartition]int64)

		tasks := make([]engine.TaskMetadata, 0, len(tm.ActiveTasks)+len(tm.StandbyTasks))
		tasks = append(tasks, tm.ActiveTasks...)
		tasks = append(tasks, tm.StandbyTasks...)

		for _, task := range tasks {
			for tp, endOffset := range task.EndOffsets {
				if a.exclusion.MatchString(tp.Topic) {
					continue
				}
				committedOffset, ok := task.CommittedOffsets[tp]
				if !ok || endOffset <= 0 || committedOffset <= 0 {
					// Missing, zero and undefined (-1) offsets carry no signal.
					continue
				}
				lag := endOffset - committedOffset
				if lag < 0 {
					lag = 0
				}
				partitionLag[tp] = lag
			}
		}
		threads[tm.Name] = partitionLag
	}

	a.infoMu.Lock()
	for name := range a.threadInfo {
		if _, still := threads[name]; !still {
			delete(a.threadInfo, name)
		}
	}
	for name, partitionLag := range threads {
		a.threadInfo[name] = partitionLag
	}
	empty := len(a.threadInfo) == 0
	a.infoMu.Unlock()

	if empty {
		a.logger.Warn("Autopilot [NOOP]. Could not gather lag info. No active or standby tasks.")
	}
	return threads
}

// Automate installs the scheduled decision loop: one evaluation after the
// configured initial delay, then one every between-runs period, all on a
// single goroutine.
func (a *Autopilot) Automate(windowManager *WindowManager) error {
	if windowManager == nil {
		return errors.ErrNoWindowManager
	}

	a.windowMu.Lock()
	a.windowManager = windowManager
	a.windowMu.Unlock()

	a.schedMu.Lock()
	defer a.schedMu.Unlock()
	if a.schedStop != nil {
		return errors.ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.schedStop = cancel

	go func() {
		timer := time.NewTimer(a.cfg.InitialDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		a.Run()

		ticker := time.NewTicker(a.cfg.BetweenRuns)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Run()
			case <-ctx.Done():
				return
			}
		}
	}()

	a.logger.Info("Autopilot scheduled",
		"initial_delay", a.cfg.InitialDelay.String(),
		"between_runs", a.cfg.BetweenRuns.String())
	return nil
}

// Shutdown stops the scheduled loop immediately. Best-effort: an
// in-flight evaluation is not drained.
func (a *Autopilot) Shutdown() {
	a.schedMu.Lock()
	defer a.schedMu.Unlock()

	if a.schedStop != nil {
		a.schedStop()
		a.schedStop = nil
	}
}
