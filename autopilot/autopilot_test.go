package autopilot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/testutil"
)

func autopilotConfig(threshold int64, limit int) config.AutopilotConfig {
	return config.AutopilotConfig{
		Enabled:      true,
		LagThreshold: threshold,
		ThreadLimit:  limit,
		InitialDelay: time.Hour, // schedules never fire inside a test
		BetweenRuns:  time.Hour,
	}
}

func newAutopilot(t *testing.T, eng engine.Engine, threshold int64, limit, desired int) *Autopilot {
	t.Helper()

	props := config.Properties{
		config.NumStreamThreads: fmt.Sprintf("%d", desired),
		config.MaxPollInterval:  "2000",
		config.SessionTimeout:   "1000",
	}
	a, err := New(eng, autopilotConfig(threshold, limit), props, nil, nil)
	require.NoError(t, err)
	return a
}

// automated wires a closed recovery window so scheduled runs can act.
func automated(t *testing.T, a *Autopilot, eng *testutil.FakeEngine) *WindowManager {
	t.Helper()
	w := NewWindowManager(time.Hour, nil, nil)
	w.Attach(eng)
	require.NoError(t, a.Automate(w))
	t.Cleanup(a.Shutdown)
	return w
}

func threadWithLag(name, topic string, lag int64) engine.ThreadMetadata {
	tp := engine.TopicPartition{Topic: topic, Partition: 0}
	return engine.ThreadMetadata{
		Name: name,
		ActiveTasks: []engine.TaskMetadata{{
			ID:               name + "-task",
			EndOffsets:       map[engine.TopicPartition]int64{tp: 100 + lag},
			CommittedOffsets: map[engine.TopicPartition]int64{tp: 100},
		}},
	}
}

func TestNewRejectsBadExclusionPattern(t *testing.T) {
	cfg := autopilotConfig(10, 1)
	cfg.ExclusionPattern = "["
	_, err := New(testutil.NewFakeEngine(), cfg, config.Properties{}, nil, nil)
	assert.Error(t, err)
}

func TestInitialState(t *testing.T) {
	eng := testutil.NewFakeEngine()
	a := newAutopilot(t, eng, 10, 2, 1)

	assert.Equal(t, StandBy, a.State())
	assert.Equal(t, 1, a.DesiredThreadCount())
	assert.Equal(t, 1, a.TargetThreadCount())
}

func TestCollectThreadInfo(t *testing.T) {
	eng := testutil.NewFakeEngine()
	tp := engine.TopicPartition{Topic: "orders", Partition: 1}
	excluded := engine.TopicPartition{Topic: "orders-repartition", Partition: 0}
	unknown := engine.TopicPartition{Topic: "orders", Partition: 2}

	eng.Threads = []engine.ThreadMetadata{{
		Name: "worker-1",
		ActiveTasks: []engine.TaskMetadata{{
			ID: "0_1",
			EndOffsets: map[engine.TopicPartition]int64{
				tp:       500,
				excluded: 900,
				unknown:  -1,
			},
			CommittedOffsets: map[engine.TopicPartition]int64{
				tp:       120,
				excluded: 100,
				unknown:  -1,
			},
		}},
		StandbyTasks: []engine.TaskMetadata{{
			ID:               "0_2",
			EndOffsets:       map[engine.TopicPartition]int64{{Topic: "orders", Partition: 3}: 50},
			CommittedOffsets: map[engine.TopicPartition]int64{{Topic: "orders", Partition: 3}: 10},
		}},
	}}

	a := newAutopilot(t, eng, 10, 2, 1)
	info := a.collectThreadInfo()

	require.Contains(t, info, "worker-1")
	lag := info["worker-1"]
	assert.Equal(t, int64(380), lag[tp])
	assert.Equal(t, int64(40), lag[engine.TopicPartition{Topic: "orders", Partition: 3}])
	// Excluded topics and unknown offsets never contribute.
	assert.NotContains(t, lag, excluded)
	assert.NotContains(t, lag, unknown)
}

func TestCollectThreadInfoPrunesVanishedWorkers(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{
		threadWithLag("worker-1", "orders", 100),
		threadWithLag("worker-2", "orders", 100),
	}

	a := newAutopilot(t, eng, 10, 2, 1)
	a.collectThreadInfo()
	assert.Len(t, a.ThreadInfo(), 2)

	eng.Threads = eng.Threads[:1]
	a.collectThreadInfo()

	info := a.ThreadInfo()
	assert.Len(t, info, 1)
	assert.Contains(t, info, "worker-1")
}

func TestRunNoopWithoutThreads(t *testing.T) {
	eng := testutil.NewFakeEngine()
	a := newAutopilot(t, eng, 10, 2, 1)
	automated(t, a, eng)

	a.Run()
	assert.Equal(t, StandBy, a.State())
	assert.Equal(t, 0, eng.Adds())
}

func TestRunRequiresWindowManager(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 1000)}

	a := newAutopilot(t, eng, 10, 2, 1)

	// Scheduled mode without a window manager refuses to act.
	a.Run()
	assert.Equal(t, StandBy, a.State())
	assert.Equal(t, 0, eng.Adds())
}

func TestRunSuppressedWhileWindowOpen(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 1000)}

	a := newAutopilot(t, eng, 10, 2, 1)
	automated(t, a, eng)

	eng.SetState(engine.StateRebalancing)
	a.Run()

	assert.Equal(t, StandBy, a.State())
	assert.Equal(t, 0, eng.Adds())
}

func TestRunStandByWhenLagUnderThreshold(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 5)}

	a := newAutopilot(t, eng, 10, 2, 1)
	automated(t, a, eng)

	a.Run()
	assert.Equal(t, StandBy, a.State())
	assert.Equal(t, 1, a.TargetThreadCount())
	assert.Equal(t, 0, eng.Adds())
}

func TestSaturationLadder(t *testing.T) {
	// desired=1, limit=2, heavy lag on every tick: the machine climbs
	// StandBy -> Boosting -> Boosted -> Boosting -> Boosted, then stays
	// Boosted with no further adds once saturated.
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 100_000)}

	a := newAutopilot(t, eng, 10, 2, 1)
	automated(t, a, eng)

	a.Run()
	assert.Equal(t, Boosted, a.State())
	assert.Equal(t, 1, eng.Adds())

	a.Run()
	assert.Equal(t, Boosted, a.State())
	assert.Equal(t, 2, eng.Adds())

	// Saturated: count == desired + limit.
	a.Run()
	assert.Equal(t, Boosted, a.State())
	assert.Equal(t, 2, eng.Adds())

	a.Run()
	assert.Equal(t, Boosted, a.State())
	assert.Equal(t, 2, eng.Adds())
}

func TestRunDecreasesWhenOverProvisioned(t *testing.T) {
	eng := testutil.NewFakeEngine()
	// Two workers, no measurable lag: one over the baseline.
	eng.Threads = []engine.ThreadMetadata{
		threadWithLag("worker-1", "orders", 0),
		{Name: "worker-2"},
	}

	a := newAutopilot(t, eng, 10, 2, 1)
	a.state.Store(int32(Boosted))
	automated(t, a, eng)

	a.Run()
	assert.Equal(t, 1, eng.Removes())
	// Back at the baseline the machine settles to StandBy.
	assert.Equal(t, StandBy, a.State())
}

func TestManualAdd(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 5)}

	a := newAutopilot(t, eng, 10, 2, 1)

	completion, err := a.AddStreamThread(time.Second)
	require.NoError(t, err)

	result := <-completion
	require.NoError(t, result.Err)
	assert.NotEmpty(t, result.ThreadName)
	assert.Equal(t, Boosted, a.State())
	assert.Equal(t, 1, eng.Adds())
}

func TestManualAddRejectedWhileInFlight(t *testing.T) {
	eng := testutil.NewFakeEngine()
	a := newAutopilot(t, eng, 10, 2, 1)
	a.state.Store(int32(Boosting))

	_, err := a.AddStreamThread(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
}

func TestManualRemoveRecomputesState(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{
		threadWithLag("worker-1", "orders", 0),
		{Name: "worker-2"},
	}

	a := newAutopilot(t, eng, 10, 2, 1)
	a.state.Store(int32(Boosted))

	completion, err := a.RemoveStreamThread(time.Second)
	require.NoError(t, err)

	result := <-completion
	require.NoError(t, result.Err)
	assert.Equal(t, 1, eng.Removes())
	assert.Equal(t, StandBy, a.State())
}

func TestManualOpsRespectLockTimeout(t *testing.T) {
	eng := testutil.NewFakeEngine()
	a := newAutopilot(t, eng, 10, 2, 1)

	require.True(t, a.lock.TryAcquire())
	defer a.lock.Release()

	_, err := a.AddStreamThread(20 * time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrLockUnavailable)

	_, err = a.RemoveStreamThread(20 * time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrLockUnavailable)
}

func TestAddFailureRollsStateBack(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.AddThreadErr = fmt.Errorf("runtime rejected the add")
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 5)}

	a := newAutopilot(t, eng, 10, 2, 1)

	completion, err := a.AddStreamThread(time.Second)
	require.NoError(t, err)

	result := <-completion
	require.Error(t, result.Err)
	// The worker count did not change and neither did the state.
	assert.Equal(t, StandBy, a.State())
}

func TestRemoveFailureRollsStateBack(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.RemoveThreadErr = fmt.Errorf("runtime rejected the remove")
	eng.Threads = []engine.ThreadMetadata{
		threadWithLag("worker-1", "orders", 5),
		{Name: "worker-2"},
	}

	a := newAutopilot(t, eng, 10, 2, 1)
	a.state.Store(int32(Boosted))

	completion, err := a.RemoveStreamThread(time.Second)
	require.NoError(t, err)

	result := <-completion
	require.Error(t, result.Err)
	assert.Equal(t, Boosted, a.State())
}

func TestAutomateTwiceFails(t *testing.T) {
	eng := testutil.NewFakeEngine()
	a := newAutopilot(t, eng, 10, 2, 1)
	w := automated(t, a, eng)

	err := a.Automate(w)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestAutomateNilWindowManager(t *testing.T) {
	eng := testutil.NewFakeEngine()
	a := newAutopilot(t, eng, 10, 2, 1)

	err := a.Automate(nil)
	assert.ErrorIs(t, err, errors.ErrNoWindowManager)
}

func TestScheduledLoopFires(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 100_000)}

	cfg := autopilotConfig(10, 2)
	cfg.InitialDelay = 10 * time.Millisecond
	cfg.BetweenRuns = 10 * time.Millisecond

	props := config.Properties{
		config.NumStreamThreads: "1",
		config.MaxPollInterval:  "2000",
		config.SessionTimeout:   "1000",
	}
	a, err := New(eng, cfg, props, nil, nil)
	require.NoError(t, err)

	w := NewWindowManager(time.Hour, nil, nil)
	w.Attach(eng)
	require.NoError(t, a.Automate(w))
	defer a.Shutdown()

	assert.Eventually(t, func() bool { return eng.Adds() >= 1 },
		2*time.Second, 10*time.Millisecond)

	a.Shutdown()
	// Let any evaluation already past the ticker drain before comparing.
	time.Sleep(100 * time.Millisecond)
	adds := eng.Adds()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, adds, eng.Adds(), "no runs after shutdown")
}

func TestThreadInfoSnapshotIsACopy(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Threads = []engine.ThreadMetadata{threadWithLag("worker-1", "orders", 50)}

	a := newAutopilot(t, eng, 10, 2, 1)
	a.collectThreadInfo()

	snapshot := a.ThreadInfo()
	for name := range snapshot {
		delete(snapshot, name)
	}
	assert.Len(t, a.ThreadInfo(), 1)
}
