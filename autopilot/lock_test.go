package autopilot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimedLockTryAcquire(t *testing.T) {
	l := newTimedLock()

	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
	l.Release()
}

func TestTimedLockAcquireTimesOut(t *testing.T) {
	l := newTimedLock()
	l.TryAcquire()

	start := time.Now()
	assert.False(t, l.Acquire(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	l.Release()
}

func TestTimedLockHandoff(t *testing.T) {
	l := newTimedLock()
	l.TryAcquire()

	acquired := make(chan bool)
	go func() {
		acquired <- l.Acquire(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	l.Release()

	assert.True(t, <-acquired)
	l.Release()
}

func TestTimedLockReleaseUnheldPanics(t *testing.T) {
	l := newTimedLock()
	assert.Panics(t, func() { l.Release() })
}
