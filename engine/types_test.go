package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostInfo(t *testing.T) {
	host, err := ParseHostInfo("10.1.2.3:19099")
	require.NoError(t, err)
	assert.Equal(t, HostInfo{Host: "10.1.2.3", Port: 19099}, host)
	assert.Equal(t, "10.1.2.3:19099", host.String())

	_, err = ParseHostInfo("no-port")
	assert.Error(t, err)

	_, err = ParseHostInfo("host:zero")
	assert.Error(t, err)
}

func TestHostInfoLess(t *testing.T) {
	a := HostInfo{Host: "a", Port: 9}
	b := HostInfo{Host: "b", Port: 1}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	// Same host orders by port.
	a2 := HostInfo{Host: "a", Port: 10}
	assert.True(t, a.Less(a2))
	assert.False(t, a.Less(a))
}

func TestHostInfoIsZero(t *testing.T) {
	assert.True(t, HostInfo{}.IsZero())
	assert.False(t, HostInfo{Host: "h", Port: 1}.IsZero())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "rebalancing", StateRebalancing.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestStateIsSteady(t *testing.T) {
	assert.True(t, StateRunning.IsSteady())
	assert.False(t, StateRebalancing.IsSteady())
	assert.False(t, StateError.IsSteady())
	assert.False(t, StatePendingShutdown.IsSteady())
}

func TestTopicPartitionString(t *testing.T) {
	tp := TopicPartition{Topic: "orders", Partition: 3}
	assert.Equal(t, "orders-3", tp.String())
}
