package engine

import (
	"fmt"

	"github.com/c360/streampilot/config"
)

// HostInfo identifies one application instance by its advertised endpoint.
// Equality is structural; HostInfo is the routing token and the key of the
// host manager's stub cache.
type HostInfo struct {
	Host string
	Port int
}

// ParseHostInfo builds a HostInfo from a host:port endpoint string.
func ParseHostInfo(endpoint string) (HostInfo, error) {
	host, port, err := config.SplitEndpoint(endpoint)
	if err != nil {
		return HostInfo{}, err
	}
	return HostInfo{Host: host, Port: port}, nil
}

// String returns the host:port form.
func (h HostInfo) String() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Less orders hosts lexicographically by (host, port). Used as the
// deterministic tie-break when partition metadata is not yet available.
func (h HostInfo) Less(other HostInfo) bool {
	if h.Host != other.Host {
		return h.Host < other.Host
	}
	return h.Port < other.Port
}

// IsZero reports whether the host carries no endpoint.
func (h HostInfo) IsZero() bool {
	return h.Host == "" && h.Port == 0
}

// TopicPartition identifies one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int
}

// String returns the topic-partition form.
func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// KeyQueryMetadata is the routing answer for a (store, key) pair.
type KeyQueryMetadata struct {
	// ActiveHost is the instance currently assigned the partition that
	// owns the key's state.
	ActiveHost HostInfo
	// StandbyHosts hold replicated copies. Present for completeness; the
	// query path only routes to the active host.
	StandbyHosts []HostInfo
	// Partition is the owning partition number.
	Partition int
}

// TaskMetadata describes one task assigned to a worker: the partitions it
// reads and their offset positions.
type TaskMetadata struct {
	ID               string
	EndOffsets       map[TopicPartition]int64
	CommittedOffsets map[TopicPartition]int64
}

// ThreadMetadata describes one local processing worker and its tasks.
type ThreadMetadata struct {
	Name         string
	ActiveTasks  []TaskMetadata
	StandbyTasks []TaskMetadata
}
