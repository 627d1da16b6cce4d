package jetstream

import (
	"hash/fnv"
	"sync"

	"github.com/c360/streampilot/engine"
)

// AssignmentTable tracks which instance owns each partition of the
// application's partitioned state. The application feeds it from its
// partition-assignment callbacks; the runtime reads it to answer routing
// queries.
type AssignmentTable struct {
	mu         sync.RWMutex
	partitions int
	owners     map[int]engine.HostInfo
}

// NewAssignmentTable creates a table for a fixed partition count.
func NewAssignmentTable(partitions int) *AssignmentTable {
	return &AssignmentTable{
		partitions: partitions,
		owners:     make(map[int]engine.HostInfo),
	}
}

// Partitions returns the fixed partition count.
func (t *AssignmentTable) Partitions() int {
	return t.partitions
}

// Assign records host as the owner of partition.
func (t *AssignmentTable) Assign(partition int, host engine.HostInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owners[partition] = host
}

// Replace swaps the whole table in one step, as delivered by a rebalance.
func (t *AssignmentTable) Replace(owners map[int]engine.HostInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.owners = make(map[int]engine.HostInfo, len(owners))
	for p, h := range owners {
		t.owners[p] = h
	}
}

// Owner returns the instance assigned to partition, if any.
func (t *AssignmentTable) Owner(partition int) (engine.HostInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	host, ok := t.owners[partition]
	return host, ok
}

// Hosts lists the distinct instances present in the table.
func (t *AssignmentTable) Hosts() []engine.HostInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[engine.HostInfo]struct{})
	hosts := make([]engine.HostInfo, 0, len(t.owners))
	for _, h := range t.owners {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hosts = append(hosts, h)
	}
	return hosts
}

// PartitionFor computes the partition owning a serialized key. The hash
// must match the partitioner the application produces with; both sides
// of this deployment use FNV-1a.
func (t *AssignmentTable) PartitionFor(key []byte) int {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(t.partitions))
}
