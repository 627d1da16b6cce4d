// Package engine defines the contract between StreamPilot and the
// stream-processing runtime it augments.
//
// StreamPilot never owns the processing topology. It consumes what the
// runtime already exposes: partition metadata for routing, read-only
// handles on local state stores, worker metadata with offset positions,
// and the worker add/remove primitives. Any runtime satisfying the Engine
// interface can sit underneath; the jetstream subpackage binds it to NATS
// JetStream consumers.
package engine

import "context"

// ReadOnlyStore is a point-read handle on one local, partitioned state
// store. Get returns the value bytes for a key, or found=false when the
// store holds no entry for it.
type ReadOnlyStore interface {
	Get(key []byte) (value []byte, found bool, err error)
}

// Engine is the runtime capability surface StreamPilot builds on.
type Engine interface {
	// QueryMetadataForKey resolves the owning host for a serialized key in
	// a named store. available=false means the partition is not yet
	// assigned anywhere (transient, typically during a cold start or a
	// rebalance).
	QueryMetadataForKey(storeName string, key []byte) (metadata KeyQueryMetadata, available bool)

	// MetadataForAllClients lists every instance currently known to the
	// runtime, this one included.
	MetadataForAllClients() []HostInfo

	// Store returns a read-only handle on a named local store.
	Store(name string) (ReadOnlyStore, error)

	// LocalThreads reports the local workers and their task metadata.
	LocalThreads() []ThreadMetadata

	// AddThread starts one additional processing worker and returns its
	// name. Blocking; honors ctx cancellation.
	AddThread(ctx context.Context) (string, error)

	// RemoveThread stops one processing worker and returns its name.
	// Blocking; honors ctx cancellation.
	RemoveThread(ctx context.Context) (string, error)

	// State returns the current engine state.
	State() State

	// OnStateChange registers a listener for state transitions.
	OnStateChange(listener StateListener)
}
