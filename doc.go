// Package streampilot augments a partitioned, stateful NATS JetStream
// consumer application with two cooperating control planes.
//
// # Interactive Query plane
//
// Every instance of the application holds a slice of the partitioned state.
// The IQ plane lets any instance answer a point query for any key: the key
// is serialized with the store's key serde, routed to the owning host via
// the engine's partition metadata, and dispatched either to the local store
// adapter or to a remote store stub speaking NATS request/reply.
//
// # Autopilot plane
//
// A single-goroutine control loop observes per-worker consumer lag and
// elastically adds or removes processing workers within configured bounds.
// Scaling is suppressed while the engine rebalances, and for a grace window
// after it settles, so decisions never compound with in-flight partition
// reassignment.
//
// # Packages
//
//   - config: YAML config plus typed runtime property access
//   - engine: the stream-processing runtime abstraction and JetStream binding
//   - serde: key codec registry and string-to-key conversion
//   - store: remote store contract, NATS stub, local adapter, host manager
//   - query: the interactive query executor
//   - autopilot: recovery-window manager and scaling state machine
//   - endpoint: the management HTTP surface
//   - metric, health, errors, natsclient, pkg/retry: shared infrastructure
package streampilot
