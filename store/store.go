// Package store implements the federated read path over the application's
// partitioned key/value state stores: the remote store contract, its NATS
// request/reply stub, the local store adapter, the responder answering for
// this instance, and the host manager that routes and caches stubs.
package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/natsclient"
)

// Type tags the shape of a state store. The set is closed.
type Type int

const (
	// KeyValue is a plain key/value store.
	KeyValue Type = iota
	// TimestampedKeyValue is a key/value store whose values carry a
	// record timestamp.
	TimestampedKeyValue
)

// String returns the string representation of the store type.
func (t Type) String() string {
	switch t {
	case KeyValue:
		return "key-value"
	case TimestampedKeyValue:
		return "timestamped-key-value"
	default:
		return "unknown"
	}
}

// RemoteStore is the single query capability behind which a store's dual
// identity (local handle or remote stub) hides. A stub must be configured
// and initialized before its first query and shut down exactly once by the
// host manager's cleanup.
type RemoteStore interface {
	// Reference is the stable identifier of this store representation,
	// globally unique across an application.
	Reference() string

	// IsCompatible reports whether this store can answer queries for the
	// requested store type.
	IsCompatible(t Type) bool

	// Stub produces a client bound to host. Idempotency per host within
	// one process is the host manager cache's job, not the factory's.
	Stub(host engine.HostInfo) RemoteStore

	// FindByKey resolves the value for a serialized key in a named store.
	// found=false means the owning host confirmed absence.
	FindByKey(ctx context.Context, key []byte, storeName string) (value []byte, found bool, err error)

	// Configure applies channel options. Must be called before Initialize.
	Configure(opts ...natsclient.Option)

	// Initialize establishes the transport. A stub that has not been
	// initialized must not be queried.
	Initialize() error

	// Shutdown releases the transport.
	Shutdown() error
}

// querySubjectPrefix roots every per-host query subject.
const querySubjectPrefix = "streampilot.query"

// subjectFor derives the request/reply subject owned by one instance.
// Host names are folded into a single subject token.
func subjectFor(host engine.HostInfo) string {
	h := strings.NewReplacer(".", "_", ":", "_", "*", "_", ">", "_", " ", "_").Replace(host.Host)
	return querySubjectPrefix + "." + h + "." + strconv.Itoa(host.Port)
}
