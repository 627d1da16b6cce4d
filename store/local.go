package store

import (
	"context"
	"log/slog"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/natsclient"
)

// LocalKeyValueStore presents a runtime-owned local store under the same
// contract as a remote stub. FindByKey completes synchronously against the
// local handle; lifecycle calls are no-ops.
type LocalKeyValueStore struct {
	eng    engine.Engine
	self   engine.HostInfo
	logger *slog.Logger
}

// NewLocalKeyValueStore creates the local adapter. The self endpoint comes
// from application.server; without it this instance cannot participate in
// federated routing, so construction fails.
func NewLocalKeyValueStore(eng engine.Engine, props config.Properties, logger *slog.Logger) (*LocalKeyValueStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := props.String(config.ApplicationServer, "")
	if endpoint == "" {
		return nil, errors.ErrMissingSelfEndpoint
	}
	self, err := engine.ParseHostInfo(endpoint)
	if err != nil {
		return nil, errors.WrapFatal(err, "LocalKeyValueStore", "New", "parse application.server")
	}

	return &LocalKeyValueStore{
		eng:    eng,
		self:   self,
		logger: logger,
	}, nil
}

// Self returns the advertised endpoint of this instance.
func (s *LocalKeyValueStore) Self() engine.HostInfo {
	return s.self
}

// Reference returns the stable identifier of this store representation.
func (s *LocalKeyValueStore) Reference() string {
	return "local-key-value"
}

// IsCompatible reports whether this representation answers the requested
// store type.
func (s *LocalKeyValueStore) IsCompatible(t Type) bool {
	return t == KeyValue || t == TimestampedKeyValue
}

// Stub returns the adapter itself: local queries need no transport.
func (s *LocalKeyValueStore) Stub(engine.HostInfo) RemoteStore {
	return s
}

// Configure is a no-op; there is no channel to configure.
func (s *LocalKeyValueStore) Configure(...natsclient.Option) {}

// Initialize is a no-op.
func (s *LocalKeyValueStore) Initialize() error { return nil }

// Shutdown is a no-op.
func (s *LocalKeyValueStore) Shutdown() error { return nil }

// FindByKey resolves the key against the local store handle.
func (s *LocalKeyValueStore) FindByKey(_ context.Context, key []byte, storeName string) ([]byte, bool, error) {
	handle, err := s.eng.Store(storeName)
	if err != nil {
		return nil, false, errors.Wrap(err, "LocalKeyValueStore", "FindByKey", "resolve store "+storeName)
	}
	return handle.Get(key)
}
