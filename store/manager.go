package store

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/natsclient"
)

// Manager resolves (store, key) pairs to owning hosts and materializes
// the store representation for a host: the local adapter when the host is
// this instance, a cached remote stub otherwise.
//
// Stub creation is single-flight per process: the cache holds at most one
// active stub per host, and an observer who sees a stub in the cache sees
// a fully initialized one.
type Manager struct {
	eng         engine.Engine
	local       *LocalKeyValueStore // nil when this instance has no self endpoint
	supported   []RemoteStore
	configurers []natsclient.Option
	logger      *slog.Logger

	mu    sync.Mutex
	stubs map[engine.HostInfo]RemoteStore
}

// NewManager creates a host manager. local may be nil (this instance then
// answers no local queries and routes everything remotely); supported
// lists the remote store prototypes in resolution order; configurers are
// applied to every stub before initialization.
func NewManager(
	eng engine.Engine,
	local *LocalKeyValueStore,
	supported []RemoteStore,
	configurers []natsclient.Option,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		eng:         eng,
		local:       local,
		supported:   supported,
		configurers: configurers,
		logger:      logger,
		stubs:       make(map[engine.HostInfo]RemoteStore),
	}
}

// FindHost resolves the owning host for a serialized key in a named
// store. When partition metadata is not yet available and at least one
// instance is known, the lowest (host, port) instance is the fallback so
// every resolver in the cluster picks the same bootstrap host.
func (m *Manager) FindHost(key []byte, storeName string) (engine.HostInfo, bool) {
	metadata, available := m.eng.QueryMetadataForKey(storeName, key)
	if available {
		return metadata.ActiveHost, true
	}

	clients := m.eng.MetadataForAllClients()
	if len(clients) == 0 {
		return engine.HostInfo{}, false
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Less(clients[j]) })
	return clients[0], true
}

// FindStoreByReference locates a configured store representation by its
// stable reference. Used by out-of-band administrative paths.
func (m *Manager) FindStoreByReference(ref string) (RemoteStore, bool) {
	if m.local != nil && m.local.Reference() == ref {
		return m.local, true
	}
	for _, s := range m.supported {
		if s.Reference() == ref {
			return s, true
		}
	}
	m.logger.Debug("No store for reference", "ref", ref)
	return nil, false
}

// FindStore resolves the store representation for a host: the local
// adapter when host is this instance, otherwise a cached or freshly
// initialized remote stub of the first compatible prototype.
func (m *Manager) FindStore(host engine.HostInfo, t Type) (RemoteStore, bool) {
	if m.local != nil && host == m.local.Self() && m.local.IsCompatible(t) {
		return m.local, true
	}

	for _, prototype := range m.supported {
		if !prototype.IsCompatible(t) {
			continue
		}

		m.mu.Lock()
		if stub, exists := m.stubs[host]; exists {
			m.mu.Unlock()
			return stub, true
		}

		stub := prototype.Stub(host)
		stub.Configure(m.configurers...)
		m.logger.Info("Initializing stub for host", "host", host.String(), "ref", stub.Reference())
		if err := stub.Initialize(); err != nil {
			m.mu.Unlock()
			m.logger.Error("Stub initialization failed", "host", host.String(), "error", err)
			return nil, false
		}
		m.stubs[host] = stub
		m.mu.Unlock()
		return stub, true
	}

	m.logger.Debug("No compatible store for host", "host", host.String(), "type", t.String())
	return nil, false
}

// CleanUp shuts down every cached stub exactly once and clears the cache.
func (m *Manager) CleanUp() {
	m.mu.Lock()
	stubs := m.stubs
	m.stubs = make(map[engine.HostInfo]RemoteStore)
	m.mu.Unlock()

	m.logger.Info("Host manager clean-up, remote queries may be temporarily unavailable")
	for host, stub := range stubs {
		if err := stub.Shutdown(); err != nil && !errors.IsTransient(err) {
			m.logger.Warn("Stub shutdown failed", "host", host.String(), "error", err)
		}
		m.logger.Debug("Removed host from known hosts", "host", host.String())
	}
}

// CachedHosts lists the hosts with an active stub, for observability.
func (m *Manager) CachedHosts() []engine.HostInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	hosts := make([]engine.HostInfo, 0, len(m.stubs))
	for host := range m.stubs {
		hosts = append(hosts, host)
	}
	return hosts
}
