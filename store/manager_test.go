package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/natsclient"
	"github.com/c360/streampilot/testutil"
)

// fakeRemoteStore is a RemoteStore prototype whose stubs record their
// lifecycle instead of opening channels.
type fakeRemoteStore struct {
	host engine.HostInfo

	mu         sync.Mutex
	initCalls  int
	downCalls  int
	initErr    error
	stubs      []*fakeRemoteStore
	valueByKey map[string][]byte
}

func newFakeRemoteStore() *fakeRemoteStore {
	return &fakeRemoteStore{valueByKey: make(map[string][]byte)}
}

func (f *fakeRemoteStore) Reference() string {
	if f.host.IsZero() {
		return "fake-remote"
	}
	return "fake-remote@" + f.host.String()
}

func (f *fakeRemoteStore) IsCompatible(t Type) bool { return t == KeyValue }

func (f *fakeRemoteStore) Stub(host engine.HostInfo) RemoteStore {
	stub := &fakeRemoteStore{host: host, initErr: f.initErr, valueByKey: f.valueByKey}
	f.mu.Lock()
	f.stubs = append(f.stubs, stub)
	f.mu.Unlock()
	return stub
}

func (f *fakeRemoteStore) Configure(...natsclient.Option) {}

func (f *fakeRemoteStore) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.initCalls++
	return nil
}

func (f *fakeRemoteStore) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downCalls++
	return nil
}

func (f *fakeRemoteStore) FindByKey(_ context.Context, key []byte, _ string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.valueByKey[string(key)]
	return v, ok, nil
}

func (f *fakeRemoteStore) shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downCalls
}

func localStore(t *testing.T, eng engine.Engine, endpoint string) *LocalKeyValueStore {
	t.Helper()
	local, err := NewLocalKeyValueStore(eng, config.Properties{config.ApplicationServer: endpoint}, nil)
	require.NoError(t, err)
	return local
}

func TestFindHostUsesActiveHost(t *testing.T) {
	eng := testutil.NewFakeEngine()
	owner := engine.HostInfo{Host: "10.0.0.2", Port: 19199}
	eng.Route("join-store", []byte("j-1"), owner)

	m := NewManager(eng, nil, nil, nil, nil)

	host, found := m.FindHost([]byte("j-1"), "join-store")
	require.True(t, found)
	assert.Equal(t, owner, host)
}

func TestFindHostFallbackIsDeterministic(t *testing.T) {
	eng := testutil.NewFakeEngine()
	eng.Clients = []engine.HostInfo{
		{Host: "b", Port: 1},
		{Host: "a", Port: 9},
		{Host: "a", Port: 2},
	}

	m := NewManager(eng, nil, nil, nil, nil)

	// Metadata unavailable: the lowest (host, port) instance wins so all
	// resolvers agree during a cold start.
	host, found := m.FindHost([]byte("k"), "join-store")
	require.True(t, found)
	assert.Equal(t, engine.HostInfo{Host: "a", Port: 2}, host)
}

func TestFindHostNoClients(t *testing.T) {
	m := NewManager(testutil.NewFakeEngine(), nil, nil, nil, nil)

	_, found := m.FindHost([]byte("k"), "join-store")
	assert.False(t, found)
}

func TestFindStorePrefersLocalForSelf(t *testing.T) {
	eng := testutil.NewFakeEngine()
	local := localStore(t, eng, "localhost:19099")
	prototype := newFakeRemoteStore()

	m := NewManager(eng, local, []RemoteStore{prototype}, nil, nil)

	resolved, found := m.FindStore(engine.HostInfo{Host: "localhost", Port: 19099}, KeyValue)
	require.True(t, found)
	assert.Same(t, local, resolved.(*LocalKeyValueStore))
	assert.Empty(t, m.CachedHosts())
}

func TestFindStoreCachesStubPerHost(t *testing.T) {
	eng := testutil.NewFakeEngine()
	prototype := newFakeRemoteStore()
	m := NewManager(eng, nil, []RemoteStore{prototype}, nil, nil)

	remote := engine.HostInfo{Host: "10.0.0.2", Port: 19199}
	first, found := m.FindStore(remote, KeyValue)
	require.True(t, found)

	second, found := m.FindStore(remote, KeyValue)
	require.True(t, found)
	assert.Same(t, first.(*fakeRemoteStore), second.(*fakeRemoteStore))

	stub := first.(*fakeRemoteStore)
	assert.Equal(t, 1, stub.initCalls)
	assert.Equal(t, []engine.HostInfo{remote}, m.CachedHosts())
}

func TestFindStoreConcurrentResolversShareOneStub(t *testing.T) {
	eng := testutil.NewFakeEngine()
	prototype := newFakeRemoteStore()
	m := NewManager(eng, nil, []RemoteStore{prototype}, nil, nil)

	remote := engine.HostInfo{Host: "10.0.0.2", Port: 19199}

	const resolvers = 16
	results := make([]RemoteStore, resolvers)
	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resolved, found := m.FindStore(remote, KeyValue)
			assert.True(t, found)
			results[i] = resolved
		}(i)
	}
	wg.Wait()

	for i := 1; i < resolvers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, results[0].(*fakeRemoteStore).initCalls)
}

func TestFindStoreNoCompatiblePrototype(t *testing.T) {
	eng := testutil.NewFakeEngine()
	prototype := newFakeRemoteStore() // only KeyValue-compatible
	m := NewManager(eng, nil, []RemoteStore{prototype}, nil, nil)

	_, found := m.FindStore(engine.HostInfo{Host: "x", Port: 1}, TimestampedKeyValue)
	assert.False(t, found)
}

func TestFindStoreInitializationFailure(t *testing.T) {
	eng := testutil.NewFakeEngine()
	prototype := newFakeRemoteStore()
	prototype.initErr = fmt.Errorf("dial failed")
	m := NewManager(eng, nil, []RemoteStore{prototype}, nil, nil)

	_, found := m.FindStore(engine.HostInfo{Host: "x", Port: 1}, KeyValue)
	assert.False(t, found)
	// Failed stubs never enter the cache.
	assert.Empty(t, m.CachedHosts())
}

func TestFindStoreByReference(t *testing.T) {
	eng := testutil.NewFakeEngine()
	local := localStore(t, eng, "localhost:19099")
	prototype := newFakeRemoteStore()
	m := NewManager(eng, local, []RemoteStore{prototype}, nil, nil)

	resolved, found := m.FindStoreByReference("local-key-value")
	require.True(t, found)
	assert.Same(t, local, resolved.(*LocalKeyValueStore))

	resolved, found = m.FindStoreByReference("fake-remote")
	require.True(t, found)
	assert.Same(t, prototype, resolved.(*fakeRemoteStore))

	_, found = m.FindStoreByReference("nope")
	assert.False(t, found)
}

func TestCleanUpShutsDownEveryStubOnce(t *testing.T) {
	eng := testutil.NewFakeEngine()
	prototype := newFakeRemoteStore()
	m := NewManager(eng, nil, []RemoteStore{prototype}, nil, nil)

	hosts := []engine.HostInfo{
		{Host: "a", Port: 1},
		{Host: "b", Port: 2},
		{Host: "c", Port: 3},
	}
	stubs := make([]*fakeRemoteStore, 0, len(hosts))
	for _, h := range hosts {
		resolved, found := m.FindStore(h, KeyValue)
		require.True(t, found)
		stubs = append(stubs, resolved.(*fakeRemoteStore))
	}

	m.CleanUp()
	m.CleanUp() // second pass must be a no-op

	assert.Empty(t, m.CachedHosts())
	for _, stub := range stubs {
		assert.Equal(t, 1, stub.shutdowns())
	}

	// The cache restarts cleanly after a cleanup.
	resolved, found := m.FindStore(hosts[0], KeyValue)
	require.True(t, found)
	assert.NotSame(t, stubs[0], resolved.(*fakeRemoteStore))
}
