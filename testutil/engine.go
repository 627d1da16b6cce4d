// Package testutil provides scripted fakes for the engine contract so the
// routing, query, and autopilot packages can be tested without a running
// stream processor.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/streampilot/engine"
)

// FakeStore is an in-memory ReadOnlyStore.
type FakeStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	// GetErr, when set, fails every Get.
	GetErr error
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{entries: make(map[string][]byte)}
}

// Put stores a value under a serialized key.
func (s *FakeStore) Put(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[string(key)] = value
}

// Get implements engine.ReadOnlyStore.
func (s *FakeStore) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.GetErr != nil {
		return nil, false, s.GetErr
	}
	value, found := s.entries[string(key)]
	return value, found, nil
}

// Ensure the fakes satisfy the contracts they stand in for.
var (
	_ engine.ReadOnlyStore = (*FakeStore)(nil)
	_ engine.Engine        = (*FakeEngine)(nil)
)

// FakeEngine is a scripted engine.Engine.
type FakeEngine struct {
	mu sync.Mutex

	// Metadata maps storeName -> serialized key -> routing answer.
	Metadata map[string]map[string]engine.KeyQueryMetadata
	// Clients is what MetadataForAllClients returns.
	Clients []engine.HostInfo
	// Stores maps storeName -> local store handle.
	Stores map[string]*FakeStore
	// Threads is what LocalThreads returns.
	Threads []engine.ThreadMetadata

	// AddThreadErr / RemoveThreadErr fail the respective primitive.
	AddThreadErr    error
	RemoveThreadErr error

	state     engine.State
	listeners []engine.StateListener
	nextID    int
	adds      int
	removes   int
}

// NewFakeEngine creates a fake engine in the running state.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Metadata: make(map[string]map[string]engine.KeyQueryMetadata),
		Stores:   make(map[string]*FakeStore),
		state:    engine.StateRunning,
	}
}

// Route scripts the routing answer for one (store, key) pair.
func (e *FakeEngine) Route(storeName string, key []byte, host engine.HostInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Metadata[storeName] == nil {
		e.Metadata[storeName] = make(map[string]engine.KeyQueryMetadata)
	}
	e.Metadata[storeName][string(key)] = engine.KeyQueryMetadata{ActiveHost: host}
}

// QueryMetadataForKey implements engine.Engine.
func (e *FakeEngine) QueryMetadataForKey(storeName string, key []byte) (engine.KeyQueryMetadata, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	byKey, ok := e.Metadata[storeName]
	if !ok {
		return engine.KeyQueryMetadata{}, false
	}
	md, ok := byKey[string(key)]
	return md, ok
}

// MetadataForAllClients implements engine.Engine.
func (e *FakeEngine) MetadataForAllClients() []engine.HostInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := make([]engine.HostInfo, len(e.Clients))
	copy(clients, e.Clients)
	return clients
}

// Store implements engine.Engine.
func (e *FakeEngine) Store(name string) (engine.ReadOnlyStore, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	store, ok := e.Stores[name]
	if !ok {
		return nil, fmt.Errorf("store %q not found", name)
	}
	return store, nil
}

// LocalThreads implements engine.Engine.
func (e *FakeEngine) LocalThreads() []engine.ThreadMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()

	threads := make([]engine.ThreadMetadata, len(e.Threads))
	copy(threads, e.Threads)
	return threads
}

// AddThread implements engine.Engine. It appends a scripted worker whose
// name is not already taken by a worker in Threads.
func (e *FakeEngine) AddThread(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.AddThreadErr != nil {
		return "", e.AddThreadErr
	}
	e.adds++
	var name string
	for taken := true; taken; {
		e.nextID++
		name = fmt.Sprintf("worker-%d", e.nextID)
		taken = false
		for _, t := range e.Threads {
			if t.Name == name {
				taken = true
				break
			}
		}
	}
	e.Threads = append(e.Threads, engine.ThreadMetadata{Name: name})
	return name, nil
}

// RemoveThread implements engine.Engine. It removes the last worker.
func (e *FakeEngine) RemoveThread(_ context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.RemoveThreadErr != nil {
		return "", e.RemoveThreadErr
	}
	if len(e.Threads) == 0 {
		return "", fmt.Errorf("no thread to remove")
	}
	e.removes++
	last := e.Threads[len(e.Threads)-1]
	e.Threads = e.Threads[:len(e.Threads)-1]
	return last.Name, nil
}

// Adds reports how many AddThread calls succeeded.
func (e *FakeEngine) Adds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adds
}

// Removes reports how many RemoveThread calls succeeded.
func (e *FakeEngine) Removes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removes
}

// State implements engine.Engine.
func (e *FakeEngine) State() engine.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetState transitions the fake engine and notifies listeners.
func (e *FakeEngine) SetState(newState engine.State) {
	e.mu.Lock()
	oldState := e.state
	e.state = newState
	listeners := make([]engine.StateListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		l(oldState, newState)
	}
}

// OnStateChange implements engine.Engine.
func (e *FakeEngine) OnStateChange(listener engine.StateListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}
