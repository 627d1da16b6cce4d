// Package jetstream binds the engine contract to NATS JetStream: workers
// are consume contexts on a partitioned stream, lag comes from consumer
// info, and routing metadata comes from the application's partition
// assignment table.
package jetstream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/natsclient"
)

// Config describes the stream this runtime consumes.
type Config struct {
	// Stream is the JetStream stream backing the application's input.
	Stream string
	// DurablePrefix names the per-partition durable consumers:
	// <prefix>-<partition>.
	DurablePrefix string
	// Partitions is the fixed partition count of the stream's subject
	// space.
	Partitions int
	// MaxWorkers caps AddThread. Zero means the partition count.
	MaxWorkers int
}

// Runtime implements engine.Engine over NATS JetStream.
type Runtime struct {
	client  *natsclient.Client
	cfg     Config
	self    engine.HostInfo
	handler jetstream.MessageHandler
	table   *AssignmentTable
	logger  *slog.Logger

	mu        sync.Mutex
	state     engine.State
	listeners []engine.StateListener
	workers   []*worker
	stores    map[string]engine.ReadOnlyStore
	nextID    int
}

// NewRuntime creates a runtime. handler processes every delivered
// message; the processing topology itself stays with the application.
func NewRuntime(
	client *natsclient.Client,
	cfg Config,
	self engine.HostInfo,
	table *AssignmentTable,
	handler jetstream.MessageHandler,
	logger *slog.Logger,
) (*Runtime, error) {
	if cfg.Stream == "" || cfg.DurablePrefix == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("stream and durable prefix are required"),
			"Runtime", "NewRuntime", "validate config")
	}
	if cfg.Partitions <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("partitions must be > 0, got %d", cfg.Partitions),
			"Runtime", "NewRuntime", "validate config")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = cfg.Partitions
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runtime{
		client:  client,
		cfg:     cfg,
		self:    self,
		handler: handler,
		table:   table,
		logger:  logger,
		state:   engine.StateCreated,
		stores:  make(map[string]engine.ReadOnlyStore),
	}, nil
}

// RegisterStore publishes a local store handle under its name.
func (r *Runtime) RegisterStore(name string, store engine.ReadOnlyStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[name] = store
}

// Store implements engine.Engine.
func (r *Runtime) Store(name string) (engine.ReadOnlyStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: store %q", errors.ErrKeyNotFound, name)
	}
	return store, nil
}

// QueryMetadataForKey implements engine.Engine: the key's partition is
// looked up in the assignment table.
func (r *Runtime) QueryMetadataForKey(_ string, key []byte) (engine.KeyQueryMetadata, bool) {
	partition := r.table.PartitionFor(key)
	host, ok := r.table.Owner(partition)
	if !ok {
		return engine.KeyQueryMetadata{}, false
	}
	return engine.KeyQueryMetadata{ActiveHost: host, Partition: partition}, true
}

// MetadataForAllClients implements engine.Engine.
func (r *Runtime) MetadataForAllClients() []engine.HostInfo {
	return r.table.Hosts()
}

// Start transitions through rebalancing and spins up the baseline worker
// count.
func (r *Runtime) Start(ctx context.Context, baseline int) error {
	r.setState(engine.StateRebalancing)
	for i := 0; i < baseline; i++ {
		if _, err := r.AddThread(ctx); err != nil {
			r.setState(engine.StateError)
			return err
		}
	}
	r.setState(engine.StateRunning)
	return nil
}

// AddThread implements engine.Engine: it starts one more worker on the
// durable consumer of partition (worker count mod partition count).
func (r *Runtime) AddThread(ctx context.Context) (string, error) {
	r.mu.Lock()
	if len(r.workers) >= r.cfg.MaxWorkers {
		count := len(r.workers)
		r.mu.Unlock()
		return "", fmt.Errorf("worker limit reached: %d", count)
	}
	partition := len(r.workers) % r.cfg.Partitions
	r.nextID++
	name := fmt.Sprintf("worker-%d", r.nextID)
	r.mu.Unlock()

	js, err := r.client.JetStream()
	if err != nil {
		return "", errors.WrapTransient(err, "Runtime", "AddThread", "get JetStream context")
	}

	durable := fmt.Sprintf("%s-%d", r.cfg.DurablePrefix, partition)
	consumer, err := js.Consumer(ctx, r.cfg.Stream, durable)
	if err != nil {
		return "", errors.WrapTransient(err, "Runtime", "AddThread", "resolve consumer "+durable)
	}

	consumeCtx, err := consumer.Consume(r.handler)
	if err != nil {
		return "", errors.WrapTransient(err, "Runtime", "AddThread", "start consume "+durable)
	}

	w := &worker{
		name:      name,
		partition: partition,
		info:      consumer,
		consume:   consumeCtx,
		logger:    r.logger,
	}

	r.mu.Lock()
	r.workers = append(r.workers, w)
	r.mu.Unlock()

	r.logger.Info("Worker started", "worker", name, "partition", partition)
	return name, nil
}

// RemoveThread implements engine.Engine: it stops the most recently added
// worker.
func (r *Runtime) RemoveThread(_ context.Context) (string, error) {
	r.mu.Lock()
	if len(r.workers) == 0 {
		r.mu.Unlock()
		return "", fmt.Errorf("no worker to remove")
	}
	w := r.workers[len(r.workers)-1]
	r.workers = r.workers[:len(r.workers)-1]
	r.mu.Unlock()

	w.stop()
	r.logger.Info("Worker stopped", "worker", w.name)
	return w.name, nil
}

// LocalThreads implements engine.Engine.
func (r *Runtime) LocalThreads() []engine.ThreadMetadata {
	r.mu.Lock()
	workers := make([]*worker, len(r.workers))
	copy(workers, r.workers)
	r.mu.Unlock()

	ctx := context.Background()
	threads := make([]engine.ThreadMetadata, 0, len(workers))
	for _, w := range workers {
		threads = append(threads, engine.ThreadMetadata{
			Name:        w.name,
			ActiveTasks: []engine.TaskMetadata{w.taskMetadata(ctx, r.cfg.Stream)},
		})
	}
	return threads
}

// State implements engine.Engine.
func (r *Runtime) State() engine.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnStateChange implements engine.Engine.
func (r *Runtime) OnStateChange(listener engine.StateListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Rebalance applies a new assignment table delivered by the cluster and
// walks the state machine through rebalancing.
func (r *Runtime) Rebalance(owners map[int]engine.HostInfo) {
	r.setState(engine.StateRebalancing)
	r.table.Replace(owners)
	r.setState(engine.StateRunning)
}

// Shutdown stops every worker and settles in the not-running state.
func (r *Runtime) Shutdown() {
	r.setState(engine.StatePendingShutdown)

	r.mu.Lock()
	workers := r.workers
	r.workers = nil
	r.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
	r.setState(engine.StateNotRunning)
}

func (r *Runtime) setState(newState engine.State) {
	r.mu.Lock()
	oldState := r.state
	r.state = newState
	listeners := make([]engine.StateListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if oldState == newState {
		return
	}
	for _, l := range listeners {
		l(oldState, newState)
	}
}

// Self returns this instance's advertised endpoint.
func (r *Runtime) Self() engine.HostInfo {
	return r.self
}
