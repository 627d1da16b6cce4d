// Package query implements the interactive query executor: it negotiates
// key serialization, routes to the owning host, and dispatches the read
// either locally or over a remote store stub.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/metric"
	"github.com/c360/streampilot/serde"
	"github.com/c360/streampilot/store"
)

// Request is one interactive point query. SerdeName is optional; empty
// selects the registry default.
type Request struct {
	StoreName      string
	StringifiedKey string
	SerdeName      string
}

// Executor resolves and runs interactive queries. Safe for concurrent
// callers: the management handler invokes it in parallel.
type Executor struct {
	registry *serde.Registry
	manager  *store.Manager
	timeout  time.Duration
	metrics  *metric.QueryMetrics
	logger   *slog.Logger
}

// NewExecutor creates a query executor. The timeout for each query is the
// generic timeout derived from the runtime properties. metrics may be nil.
func NewExecutor(
	registry *serde.Registry,
	manager *store.Manager,
	props config.Properties,
	metrics *metric.QueryMetrics,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		manager:  manager,
		timeout:  props.GenericTimeout(),
		metrics:  metrics,
		logger:   logger,
	}
}

// Execute runs one query. found=false means the owning host confirmed
// absence. Every failure is returned unchanged for the endpoint boundary
// to render; serde resolution must precede routing because the runtime
// partitions on the serialized key bytes.
func (e *Executor) Execute(ctx context.Context, req Request) (value []byte, found bool, err error) {
	start := time.Now()
	defer func() {
		e.observe(start, found, err)
	}()

	entry := e.registry.Default()
	if req.SerdeName != "" {
		entry, err = e.registry.ByName(req.SerdeName)
		if err != nil {
			return nil, false, err
		}
	}

	key, err := serde.Convert(req.StringifiedKey, entry.KeyType)
	if err != nil {
		return nil, false, err
	}

	keyBytes, err := entry.Serializer(key)
	if err != nil {
		return nil, false, err
	}

	host, ok := e.manager.FindHost(keyBytes, req.StoreName)
	if !ok {
		return nil, false, errors.ErrNoRoute
	}

	st, ok := e.manager.FindStore(host, store.KeyValue)
	if !ok {
		return nil, false, errors.ErrNoStoreForHost
	}
	e.countRemote(st, host)

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	value, found, err = st.FindByKey(queryCtx, keyBytes, req.StoreName)
	if err != nil {
		e.logger.Debug("Interactive query failed",
			"store", req.StoreName, "key", req.StringifiedKey, "host", host.String(), "error", err)
		return nil, false, err
	}
	return value, found, nil
}

func (e *Executor) observe(start time.Time, found bool, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.Duration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		e.metrics.Queries.WithLabelValues("error").Inc()
	case found:
		e.metrics.Queries.WithLabelValues("hit").Inc()
	default:
		e.metrics.Queries.WithLabelValues("miss").Inc()
	}
}

func (e *Executor) countRemote(st store.RemoteStore, host engine.HostInfo) {
	if e.metrics == nil {
		return
	}
	if _, local := st.(*store.LocalKeyValueStore); !local {
		e.metrics.Remote.Inc()
		e.logger.Debug("Dispatching query to remote host", "host", host.String())
	}
}
