package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/natsclient"
	"github.com/c360/streampilot/pkg/retry"
)

// RemoteKeyValueStore is the client side of the query transport: a
// RemoteStore whose FindByKey travels over a per-host NATS request/reply
// channel. The zero-host value acts as the prototype registered with the
// host manager; Stub binds a fresh instance to a concrete host.
type RemoteKeyValueStore struct {
	host    engine.HostInfo
	natsURL string
	logger  *slog.Logger

	mu          sync.Mutex
	opts        []natsclient.Option
	client      *natsclient.Client
	initialized bool
}

// NewRemoteKeyValueStore creates the prototype for remote key/value
// stubs. natsURL is the server every stub dials; per-host addressing
// happens at the subject level.
func NewRemoteKeyValueStore(natsURL string, logger *slog.Logger) *RemoteKeyValueStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteKeyValueStore{
		natsURL: natsURL,
		logger:  logger,
	}
}

// Reference returns the stable identifier of this store representation.
func (s *RemoteKeyValueStore) Reference() string {
	if s.host.IsZero() {
		return "remote-key-value"
	}
	return "remote-key-value@" + s.host.String()
}

// IsCompatible reports whether this representation answers the requested
// store type.
func (s *RemoteKeyValueStore) IsCompatible(t Type) bool {
	return t == KeyValue || t == TimestampedKeyValue
}

// Stub produces a client bound to host, inheriting the prototype's
// connection options.
func (s *RemoteKeyValueStore) Stub(host engine.HostInfo) RemoteStore {
	s.mu.Lock()
	opts := make([]natsclient.Option, len(s.opts))
	copy(opts, s.opts)
	s.mu.Unlock()

	return &RemoteKeyValueStore{
		host:    host,
		natsURL: s.natsURL,
		logger:  s.logger,
		opts:    opts,
	}
}

// Configure applies channel options. Effective only before Initialize.
func (s *RemoteKeyValueStore) Configure(opts ...natsclient.Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = append(s.opts, opts...)
}

// Initialize establishes the transport channel to the stub's host.
func (s *RemoteKeyValueStore) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return errors.ErrAlreadyStarted
	}

	opts := append([]natsclient.Option{
		natsclient.WithName("streampilot-stub-" + s.host.String()),
	}, s.opts...)

	client, err := natsclient.NewClient(s.natsURL, opts...)
	if err != nil {
		return errors.Wrap(err, "RemoteKeyValueStore", "Initialize", "create client")
	}

	err = retry.Do(context.Background(), retry.Quick(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Connect(ctx)
	})
	if err != nil {
		return errors.WrapTransient(err, "RemoteKeyValueStore", "Initialize", "connect channel")
	}

	s.client = client
	s.initialized = true
	s.logger.Debug("Remote store stub initialized", "host", s.host.String())
	return nil
}

// Shutdown releases the transport channel.
func (s *RemoteKeyValueStore) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	s.initialized = false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.client.Close(ctx)
	s.client = nil
	return err
}

// FindByKey asks the stub's host for the value of a serialized key.
func (s *RemoteKeyValueStore) FindByKey(ctx context.Context, key []byte, storeName string) ([]byte, bool, error) {
	s.mu.Lock()
	client := s.client
	initialized := s.initialized
	s.mu.Unlock()

	if !initialized {
		return nil, false, errors.Wrap(
			errors.ErrNotStarted, "RemoteKeyValueStore", "FindByKey", "check stub state")
	}

	payload, err := encodeRequest(queryRequest{
		ID:    uuid.NewString(),
		Store: storeName,
		Key:   key,
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "RemoteKeyValueStore", "FindByKey", "encode request")
	}

	data, err := client.Request(ctx, subjectFor(s.host), payload)
	if err != nil {
		return nil, false, errors.WrapTransient(err, "RemoteKeyValueStore", "FindByKey",
			"query host "+s.host.String())
	}

	reply, err := decodeReply(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", errors.ErrDeserialization, err)
	}

	if reply.Error != "" {
		switch reply.Kind {
		case wireKindNotOwner:
			return nil, false, fmt.Errorf("%w: %s", errors.ErrNotOwner, reply.Error)
		case wireKindDeserialization:
			return nil, false, fmt.Errorf("%w: %s", errors.ErrDeserialization, reply.Error)
		default:
			return nil, false, errors.WrapTransient(
				fmt.Errorf("%s", reply.Error),
				"RemoteKeyValueStore", "FindByKey", "remote query")
		}
	}

	return reply.Value, reply.Found, nil
}
