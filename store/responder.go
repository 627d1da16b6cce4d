package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/natsclient"
)

// Responder is the server side of the query channel: it answers remote
// FindByKey requests for this instance from the local store adapter.
type Responder struct {
	client *natsclient.Client
	local  *LocalKeyValueStore
	eng    engine.Engine
	logger *slog.Logger
}

// NewResponder creates a responder bound to the shared NATS connection.
func NewResponder(client *natsclient.Client, local *LocalKeyValueStore, eng engine.Engine, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		client: client,
		local:  local,
		eng:    eng,
		logger: logger,
	}
}

// Start subscribes on this instance's query subject.
func (r *Responder) Start() error {
	subject := subjectFor(r.local.Self())
	r.logger.Info("Query responder listening", "subject", subject, "self", r.local.Self().String())
	return r.client.Respond(subject, r.handle)
}

func (r *Responder) handle(data []byte) []byte {
	req, err := decodeRequest(data)
	if err != nil {
		return encodeReply(queryReply{
			Error: fmt.Sprintf("malformed query request: %v", err),
			Kind:  wireKindDeserialization,
		})
	}

	// A request that raced a rebalance may land on a host that no longer
	// owns the partition. Confirm ownership before answering so the
	// caller can re-route instead of trusting a stale answer.
	if metadata, available := r.eng.QueryMetadataForKey(req.Store, req.Key); available {
		if metadata.ActiveHost != r.local.Self() {
			return encodeReply(queryReply{
				ID: req.ID,
				Error: fmt.Sprintf("partition for store %q is owned by %s",
					req.Store, metadata.ActiveHost.String()),
				Kind: wireKindNotOwner,
			})
		}
	}

	value, found, err := r.local.FindByKey(context.Background(), req.Key, req.Store)
	if err != nil {
		r.logger.Debug("Local query failed", "store", req.Store, "error", err)
		return encodeReply(queryReply{
			ID:    req.ID,
			Error: err.Error(),
			Kind:  wireKindInternal,
		})
	}

	return encodeReply(queryReply{
		ID:    req.ID,
		Value: value,
		Found: found,
	})
}
