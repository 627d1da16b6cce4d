package query

import (
	"context"

	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/natsclient"
	"github.com/c360/streampilot/store"
)

// scriptedRemote is a RemoteStore prototype answering from a fixed map,
// standing in for the NATS stub in executor tests.
type scriptedRemote struct {
	values  map[string][]byte
	stubbed bool
}

func (s *scriptedRemote) Reference() string { return "scripted-remote" }

func (s *scriptedRemote) IsCompatible(t store.Type) bool { return t == store.KeyValue }

func (s *scriptedRemote) Configure(...natsclient.Option) {}

func (s *scriptedRemote) Initialize() error { return nil }

func (s *scriptedRemote) Shutdown() error { return nil }

func (s *scriptedRemote) Stub(engine.HostInfo) store.RemoteStore {
	s.stubbed = true
	return s
}

func (s *scriptedRemote) FindByKey(_ context.Context, key []byte, _ string) ([]byte, bool, error) {
	v, ok := s.values[string(key)]
	return v, ok, nil
}
