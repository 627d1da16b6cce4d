package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streampilot/config"
	"github.com/c360/streampilot/engine"
	"github.com/c360/streampilot/errors"
	"github.com/c360/streampilot/testutil"
)

func TestNewLocalStoreRequiresSelfEndpoint(t *testing.T) {
	eng := testutil.NewFakeEngine()

	_, err := NewLocalKeyValueStore(eng, config.Properties{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingSelfEndpoint)

	_, err = NewLocalKeyValueStore(eng, config.Properties{config.ApplicationServer: "garbage"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLocalStoreSelf(t *testing.T) {
	local := localStore(t, testutil.NewFakeEngine(), "10.0.0.1:19099")
	assert.Equal(t, engine.HostInfo{Host: "10.0.0.1", Port: 19099}, local.Self())
	assert.Equal(t, "local-key-value", local.Reference())
}

func TestLocalStoreCompatibility(t *testing.T) {
	local := localStore(t, testutil.NewFakeEngine(), "localhost:19099")
	assert.True(t, local.IsCompatible(KeyValue))
	assert.True(t, local.IsCompatible(TimestampedKeyValue))
}

func TestLocalStoreFindByKey(t *testing.T) {
	eng := testutil.NewFakeEngine()
	fs := testutil.NewFakeStore()
	fs.Put([]byte("j-1"), []byte("123"))
	eng.Stores["join-store"] = fs

	local := localStore(t, eng, "localhost:19099")

	value, found, err := local.FindByKey(context.Background(), []byte("j-1"), "join-store")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("123"), value)

	_, found, err = local.FindByKey(context.Background(), []byte("absent"), "join-store")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = local.FindByKey(context.Background(), []byte("j-1"), "no-such-store")
	assert.Error(t, err)
}

func TestLocalStoreLifecycleNoOps(t *testing.T) {
	local := localStore(t, testutil.NewFakeEngine(), "localhost:19099")

	assert.NoError(t, local.Initialize())
	assert.NoError(t, local.Shutdown())
	assert.Same(t, local, local.Stub(engine.HostInfo{Host: "other", Port: 1}).(*LocalKeyValueStore))
}
