//go:build integration

package endpointstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/natsclient"
)

func startJetStreamContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}
	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)
	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	return natsContainer, fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestIntegration_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	natsContainer, natsURL := startJetStreamContainer(ctx, t)
	defer natsContainer.Terminate(ctx)

	client, err := natsclient.NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	store, err := NewStore(ctx, client)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.Apply(ctx, &lwm2m.Lifecycle{
		Endpoint:   "urn:imei:004999010640000",
		MsgType:    lwm2m.TypeRegister,
		Lifetime:   300,
		ObjectList: []string{"/1/0", "/3/0"},
		Timestamp:  now,
	}))
	require.NoError(t, store.Apply(ctx, &lwm2m.Lifecycle{
		Endpoint:  "urn:imei:004999010640000",
		MsgType:   lwm2m.TypeUpdate,
		Lifetime:  60,
		Timestamp: now.Add(time.Second),
	}))

	rec, err := store.Get(ctx, "urn:imei:004999010640000")
	require.NoError(t, err)
	assert.Equal(t, int64(60), rec.Lifetime)
	assert.Equal(t, []string{"/1/0", "/3/0"}, rec.ObjectList)
	assert.Equal(t, int64(2), rec.Events)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "urn:imei:004999010640000", records[0].Endpoint)

	require.NoError(t, store.Delete(ctx, "urn:imei:004999010640000"))
	_, err = store.Get(ctx, "urn:imei:004999010640000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestIntegration_ListEmptyBucket(t *testing.T) {
	ctx := context.Background()
	natsContainer, natsURL := startJetStreamContainer(ctx, t)
	defer natsContainer.Terminate(ctx)

	client, err := natsclient.NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	store, err := NewStore(ctx, client)
	require.NoError(t, err)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
