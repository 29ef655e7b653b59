//go:build integration

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Penlect/emqxlwm2m/engine"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/natsclient"
)

func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
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

	time.Sleep(100 * time.Millisecond)
	return natsContainer, fmt.Sprintf("nats://%s:%s", host, port.Port())
}

// fakeDevice answers read commands on its downlink subject the way the
// EMQx bridge relays a device response.
func fakeDevice(t *testing.T, nc *nats.Conn, endpoint string) {
	t.Helper()
	dn := downlinkSubject(DefaultMountpoint, endpoint)
	up := DefaultMountpoint + "." + EscapeEndpoint(endpoint) + ".up.resp"

	sub, err := nc.Subscribe(dn, func(msg *nats.Msg) {
		var env struct {
			ReqID   int    `json:"reqID"`
			MsgType string `json:"msgType"`
			Data    struct {
				Path string `json:"path"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			return
		}
		reply := fmt.Sprintf(
			`{"reqID":%d,"msgType":%q,"data":{"reqPath":%q,"code":"2.05",`+
				`"content":[{"path":%q,"value":"EMQ"}]}}`,
			env.ReqID, env.MsgType, env.Data.Path, env.Data.Path)
		_ = nc.Publish(up, []byte(reply))
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func TestIntegration_ReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	natsContainer, natsURL := startNATSContainer(ctx, t)
	defer natsContainer.Terminate(ctx)

	client, err := natsclient.NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	deviceConn, err := nats.Connect(natsURL)
	require.NoError(t, err)
	defer deviceConn.Close()
	fakeDevice(t, deviceConn, "urn:dev:42")

	gw, err := New(Deps{
		Name:       "test-gw",
		Config:     Config{Engine: engine.Config{DefaultTimeout: 5 * time.Second}},
		NATSClient: client,
	})
	require.NoError(t, err)
	require.NoError(t, gw.Initialize())
	require.NoError(t, gw.Start(ctx))
	defer gw.Stop(5 * time.Second)

	ep, err := gw.Endpoint(ctx, "urn:dev:42", 5*time.Second)
	require.NoError(t, err)

	// Both subscriptions need to reach the server before the command does.
	require.NoError(t, deviceConn.Flush())
	require.NoError(t, client.GetConnection().Flush())

	values, err := ep.Read(ctx, "/3/0/1")
	require.NoError(t, err)
	assert.Equal(t, "EMQ", values[lwm2m.Path("/3/0/1")])
}

func TestIntegration_WildcardLifecycle(t *testing.T) {
	ctx := context.Background()
	natsContainer, natsURL := startNATSContainer(ctx, t)
	defer natsContainer.Terminate(ctx)

	client, err := natsclient.NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	cfg := DefaultConfig()
	cfg.Wildcard = true
	gw, err := New(Deps{Name: "test-gw", Config: cfg, NATSClient: client})
	require.NoError(t, err)
	require.NoError(t, gw.Initialize())
	require.NoError(t, gw.Start(ctx))
	defer gw.Stop(5 * time.Second)

	regs, stop := gw.Engine().Lifecycle("", lwm2m.TypeRegister)
	defer stop()

	deviceConn, err := nats.Connect(natsURL)
	require.NoError(t, err)
	defer deviceConn.Close()

	subject := DefaultMountpoint + ".urn:dev:7.up.register"
	payload := `{"msgType":"register","data":{"lt":300,"lwm2m":"1.0","objectList":["/3/0"]}}`
	require.NoError(t, deviceConn.Publish(subject, []byte(payload)))

	select {
	case lc := <-regs:
		assert.Equal(t, "urn:dev:7", lc.Endpoint)
		assert.Equal(t, int64(300), lc.Lifetime)
	case <-time.After(5 * time.Second):
		t.Fatal("registration never reached the engine")
	}
}
