package injector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/vrepclient/internal/config"
	"github.com/zeusync/vrepclient/internal/core/events/bus"
	"github.com/zeusync/vrepclient/sdk/go/client"
)

func TestInitializeApp(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Server.Listen = "127.0.0.1:0"

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, app.Logger)
	require.NotNil(t, app.Events)
	require.NotNil(t, app.Client)
	require.NotNil(t, app.Server)
	assert.Equal(t, cfg, app.Config)
	assert.False(t, app.Client.IsConnected())

	changes := 0
	cancel := app.Client.OnStateChange(func(bool) { changes++ })
	defer cancel()
	require.NoError(t, app.Events.Publish(bus.NewEvent(string(client.EventTypeStateChanged), "test", client.Event{
		Type:    client.EventTypeStateChanged,
		Running: true,
	})))
	assert.Equal(t, 1, changes, "client handlers should be registered on the injected bus")
}

func TestProvideClientConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Bridge.URL = "ws://sim:9090"
	cfg.Bridge.HandshakeTimeout = 3 * time.Second
	cfg.Simulator.Namespace = "/sim"
	cfg.Simulator.InfoQueueLength = 5
	cfg.Simulator.CallTimeout = time.Minute
	cfg.Packages.Overrides = map[string]string{"tapir": "/opt/tapir"}

	cc := ProvideClientConfig(cfg)
	assert.Equal(t, "ws://sim:9090", cc.URL)
	assert.Equal(t, 3*time.Second, cc.ConnectTimeout)
	assert.Equal(t, 3*time.Second, cc.Bridge.HandshakeTimeout)
	assert.Equal(t, "/sim", cc.Namespace)
	assert.Equal(t, 5, cc.InfoQueueLength)
	assert.Equal(t, time.Minute, cc.CallTimeout)
	assert.Equal(t, "/opt/tapir", cc.PackageOverrides["tapir"])
	assert.Equal(t, "tapir", cc.DefaultPackage)
}
