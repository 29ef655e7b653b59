package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "lwm2m", cfg.Gateway.Mountpoint)
	assert.Equal(t, 60*time.Second, cfg.Engine.DefaultTimeout.Std())
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
nats:
  url: nats://broker:4222
  username: alice
  password: secret
gateway:
  mountpoint: lwm2m-test
  wildcard: true
engine:
  default_timeout: 5s
  req_id_min: 100
  req_id_max: 200
objects:
  - /opt/oma/xml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "alice", cfg.NATS.Username)
	assert.Equal(t, "lwm2m-test", cfg.Gateway.Mountpoint)
	assert.True(t, cfg.Gateway.Wildcard)
	assert.Equal(t, 5*time.Second, cfg.Engine.DefaultTimeout.Std())
	assert.Equal(t, 100, cfg.Engine.ReqIDMin)
	assert.Equal(t, []string{"/opt/oma/xml"}, cfg.Objects)

	// Unset fields keep their defaults.
	assert.Equal(t, 4, cfg.Gateway.Workers)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "natz:\n  url: nats://broker:4222\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EMQXLWM2M_NATS_URL", "nats://env:4222")
	t.Setenv("EMQXLWM2M_MOUNTPOINT", "lwm2m-env")
	t.Setenv("EMQXLWM2M_TIMEOUT", "90s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "lwm2m-env", cfg.Gateway.Mountpoint)
	assert.Equal(t, 90*time.Second, cfg.Engine.DefaultTimeout.Std())
}

func TestLoad_EnvTimeoutSeconds(t *testing.T) {
	// A bare integer is taken as seconds.
	t.Setenv("EMQXLWM2M_TIMEOUT", "30")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Engine.DefaultTimeout.Std())
}

func TestDuration_Unmarshal(t *testing.T) {
	path := writeConfig(t, "engine:\n  default_timeout: 1m30s\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Engine.DefaultTimeout.Std())
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	path := writeConfig(t, "engine:\n  default_timeout: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, false},
		{"missing url", func(c *Config) { c.NATS.URL = "" }, true},
		{"tls without cert", func(c *Config) { c.NATS.TLS.Enabled = true }, true},
		{"inverted reqid range", func(c *Config) {
			c.Engine.ReqIDMin = 50
			c.Engine.ReqIDMax = 10
		}, true},
		{"negative reqid", func(c *Config) { c.Engine.ReqIDMin = -1 }, true},
		{"mountpoint wildcard", func(c *Config) { c.Gateway.Mountpoint = "lw*m" }, true},
		{"empty mountpoint", func(c *Config) { c.Gateway.Mountpoint = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGatewayConfig_Mapping(t *testing.T) {
	cfg := Default()
	cfg.Gateway.Wildcard = true
	cfg.Engine.ReqIDMin = 10
	cfg.Engine.ReqIDMax = 99
	cfg.Engine.ObservationBuffer = 32

	gw := cfg.GatewayConfig()
	assert.Equal(t, "lwm2m", gw.Mountpoint)
	assert.True(t, gw.Wildcard)
	assert.Equal(t, 10, gw.Engine.ReqIDMin)
	assert.Equal(t, 99, gw.Engine.ReqIDMax)
	assert.Equal(t, 32, gw.Engine.ObservationBuffer)
	assert.Equal(t, 60*time.Second, gw.Engine.DefaultTimeout)
}

func TestClientOptions(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.ClientOptions(), 2) // max_reconnects, reconnect_wait

	cfg.NATS.Username = "alice"
	cfg.NATS.Password = "secret"
	cfg.NATS.Token = "tok"
	cfg.NATS.Name = "cli"
	assert.Len(t, cfg.ClientOptions(), 5)
}
