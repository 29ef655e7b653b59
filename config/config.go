package config

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Penlect/emqxlwm2m/engine"
	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/gateway"
	"github.com/Penlect/emqxlwm2m/natsclient"
)

// Duration accepts Go duration strings ("30s", "1m30s") in YAML, which
// time.Duration alone does not.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or a bare integer
// (interpreted as nanoseconds, matching encoding/json behavior).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	if parsed, err := time.ParseDuration(s); err == nil {
		*d = Duration(parsed)
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration %q", s)
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete application configuration.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Gateway GatewayConfig `yaml:"gateway"`
	Engine  EngineConfig  `yaml:"engine"`

	// Objects lists OMA object definition XML files or directories,
	// used by the CLI for human-friendly display only.
	Objects []string `yaml:"objects,omitempty"`

	// LogMirror publishes component log entries to a NATS subject in
	// addition to stdout.
	LogMirror bool `yaml:"log_mirror,omitempty"`

	// MetricsPort exposes Prometheus metrics over HTTP for long-running
	// commands. Zero disables the server.
	MetricsPort int `yaml:"metrics_port,omitempty"`
}

// NATSConfig defines the NATS connection settings.
type NATSConfig struct {
	URL           string    `yaml:"url,omitempty"`
	Name          string    `yaml:"name,omitempty"`
	Username      string    `yaml:"username,omitempty"`
	Password      string    `yaml:"password,omitempty"`
	Token         string    `yaml:"token,omitempty"`
	MaxReconnects int       `yaml:"max_reconnects,omitempty"`
	ReconnectWait Duration  `yaml:"reconnect_wait,omitempty"`
	TLS           TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig for secure NATS connections.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`
	CAFile   string `yaml:"ca_file,omitempty"`
}

// GatewayConfig shapes the uplink/downlink bridge.
type GatewayConfig struct {
	Mountpoint       string `yaml:"mountpoint,omitempty"`
	MaxSubscriptions int    `yaml:"max_subscriptions,omitempty"`
	Workers          int    `yaml:"workers,omitempty"`
	QueueSize        int    `yaml:"queue_size,omitempty"`
	Wildcard         bool   `yaml:"wildcard,omitempty"`
}

// EngineConfig tunes the request/response correlation engine.
type EngineConfig struct {
	DefaultTimeout    Duration `yaml:"default_timeout,omitempty"`
	TickInterval      Duration `yaml:"tick_interval,omitempty"`
	ReqIDMin          int      `yaml:"req_id_min,omitempty"`
	ReqIDMax          int      `yaml:"req_id_max,omitempty"`
	ObservationBuffer int      `yaml:"observation_buffer,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	gw := gateway.DefaultConfig()
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Gateway: GatewayConfig{
			Mountpoint:       gw.Mountpoint,
			MaxSubscriptions: gw.MaxSubscriptions,
			Workers:          gw.Workers,
			QueueSize:        gw.QueueSize,
		},
		Engine: EngineConfig{
			DefaultTimeout: Duration(60 * time.Second),
			TickInterval:   Duration(engine.DefaultTickInterval),
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty
// path returns the defaults unchanged. Unknown keys are rejected.
//
// Environment overrides, applied after the file:
//
//	EMQXLWM2M_NATS_URL    NATS server URL
//	EMQXLWM2M_MOUNTPOINT  topic/subject mountpoint
//	EMQXLWM2M_TIMEOUT     default command timeout
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "read file")
		}
		if err := unmarshalStrict(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", path)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshalStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stdErrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMQXLWM2M_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("EMQXLWM2M_MOUNTPOINT"); v != "" {
		cfg.Gateway.Mountpoint = v
	}
	if v := os.Getenv("EMQXLWM2M_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.DefaultTimeout = Duration(d)
		} else if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.DefaultTimeout = Duration(time.Duration(n) * time.Second)
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "nats.url")
	}
	if c.NATS.TLS.Enabled {
		if c.NATS.TLS.CertFile == "" || c.NATS.TLS.KeyFile == "" {
			return errors.WrapInvalid(
				fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled"),
				"Config", "Validate", "nats.tls")
		}
	}
	if c.Engine.DefaultTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("default_timeout %s is negative", c.Engine.DefaultTimeout.Std()),
			"Config", "Validate", "engine.default_timeout")
	}
	if c.Engine.ReqIDMin < 0 || c.Engine.ReqIDMax < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("req_id range [%d, %d] contains negative values",
				c.Engine.ReqIDMin, c.Engine.ReqIDMax),
			"Config", "Validate", "engine.req_id range")
	}
	if c.Engine.ReqIDMax != 0 && c.Engine.ReqIDMax <= c.Engine.ReqIDMin {
		return errors.WrapInvalid(
			fmt.Errorf("req_id_max %d must exceed req_id_min %d",
				c.Engine.ReqIDMax, c.Engine.ReqIDMin),
			"Config", "Validate", "engine.req_id range")
	}

	gw := c.GatewayConfig()
	if err := gw.Validate(); err != nil {
		return err
	}
	return nil
}

// GatewayConfig maps the file representation onto the gateway's
// runtime configuration, embedded engine settings included.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Mountpoint:       c.Gateway.Mountpoint,
		MaxSubscriptions: c.Gateway.MaxSubscriptions,
		Workers:          c.Gateway.Workers,
		QueueSize:        c.Gateway.QueueSize,
		Wildcard:         c.Gateway.Wildcard,
		Engine: engine.Config{
			DefaultTimeout:    c.Engine.DefaultTimeout.Std(),
			TickInterval:      c.Engine.TickInterval.Std(),
			ReqIDMin:          c.Engine.ReqIDMin,
			ReqIDMax:          c.Engine.ReqIDMax,
			ObservationBuffer: c.Engine.ObservationBuffer,
		},
	}
}

// ClientOptions translates the NATS section into client options.
func (c *Config) ClientOptions() []natsclient.ClientOption {
	var opts []natsclient.ClientOption
	if c.NATS.Name != "" {
		opts = append(opts, natsclient.WithName(c.NATS.Name))
	}
	if c.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(c.NATS.Username, c.NATS.Password))
	}
	if c.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(c.NATS.Token))
	}
	if c.NATS.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(c.NATS.MaxReconnects))
	}
	if c.NATS.ReconnectWait != 0 {
		opts = append(opts, natsclient.WithReconnectWait(c.NATS.ReconnectWait.Std()))
	}
	if c.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(
			c.NATS.TLS.CertFile, c.NATS.TLS.KeyFile, c.NATS.TLS.CAFile))
	}
	return opts
}
