package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath string
	NATSUrl    string
	Timeout    time.Duration
	LogLevel   string
	LogFormat  string
	Wildcard   bool

	ShowVersion bool
	ShowHelp    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("EMQXLWM2M_CONFIG", ""),
		"Path to YAML configuration file (env: EMQXLWM2M_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("EMQXLWM2M_CONFIG", ""),
		"Path to YAML configuration file (env: EMQXLWM2M_CONFIG)")

	flag.StringVar(&cfg.NATSUrl, "nats",
		getEnv("EMQXLWM2M_NATS_URL", ""),
		"NATS server URL, overrides config file (env: EMQXLWM2M_NATS_URL)")

	flag.DurationVar(&cfg.Timeout, "timeout",
		getEnvDuration("EMQXLWM2M_TIMEOUT", 0),
		"Per-command response timeout, overrides config file (env: EMQXLWM2M_TIMEOUT)")

	flag.DurationVar(&cfg.Timeout, "t",
		getEnvDuration("EMQXLWM2M_TIMEOUT", 0),
		"Per-command response timeout, overrides config file (env: EMQXLWM2M_TIMEOUT)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("EMQXLWM2M_LOG_LEVEL", "warn"),
		"Log level: debug, info, warn, error (env: EMQXLWM2M_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("EMQXLWM2M_LOG_FORMAT", "text"),
		"Log format: json, text (env: EMQXLWM2M_LOG_FORMAT)")

	flag.BoolVar(&cfg.Wildcard, "wildcard",
		getEnvBool("EMQXLWM2M_WILDCARD", false),
		"Subscribe to all endpoint uplink traffic (env: EMQXLWM2M_WILDCARD)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("invalid timeout: %s", cfg.Timeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - LwM2M device management over NATS

Usage: %s [options] <command> [arguments]

Commands:
  read <endpoint> <path>              Read a resource or object
  discover <endpoint> <path>          Discover paths and attributes
  write <endpoint> <path> <value>     Write a resource value
  attr <endpoint> <path> <attrs>      Write notification attributes
                                      (e.g. "[10,60]::21.5" for pmin=10,
                                      pmax=60, gt=21.5)
  execute <endpoint> <path> [args]    Execute a resource
  create <endpoint> <path> <k=v ...>  Create an object instance
  delete <endpoint> <path>            Delete an object instance
  observe <endpoint> <path>           Observe and print notifications
  cancel-observe <endpoint> <path>    Cancel an observation
  reboot <endpoint>                   Execute /3/0/4 (device reboot)
  disable <endpoint>                  Execute /1/0/4 (disable registration)
  update <endpoint>                   Execute /1/0/8 (registration update)
  endpoints                           List known endpoints
  follow                              Track registrations into the KV store
  shell [endpoint]                    Interactive session

The <endpoint> argument is a device endpoint name, or the path of a
file listing one endpoint name per line for batch execution.

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Read the manufacturer resource
  %s read urn:imei:868998030113344 /3/0/0

  # Write with a 5 second timeout
  %s -t 5s write urn:imei:868998030113344 /1/0/1 60

  # Observe battery level until interrupted
  %s observe urn:imei:868998030113344 /3/0/9

  # Batch reboot every endpoint listed in a file
  %s reboot fleet.txt

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
