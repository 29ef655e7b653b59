// Package config loads and validates the application configuration.
//
// Configuration is a single YAML file. Every field has a working
// default, so an empty file (or no file at all) yields a config that
// talks to a local NATS server with the standard "lwm2m" mountpoint.
// A handful of environment variables override the file for the values
// that differ most between deployments (see Load).
package config
