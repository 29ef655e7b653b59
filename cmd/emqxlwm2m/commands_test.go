package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Penlect/emqxlwm2m/lwm2m"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(42), parseValue("42"))
	assert.Equal(t, int64(-7), parseValue("-7"))
	assert.Equal(t, 21.5, parseValue("21.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "hello", parseValue("hello"))
	// Bare 1/0 read as integers, not booleans.
	assert.Equal(t, int64(1), parseValue("1"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, `"abc"`, formatValue("abc"))
	assert.Equal(t, "21.5", formatValue(21.5))
	assert.Equal(t, "3", formatValue(3))
	assert.Equal(t, "true", formatValue(true))
}

func TestSortedPaths(t *testing.T) {
	m := map[lwm2m.Path]any{
		"/3/0/9": nil,
		"/1/0/1": nil,
		"/3/0/0": nil,
	}
	assert.Equal(t,
		[]lwm2m.Path{"/1/0/1", "/3/0/0", "/3/0/9"},
		sortedPaths(m))
}

func TestValidateFlags(t *testing.T) {
	valid := &CLIConfig{LogLevel: "warn", LogFormat: "text"}
	assert.NoError(t, validateFlags(valid))

	badLevel := &CLIConfig{LogLevel: "loud", LogFormat: "text"}
	assert.Error(t, validateFlags(badLevel))

	badFormat := &CLIConfig{LogLevel: "info", LogFormat: "xml"}
	assert.Error(t, validateFlags(badFormat))

	missing := &CLIConfig{LogLevel: "info", LogFormat: "text", ConfigPath: "/nonexistent/cfg.yaml"}
	assert.Error(t, validateFlags(missing))

	// --version short-circuits validation entirely.
	version := &CLIConfig{ShowVersion: true}
	assert.NoError(t, validateFlags(version))
}

func TestExecuteShortcuts(t *testing.T) {
	assert.Equal(t, lwm2m.Path("/3/0/4"), executeShortcuts["reboot"])
	assert.Equal(t, lwm2m.Path("/1/0/4"), executeShortcuts["disable"])
	assert.Equal(t, lwm2m.Path("/1/0/8"), executeShortcuts["update"])
}

func TestDispatchShortcutUsage(t *testing.T) {
	a := &app{}
	// Shortcut verbs take exactly one endpoint argument; the usage
	// error must not require a broker connection to surface.
	err := a.dispatch(context.Background(), "reboot", nil)
	assert.EqualError(t, err, "usage: reboot <endpoint>")

	err = a.dispatch(context.Background(), "disable", []string{"urn:dev:1", "extra"})
	assert.EqualError(t, err, "usage: disable <endpoint>")
}
