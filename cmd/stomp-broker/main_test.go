package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	var out bytes.Buffer
	parsed, err := parseArgs([]string{"7777", "reactor"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 7777, parsed.port)
	assert.Equal(t, "reactor", parsed.mode)
	assert.Equal(t, "config.json", parsed.configPath)

	parsed, err = parseArgs([]string{"--config", "/tmp/broker.json", "7777", "tpc"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "tpc", parsed.mode)
	assert.Equal(t, "/tmp/broker.json", parsed.configPath)
	assert.Empty(t, out.String())
}

func TestParseArgsUsage(t *testing.T) {
	tests := [][]string{
		{},
		{"7777"},
		{"7777", "reactor", "extra"},
		{"7777", "threads"},
		{"port", "tpc"},
		{"70000", "tpc"},
		{"--unknown", "7777", "tpc"},
	}

	for _, args := range tests {
		var out bytes.Buffer
		_, err := parseArgs(args, &out)
		assert.ErrorIs(t, err, errUsage, "args %v", args)
		assert.Contains(t, out.String(), "Usage: stomp-broker", "args %v", args)
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, run([]string{"7777"}, &out))
	assert.Contains(t, out.String(), "Usage")
}
