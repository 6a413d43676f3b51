package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := ReadConfig(path)
	require.ErrorIs(t, err, ErrConfigCreated)
	assert.Equal(t, Default(), cfg)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	again, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestReadConfigFileAndEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Server.ReactorWorkers = 3
	cfg.Store.Driver = "sqlite"
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	t.Setenv("STOMP_MAX_FRAME_SIZE", "4096")
	t.Setenv("STOMP_WRITE_TIMEOUT", "2s")

	got, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Server.ReactorWorkers)
	assert.Equal(t, "sqlite", got.Store.Driver)
	assert.Equal(t, 4096, got.Server.MaxFrameSize)
	assert.Equal(t, 2*time.Second, Duration(got.Server.WriteTimeout))

	cached, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, got, cached)
}

func TestReadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := ReadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero workers", func(c *Config) { c.Server.ReactorWorkers = 0 }, false},
		{"zero connections", func(c *Config) { c.Server.MaxConnections = 0 }, false},
		{"zero frame size", func(c *Config) { c.Server.MaxFrameSize = 0 }, false},
		{"zero outbox", func(c *Config) { c.Server.OutboxSize = 0 }, false},
		{"bad timeout", func(c *Config) { c.Server.WriteTimeout = "soon" }, false},
		{"bad mongo socket timeout", func(c *Config) { c.Store.Mongo.SocketTimeout = "later" }, false},
		{"bad mongo idle timeout", func(c *Config) { c.Store.Mongo.ConnectIdleTimeout = "1x" }, false},
		{"bad mongo heartbeat", func(c *Config) { c.Store.Mongo.Heartbeat = "often" }, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, false},
		{"sqlite without path", func(c *Config) {
			c.Store.Driver = "sqlite"
			c.Store.SQLitePath = ""
		}, false},
		{"mongo", func(c *Config) { c.Store.Driver = "mongo" }, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(&cfg)
			err := cfg.Validate()
			if test.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
