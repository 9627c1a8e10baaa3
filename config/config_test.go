package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "memory:///ftp", c.Service)
	assert.Equal(t, 21, c.ListenPort)
	assert.Equal(t, "localhost:6060", c.DebugAddr)
	assert.Equal(t, 5*time.Second, c.Relay.FlushGrace.Duration)
	assert.Equal(t, int64(64*1024), c.Relay.PauseThreshold)
	assert.Equal(t, int64(32*1024), c.Relay.ResumeThreshold)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(`
service = "memory:///data"
port = -1
start-port = 30000
end-port = 30100

[relay]
flush-grace = "250ms"
pause-threshold = 1024
resume-threshold = 4096
hex-dump = true

[log]
level = "debug"
format = "json"
`)
	require.NoError(t, err)

	s := GetServerSetting(c)
	assert.Equal(t, "memory:///data", s.Service)
	assert.Equal(t, 0, s.ListenPort)
	assert.Equal(t, &PortRange{Start: 30000, End: 30100}, s.DataPortRange)
	assert.Equal(t, 250*time.Millisecond, s.Relay.FlushGrace)
	assert.Equal(t, int64(1024), s.Relay.PauseThreshold)
	// A resume threshold above the pause threshold is clamped.
	assert.Equal(t, int64(512), s.Relay.ResumeThreshold)
	assert.True(t, s.Relay.HexDump)
	assert.Equal(t, "json", c.Log.Format)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	_, err := LoadConfig(`
[relay]
flush-grace = "soon"
`)
	assert.Error(t, err)
}
