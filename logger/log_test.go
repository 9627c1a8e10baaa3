package logger

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beyondstorage/beyond-relay/config"
)

func TestNewLoggerWritesFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "beyond-relay-log")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "relay.log")
	l, err := NewLogger(config.LogSettings{Level: "debug", Format: "json", File: file, MaxSize: 1})
	require.NoError(t, err)

	l.Debug("Pump stopped")
	require.NoError(t, l.Sync())

	content, err := ioutil.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"Pump stopped"`)
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	_, err := NewLogger(config.LogSettings{Level: "loud"})
	assert.Error(t, err)
}
