package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("REMOTE_HOSTS", "example.com, data.example.com:8080")
	t.Setenv("HTTP_CONNECTION_TIMEOUT", "3s")
	t.Setenv("FORMAT_CSV_DELIMITER", ";")
	t.Setenv("MAX_HTTP_GET_REDIRECTS", "2")
	Init()

	c := Load()
	assert.Equal(t, []string{"example.com", "data.example.com:8080"}, c.RemoteHosts)
	assert.Empty(t, c.RemoteHostPatterns)
	assert.Equal(t, 3*time.Second, c.Settings.Timeouts.Connect)
	assert.Equal(t, 1800*time.Second, c.Settings.Timeouts.Send)
	assert.Equal(t, ';', c.Settings.CSVDelimiter)
	assert.Equal(t, 2, c.Settings.MaxRedirects)
	assert.Equal(t, 65505, c.Settings.MaxBlockSize)

	hf, err := c.HostFilter()
	require.NoError(t, err)
	assert.NoError(t, hf.CheckHost("example.com:443"))
	assert.Error(t, hf.CheckHost("other.com"))
}

func TestList(t *testing.T) {
	assert.Nil(t, List(""))
	assert.Equal(t, []string{"a", "b"}, List(" a,,b "))
}
