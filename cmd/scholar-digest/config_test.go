// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "scholar-digest.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("scholar-digest")
		v.AddConfigPath(t.TempDir())
	}
	setDefaults(v, types.DefaultConfig())
	return v
}

func TestDecodeConfig_Defaults(t *testing.T) {
	c, err := decodeConfig(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultConfig(), c)
}

func TestDecodeConfig_File(t *testing.T) {
	v := newViper(t, `
mail:
  source: gmail
  sender: alerts@example.com
  max_retries: 2
  timeout: 5s
extract:
  denylist: [scholar_settings]
store:
  path: /tmp/digest.db
pipeline:
  strategy: link
  chunk_days: 14
  chunk_delay: 500ms
metrics:
  textfile: /var/lib/node_exporter/scholar_digest.prom
`)
	c, err := decodeConfig(v)
	require.NoError(t, err)

	assert.Equal(t, types.SourceGmail, c.Mail.Source)
	assert.Equal(t, "alerts@example.com", c.Mail.Sender)
	assert.Equal(t, 2, c.Mail.MaxRetries)
	assert.Equal(t, 5*time.Second, c.Mail.Timeout)
	assert.Equal(t, types.DefaultUserAgent, c.Mail.UserAgent)
	assert.Equal(t, []string{"scholar_settings"}, c.Extract.Denylist)
	assert.Equal(t, types.DefaultSentinel, c.Extract.Sentinel)
	assert.Equal(t, "/tmp/digest.db", c.Store.Path)
	assert.Equal(t, "link", c.Pipeline.Strategy)
	assert.Equal(t, 14, c.Pipeline.ChunkDays)
	assert.Equal(t, 500*time.Millisecond, c.Pipeline.ChunkDelay)
	assert.Equal(t, types.DefaultLookbackDays, c.Pipeline.LookbackDays)
	assert.Equal(t, "/var/lib/node_exporter/scholar_digest.prom", c.Metrics.Textfile)
}

func TestDecodeConfig_Env(t *testing.T) {
	t.Setenv("SCHOLAR_DIGEST_STORE_PATH", "/srv/digest.db")
	t.Setenv("SCHOLAR_DIGEST_PIPELINE_LOOKBACK_DAYS", "3")

	c, err := decodeConfig(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "/srv/digest.db", c.Store.Path)
	assert.Equal(t, 3, c.Pipeline.LookbackDays)
}

func TestDecodeConfig_UnknownSource(t *testing.T) {
	_, err := decodeConfig(newViper(t, "mail:\n  source: imap\n"))
	assert.ErrorContains(t, err, "unknown mail source")
}

func TestParseDay(t *testing.T) {
	d, err := parseDay("2025-01-13")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDay("13/01/2025")
	assert.Error(t, err)
}
