package postings_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/postings"
	"github.com/hupe1980/postings/blobstore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := postings.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, postings.DefaultSmallSetThreshold, cfg.SmallSetThreshold)
	assert.Equal(t, "go-json", cfg.Codec)
	assert.Equal(t, "zstd", cfg.Checkpoint.Compression)
	assert.Empty(t, cfg.Checkpoint.Store.Type)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
pageSize: 1024
smallSetThreshold: 8
frequencies: false
codec: json
logging:
  level: warn
  format: json
checkpoint:
  compression: lz4
  retention: 3
  store:
    type: local
    path: `+dir+`
    ttl: 5m
`)

	cfg, err := postings.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.PageSize)
	assert.Equal(t, 8, cfg.SmallSetThreshold)
	require.NotNil(t, cfg.Frequencies)
	assert.False(t, *cfg.Frequencies)
	assert.Nil(t, cfg.Acceleration)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Checkpoint.Retention)
	assert.Equal(t, 5*time.Minute, cfg.Checkpoint.Store.TTL)

	ctx := context.Background()
	opts, err := cfg.Options(ctx)
	require.NoError(t, err)

	idx, err := postings.Open(ctx, opts...)
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 1024, idx.Stats().PageSize)

	commit(t, idx, func(w *postings.Writer) {
		for id := int64(0); id < 9; id++ {
			require.NoError(t, w.Add("k", id, 1))
		}
	})
	info, err := idx.Checkpoint(ctx)
	require.NoError(t, err)

	names, err := blobstore.NewLocalStore(dir).List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, info.Name)
	assert.Contains(t, names, "CURRENT")
}

func TestConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	t.Setenv("POSTINGS_LOG_LEVEL", "debug")
	t.Setenv("POSTINGS_STORE_TYPE", "memory")
	t.Setenv("POSTINGS_RATE_LIMIT", "4096")

	cfg, err := postings.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Checkpoint.Store.Type)
	assert.Equal(t, int64(4096), cfg.Checkpoint.RateLimit)
}

func TestConfigErrors(t *testing.T) {
	_, err := postings.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = postings.LoadConfig(writeConfig(t, "pageSize: [1, 2"))
	require.Error(t, err)

	tests := []struct {
		name   string
		mutate func(*postings.Config)
	}{
		{"codec", func(c *postings.Config) { c.Codec = "msgpack" }},
		{"compression", func(c *postings.Config) { c.Checkpoint.Compression = "brotli" }},
		{"log level", func(c *postings.Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *postings.Config) { c.Logging.Format = "xml" }},
		{"store type", func(c *postings.Config) { c.Checkpoint.Store.Type = "ftp" }},
		{"local path", func(c *postings.Config) { c.Checkpoint.Store.Type = "local" }},
		{"s3 bucket", func(c *postings.Config) { c.Checkpoint.Store.Type = "s3" }},
		{"minio endpoint", func(c *postings.Config) {
			c.Checkpoint.Store.Type = "minio"
			c.Checkpoint.Store.Bucket = "b"
		}},
		{"redis addr", func(c *postings.Config) { c.Checkpoint.Store.Type = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := postings.DefaultConfig()
			tt.mutate(cfg)
			_, err := cfg.Options(context.Background())
			require.ErrorIs(t, err, postings.ErrInvalidArgument)
		})
	}
}
