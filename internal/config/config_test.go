package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ARTFROST1/AdygGIS-sub000/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, uint(3), cfg.API.MaxTries)
	assert.Equal(t, 500*time.Millisecond, cfg.API.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.API.BackoffMax)
	assert.Equal(t, 50, cfg.Sync.ChunkSize)
	require.NotNil(t, cfg.Sync.Tombstones)
	assert.True(t, *cfg.Sync.Tombstones)
	assert.Equal(t, 5*time.Minute, cfg.Sync.ReviewStaleness)
	assert.Equal(t, 3*time.Second, cfg.Sync.ResetDelay)
	assert.Equal(t, 60*time.Second, cfg.Session.RefreshMargin)
	assert.False(t, cfg.Reactions.RollbackOnFailure)
	assert.NotEmpty(t, cfg.Database.DataDir)
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
api:
  baseUrl: https://api.adyggis.example
  maxTries: 5
  backoffBase: 1s
  backoffMax: 30s
database:
  dataDir: /var/cache/adyggis
sync:
  chunkSize: 25
  tombstones: false
  reviewStaleness: 10m
session:
  refreshMargin: 2m
reactions:
  rollbackOnFailure: true
connectivity:
  probeAddress: api.adyggis.example:443
`)

	cfg, err := config.Load(config.WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, "https://api.adyggis.example", cfg.API.BaseURL)
	assert.Equal(t, uint(5), cfg.API.MaxTries)
	assert.Equal(t, time.Second, cfg.API.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.API.BackoffMax)
	assert.Equal(t, "/var/cache/adyggis", cfg.Database.DataDir)
	assert.Equal(t, 25, cfg.Sync.ChunkSize)
	require.NotNil(t, cfg.Sync.Tombstones)
	assert.False(t, *cfg.Sync.Tombstones, "an explicit false must not be overwritten by the default")
	assert.Equal(t, 10*time.Minute, cfg.Sync.ReviewStaleness)
	assert.Equal(t, 2*time.Minute, cfg.Session.RefreshMargin)
	assert.True(t, cfg.Reactions.RollbackOnFailure)
	assert.Equal(t, "api.adyggis.example:443", cfg.Connectivity.ProbeAddress)

	// Unset tunables still receive defaults.
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
api:
  baseUrl: http://localhost:8080
`)

	cfg, err := config.Load(config.WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, uint(3), cfg.API.MaxTries)
	assert.Equal(t, 50, cfg.Sync.ChunkSize)
	require.NotNil(t, cfg.Sync.Tombstones)
	assert.True(t, *cfg.Sync.Tombstones)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "api: [not a mapping")

	_, err := config.Load(config.WithConfigPath(path))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *config.Config) { c.API.BaseURL = "" },
			wantErr: "api.baseUrl is required",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *config.Config) { c.API.BaseURL = "ftp://api.example" },
			wantErr: "must use http or https",
		},
		{
			name: "backoff base above max",
			mutate: func(c *config.Config) {
				c.API.BackoffBase = time.Minute
				c.API.BackoffMax = time.Second
			},
			wantErr: "backoffBase must not exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.API.BaseURL = "https://api.example"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.API.BaseURL = "https://api.example"

	require.NoError(t, cfg.Validate())
}
