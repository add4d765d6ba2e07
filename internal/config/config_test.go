package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesStorageDefaults(t *testing.T) {
	t.Setenv("PICVAULT_STORAGE_OWNER", "octo")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendGitHub, cfg.Storage.Backend)
	assert.Equal(t, "picvault-public", cfg.Storage.RepoPrefix)
	assert.Equal(t, int64(800*mebibyte), cfg.Storage.SoftThreshold)
	assert.Equal(t, int64(1024*mebibyte), cfg.Storage.HardCap)
	assert.Equal(t, 10, cfg.Storage.MaxRepos)
	assert.Equal(t, 30*time.Second, cfg.Storage.CacheTTL)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PICVAULT_STORAGE_OWNER", "octo")
	t.Setenv("PICVAULT_STORAGE_BACKEND", "MinIO")
	t.Setenv("PICVAULT_MAX_REPOS", "3")
	t.Setenv("PICVAULT_CACHE_TTL", "5s")
	t.Setenv("MINIO_USE_SSL", "yes")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMinIO, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Storage.MaxRepos)
	assert.Equal(t, 5*time.Second, cfg.Storage.CacheTTL)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoadRejectsInvalidStorage(t *testing.T) {
	cases := map[string]map[string]string{
		"missing owner":   {},
		"unknown backend": {"PICVAULT_STORAGE_OWNER": "octo", "PICVAULT_STORAGE_BACKEND": "ftp"},
		"soft above hard": {
			"PICVAULT_STORAGE_OWNER":       "octo",
			"PICVAULT_REPO_SOFT_THRESHOLD": "2000",
			"PICVAULT_REPO_HARD_CAP":       "1000",
		},
		"vault is a storage repo": {
			"PICVAULT_STORAGE_OWNER": "octo",
			"PICVAULT_REPO_PREFIX":   "pics",
			"PICVAULT_VAULT_REPO":    "pics-3",
		},
		"vault is the bare prefix": {
			"PICVAULT_STORAGE_OWNER": "octo",
			"PICVAULT_REPO_PREFIX":   "pics",
			"PICVAULT_VAULT_REPO":    "pics",
		},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("PICVAULT_STORAGE_OWNER", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadAcceptsVaultSharingPrefixOutsideConvention(t *testing.T) {
	t.Setenv("PICVAULT_STORAGE_OWNER", "octo")
	t.Setenv("PICVAULT_REPO_PREFIX", "pics")
	t.Setenv("PICVAULT_VAULT_REPO", "pics-vault")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pics-vault", cfg.Storage.VaultRepo)
}
