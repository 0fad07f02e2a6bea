package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "s3cret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, DriverMemory, cfg.Session.Store)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 8, cfg.Session.Workers)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.True(t, cfg.Engine.ResetUnlinkedDeviceStatus)
	assert.Equal(t, 30*time.Second, cfg.Report.CacheTTL)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, "paywatch", cfg.Mongo.Database)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":                   "s3cret",
		"STORE_DRIVER":                 "memory",
		"SESSION_STORE":                "redis",
		"SESSION_IDLE_TIMEOUT":         "90s",
		"RESET_UNLINKED_DEVICE_STATUS": "false",
		"TIMEZONE":                     "Asia/Ho_Chi_Minh",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, DriverRedis, cfg.Session.Store)
	assert.Equal(t, 90*time.Second, cfg.Session.IdleTimeout)
	assert.False(t, cfg.Engine.ResetUnlinkedDeviceStatus)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Ho_Chi_Minh", loc.String())
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {},
		"unknown store":   {"JWT_SECRET": "x", "STORE_DRIVER": "postgres"},
		"unknown session": {"JWT_SECRET": "x", "SESSION_STORE": "disk"},
		"zero idle":       {"JWT_SECRET": "x", "SESSION_IDLE_TIMEOUT": "0s"},
		"bad timezone":    {"JWT_SECRET": "x", "TIMEZONE": "Mars/Olympus"},
		"zero burst":      {"JWT_SECRET": "x", "RATE_LIMIT_BURST": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_ReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("PAYWATCH_TEST_A=from-file\nPAYWATCH_TEST_B=from-file\n"), 0o600))
	t.Setenv("PAYWATCH_TEST_B", "from-env")

	_, err := Load(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("PAYWATCH_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("PAYWATCH_TEST_B"))
	os.Unsetenv("PAYWATCH_TEST_A")
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
