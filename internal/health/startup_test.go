// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliostream/folio/internal/config"
)

func baseStartupConfig() config.AppConfig {
	var cfg config.AppConfig
	cfg.Server.Listen = ":8080"
	cfg.Server.MetricsListen = ":9090"
	cfg.Server.APIToken = "secret"
	cfg.Store.Backend = "memory"
	cfg.Cache.Backend = "none"
	return cfg
}

func TestPerformStartupChecks_Passes(t *testing.T) {
	cfg := baseStartupConfig()
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}

func TestPerformStartupChecks_BadListenAddr(t *testing.T) {
	cfg := baseStartupConfig()
	cfg.Server.Listen = "no-port-here"
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg = baseStartupConfig()
	cfg.Server.MetricsListen = ":99999"
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}

func TestPerformStartupChecks_StoreDir(t *testing.T) {
	cfg := baseStartupConfig()
	cfg.Store.Backend = "sqlite"
	cfg.Store.Dir = filepath.Join(t.TempDir(), "missing")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Store.Dir = t.TempDir()
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}

func TestPerformStartupChecks_StoreDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	cfg := baseStartupConfig()
	cfg.Store.Backend = "badger"
	cfg.Store.Dir = path
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))
}

func TestPerformStartupChecks_CacheDir(t *testing.T) {
	cfg := baseStartupConfig()
	cfg.Cache.Backend = "disk"
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "missing")
	assert.Error(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Cache.Dir = t.TempDir()
	assert.NoError(t, PerformStartupChecks(context.Background(), cfg))
}
