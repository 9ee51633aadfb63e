// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/foliostream/folio/internal/config"
	"github.com/foliostream/folio/internal/log"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	// 1. Listen addresses
	if err := checkListenAddr(logger, "server.listen", cfg.Server.Listen); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if err := checkListenAddr(logger, "server.metricsListen", cfg.Server.MetricsListen); err != nil {
		return fmt.Errorf("metrics listen address check failed: %w", err)
	}

	// 2. Data directories
	if err := checkDataDirs(logger, cfg); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	// 3. Operational warnings (non-fatal)
	warnOperationalRisks(logger, cfg)

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, field, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q for %s: %w", addr, field, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid port %q in %s address %q", port, field, addr)
	}
	logger.Info().Str("addr", addr).Str("field", field).Msg("✓ Listen address is valid")
	return nil
}

func checkDataDirs(logger zerolog.Logger, cfg config.AppConfig) error {
	if cfg.Store.Backend == "sqlite" || cfg.Store.Backend == "badger" {
		if err := checkDirWritable(cfg.Store.Dir); err != nil {
			return fmt.Errorf("store directory (%s backend): %w", cfg.Store.Backend, err)
		}
		logger.Info().Str("path", cfg.Store.Dir).Msg("✓ Store directory is writable")
	}
	if cfg.Cache.Backend == "disk" {
		if err := checkDirWritable(cfg.Cache.Dir); err != nil {
			return fmt.Errorf("cache directory: %w", err)
		}
		logger.Info().Str("path", cfg.Cache.Dir).Msg("✓ Cache directory is writable")
	}
	return nil
}

func checkDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check write permissions by creating a temp file
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)
	return nil
}

func warnOperationalRisks(logger zerolog.Logger, cfg config.AppConfig) {
	if cfg.Server.APIToken == "" {
		logger.Warn().
			Msg("API token not configured; session management endpoints will reject all requests")
	}

	if strings.EqualFold(cfg.Store.Backend, "memory") {
		logger.Warn().
			Str("store_backend", cfg.Store.Backend).
			Msg("in-memory session store; session history is lost across restarts")
	}

	for _, dir := range []string{cfg.Store.Dir, cfg.Cache.Dir} {
		if dir == "" {
			continue
		}
		tempDir := filepath.Clean(os.TempDir())
		cleaned := filepath.Clean(dir)
		if tempDir != "." && (cleaned == tempDir || strings.HasPrefix(cleaned, tempDir+string(filepath.Separator))) {
			logger.Warn().
				Str("path", dir).
				Msg("data directory is under temp; persisted data may be lost on reboot")
		}
	}
}
