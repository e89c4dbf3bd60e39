package db

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const (
	appDirName = "sensor_monitor"
	dbFileName = "sensor_monitor.db"
)

// DefaultSQLitePath returns the per-user location of the local database:
// $XDG_DATA_HOME or ~/.local/share on Linux, the user config dir elsewhere,
// and the working directory as a last resort.
func DefaultSQLitePath() string {
	if dir := dataLocalDir(); dir != "" {
		return filepath.Join(dir, appDirName, dbFileName)
	}
	return dbFileName
}

func dataLocalDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if runtime.GOOS == "linux" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share")
		}
		return ""
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return ""
}

// OpenSQLite opens the local database file, applies pragmas and creates the
// schema. The parent directory is created when missing. Use ":memory:" in
// tests.
func OpenSQLite(logger *zap.Logger, path string) (*sqlite.Conn, error) {
	if path == "" {
		return nil, fmt.Errorf("[DATABASE] sqlite path is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("[DATABASE] failed to create data dir: %w", err)
		}
	}

	logger.Info("opening local database", zap.String("path", path))

	conn, err := sqlite.OpenConn(path)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("[DATABASE] %s: %w", pragma, err)
		}
	}

	for _, stmt := range SQLiteSchema() {
		if err := sqlitex.ExecuteTransient(conn, stmt, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("[DATABASE] failed to create schema: %w", err)
		}
	}

	logger.Info("local database ready", zap.String("path", path))
	return conn, nil
}
