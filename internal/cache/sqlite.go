package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"articleforge/internal/core"
	"articleforge/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCache persists records in a local SQLite database
type SQLiteCache struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLite opens (or creates) the cache database in dataDir
func NewSQLite(dataDir string) (*SQLiteCache, error) {
	if dataDir == "" {
		dataDir = ".articleforge"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "articleforge.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &SQLiteCache{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := c.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return c, nil
}

// initialize creates the enhancements table
func (c *SQLiteCache) initialize() error {
	// expires_at is unix nanoseconds; 0 never expires
	enhancementsTable := `
	CREATE TABLE IF NOT EXISTS enhancements (
		key TEXT PRIMARY KEY,
		record TEXT NOT NULL,
		model TEXT,
		prompt_version TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);`

	if _, err := c.db.Exec(enhancementsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if _, err := c.db.Exec(`CREATE INDEX IF NOT EXISTS idx_enhancements_expires ON enhancements (expires_at)`); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Close closes the database connection
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func (c *SQLiteCache) Name() string { return BackendSQLite }

// Get returns the unexpired record stored under key
func (c *SQLiteCache) Get(ctx context.Context, key string) (*core.EnhancementRecord, bool) {
	query := `
	SELECT record FROM enhancements
	WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`

	var raw string
	err := c.db.QueryRowContext(ctx, query, key, c.now().UnixNano()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false // Cache miss
	}
	if err != nil {
		logger.Warn("SQLite cache read failed", "key", key, "error", err.Error())
		return nil, false
	}

	var record core.EnhancementRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		logger.Warn("SQLite cache entry is corrupt", "key", key, "error", err.Error())
		return nil, false
	}
	return &record, true
}

// Put stores record under key
func (c *SQLiteCache) Put(ctx context.Context, key string, record *core.EnhancementRecord, ttl time.Duration) {
	if !cacheable(record) {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		logger.Warn("Failed to encode cache record", "key", key, "error", err.Error())
		return
	}

	now := c.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).UnixNano()
	}

	query := `
	INSERT OR REPLACE INTO enhancements
	(key, record, model, prompt_version, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := c.db.ExecContext(ctx, query, key, string(data), record.Model, record.PromptVersion, now.UnixNano(), expires); err != nil {
		logger.Warn("SQLite cache write failed", "key", key, "error", err.Error())
	}
}

// Stats returns statistics about the cache
func (c *SQLiteCache) Stats(ctx context.Context) (*core.CacheStats, error) {
	stats := &core.CacheStats{Backend: BackendSQLite}

	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM enhancements").Scan(&stats.EntryCount); err != nil {
		return nil, fmt.Errorf("failed to get count: %w", err)
	}
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enhancements WHERE expires_at != 0 AND expires_at <= ?",
		c.now().UnixNano()).Scan(&stats.ExpiredCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired count: %w", err)
	}

	if fileInfo, err := os.Stat(c.path); err == nil {
		stats.CacheSize = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}

	return stats, nil
}

// Clear removes all cached data
func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM enhancements"); err != nil {
		return fmt.Errorf("failed to clear enhancements table: %w", err)
	}

	// Vacuum to reclaim space
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

// Cleanup removes expired entries and reports how many were deleted
func (c *SQLiteCache) Cleanup(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM enhancements WHERE expires_at != 0 AND expires_at <= ?",
		c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired entries: %w", err)
	}
	return res.RowsAffected()
}
