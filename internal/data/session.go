package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"closet-web/internal/biz"

	_ "modernc.org/sqlite"
)

// LocalCacheRepo SQLite 实现的本地缓存（按设备隔离，无过期）
type LocalCacheRepo struct {
	db *sql.DB
}

// NewSQLiteLocalCache 创建 SQLite 本地缓存
func NewSQLiteLocalCache(dbPath string) (*LocalCacheRepo, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS local_cache (
			device_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (device_id, key)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local_cache table: %w", err)
	}

	return &LocalCacheRepo{db: db}, nil
}

// Scope 返回某个设备的缓存视图
func (r *LocalCacheRepo) Scope(deviceID string) biz.LocalCache {
	return &deviceCache{db: r.db, deviceID: deviceID}
}

// Count 统计某个设备的条目数
func (r *LocalCacheRepo) Count(ctx context.Context, deviceID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM local_cache WHERE device_id = ?", deviceID).Scan(&n)
	return n, err
}

// Close 关闭数据库连接
func (r *LocalCacheRepo) Close() error {
	return r.db.Close()
}

type deviceCache struct {
	db       *sql.DB
	deviceID string
}

func (c *deviceCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM local_cache WHERE device_id = ? AND key = ?",
		c.deviceID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read local cache: %w", err)
	}
	return value, true, nil
}

func (c *deviceCache) Set(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO local_cache (device_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (device_id, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, c.deviceID, key, value)
	if err != nil {
		return fmt.Errorf("failed to write local cache: %w", err)
	}
	return nil
}

func (c *deviceCache) Remove(ctx context.Context, key string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM local_cache WHERE device_id = ? AND key = ?",
		c.deviceID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to remove local cache entry: %w", err)
	}
	return nil
}
