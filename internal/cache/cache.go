/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cache stores rendered cards keyed by a hash of everything that
// determines the output. Rendering is deterministic, so a hit is always
// byte-identical to a fresh render. A file path selects a local SQLite
// database; a postgres:// URL selects a shared PostgreSQL table.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	applog "quotecard/internal/log"
	"quotecard/internal/version"
)

// schemaVersion tracks the cache schema. The cache holds nothing that cannot
// be re-rendered, so an incompatible version simply drops the table.
const schemaVersion = 1

type Cache struct {
	db   *sql.DB
	d    dialect
	path string
	log  *slog.Logger
}

// Key hashes parts into a cache key. Each part is length-prefixed so that
// ("ab","c") and ("a","bc") never collide.
func Key(parts ...[]byte) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Open creates or opens the cache at path. SQLite files get WAL enabled;
// postgres:// and postgresql:// URLs are opened through pgx.
func Open(path string) (*Cache, error) {
	l := applog.WithOperation(applog.WithComponent("cache"), "open").With(slog.String("path", redact(path)))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path is required")
	}
	d := dialectFor(path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := d.open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(ctx, db, d); err != nil {
		_ = db.Close()
		l.Error("ensure cache schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("cache ready", slog.String("driver", d.driver))
	return &Cache{db: db, d: d, path: path, log: applog.WithComponent("cache")}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, d dialect) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (
		id         INTEGER PRIMARY KEY CHECK(id=1),
		schema     INTEGER NOT NULL,
		app        TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, d.bind(`INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`),
			schemaVersion, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	case cur != schemaVersion:
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS cards`); err != nil {
			return fmt.Errorf("drop stale cards table: %w", err)
		}
		fallthrough
	default:
		if _, err := db.ExecContext(ctx, d.bind(`UPDATE version SET schema=?, app=?, updated_at=? WHERE id=1`),
			schemaVersion, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			key        TEXT    PRIMARY KEY,
			png        `+d.blob+`   NOT NULL,
			size       BIGINT  NOT NULL,
			created_at TEXT    NOT NULL,
			last_used  BIGINT  NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_last_used ON cards(last_used);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create cards table: %w", err)
		}
	}
	return nil
}

// Path returns the database file location or URL, with any password hidden.
func (c *Cache) Path() string { return redact(c.path) }

func (c *Cache) Close() error { return c.db.Close() }

// nextUse is a logical clock: recency is ordered by write sequence, not wall time.
const nextUse = `(SELECT COALESCE(MAX(last_used), 0) + 1 FROM cards)`

// Get returns the stored PNG for key and marks it as recently used.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var png []byte
	err := c.db.QueryRowContext(ctx, c.d.bind(`SELECT png FROM cards WHERE key=?`), key).Scan(&png)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, c.d.bind(`UPDATE cards SET last_used=`+nextUse+` WHERE key=?`), key); err != nil {
		c.log.Warn("cache touch failed", slog.Any("err", err))
	}
	return png, true, nil
}

// Put stores png under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, png []byte) error {
	if key == "" || len(png) == 0 {
		return errors.New("cache put: empty key or value")
	}
	_, err := c.db.ExecContext(ctx, c.d.bind(`INSERT INTO cards (key, png, size, created_at, last_used)
		VALUES (?, ?, ?, ?, `+nextUse+`)
		ON CONFLICT(key) DO UPDATE SET png=excluded.png, size=excluded.size, last_used=excluded.last_used`),
		key, png, len(png), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Prune keeps the maxEntries most recently used entries and returns how many
// were removed. maxEntries <= 0 keeps everything.
func (c *Cache) Prune(ctx context.Context, maxEntries int) (int64, error) {
	if maxEntries <= 0 {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx, c.d.bind(`DELETE FROM cards WHERE key NOT IN (
		SELECT key FROM cards ORDER BY last_used DESC LIMIT ?)`), maxEntries)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.log.Debug("cache pruned", slog.Int64("removed", n), slog.Int("kept", maxEntries))
	}
	return n, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache len: %w", err)
	}
	return n, nil
}
