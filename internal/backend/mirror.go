/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package backend mirrors saved macro collections to a PostgreSQL database, so a
// character's macros can be recovered on another machine.
package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ximacro/internal/domain"
	applog "ximacro/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoBackup is returned when a folder has no mirrored collection.
var ErrNoBackup = errors.New("no remote backup")

// Backup describes one mirrored collection.
type Backup struct {
	ID        int64
	Host      string
	Folder    string
	Character string
	Pages     int
	CreatedAt time.Time
}

// Mirror is a connection to the remote backup database.
type Mirror struct {
	db   *sql.DB
	host string
	log  *slog.Logger
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Mirror, error) {
	l := applog.WithOperation(applog.WithComponent("backend"), "open")
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db, l); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	host, _ := os.Hostname()
	return &Mirror{db: db, host: host, log: applog.WithComponent("backend")}, nil
}

// Close closes the connection.
func (m *Mirror) Close() error { return m.db.Close() }

// Push stores a copy of items for folder.
func (m *Mirror) Push(ctx context.Context, folder, character string, items []domain.MacroItem) (int64, error) {
	payload, err := domain.EncodeMacroItems(items)
	if err != nil {
		return 0, err
	}
	var id int64
	err = m.db.QueryRowContext(ctx,
		`INSERT INTO macro_backups(host, folder, character, pages, payload) VALUES($1,$2,$3,$4,$5) RETURNING id`,
		m.host, folder, character, len(items), string(payload)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("push backup: %w", err)
	}
	m.log.Info("backup pushed", slog.String("folder", folder), slog.Int64("id", id), slog.Int("pages", len(items)))
	return id, nil
}

// List returns up to limit backups of folder from this host, newest first.
func (m *Mirror) List(ctx context.Context, folder string, limit int) ([]Backup, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, host, folder, character, pages, created_at FROM macro_backups
		 WHERE host=$1 AND folder=$2 ORDER BY created_at DESC, id DESC LIMIT $3`, m.host, folder, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.Host, &b.Folder, &b.Character, &b.Pages, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Latest returns the newest backup of folder from this host.
func (m *Mirror) Latest(ctx context.Context, folder string) (Backup, []domain.MacroItem, error) {
	var b Backup
	var payload string
	err := m.db.QueryRowContext(ctx,
		`SELECT id, host, folder, character, pages, created_at, payload::text FROM macro_backups
		 WHERE host=$1 AND folder=$2 ORDER BY created_at DESC, id DESC LIMIT 1`, m.host, folder).
		Scan(&b.ID, &b.Host, &b.Folder, &b.Character, &b.Pages, &b.CreatedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil, ErrNoBackup
	}
	if err != nil {
		return b, nil, err
	}
	items, err := domain.ParseMacroItems([]byte(payload))
	if err != nil {
		return b, nil, err
	}
	return b, items, nil
}

func applyMigrations(ctx context.Context, db *sql.DB, l *slog.Logger) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1,$2)`, version, fname); err != nil {
			return fmt.Errorf("record %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	parts := strings.SplitN(path.Base(name), "_", 2)
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
