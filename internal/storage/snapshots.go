/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ximacro/internal/domain"
)

// Snapshot describes a stored copy of a character's macro collection.
type Snapshot struct {
	ID        string
	Folder    string
	Reason    string
	CreatedAt time.Time
	Pages     int
	RawSize   int
}

// tsLayout has a fixed width so created_at sorts as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(id, folder, reason, created_at, pages, raw_size, blob) VALUES (?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT id, folder, reason, created_at, pages, raw_size FROM snapshots WHERE folder = ? ORDER BY created_at DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const selectSnapshotSQL = `SELECT id, folder, reason, created_at, pages, raw_size, blob FROM snapshots WHERE id = ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE folder = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE folder = ? ORDER BY created_at DESC LIMIT ?
)`

// SaveSnapshot stores items for folder as LZ4-compressed JSON.
func (s *Store) SaveSnapshot(ctx context.Context, folder, reason string, items []domain.MacroItem) (Snapshot, error) {
	raw, err := domain.EncodeMacroItems(items)
	if err != nil {
		return Snapshot{}, err
	}
	blob, err := CompressLZ4(raw)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compress snapshot: %w", err)
	}
	snap := Snapshot{
		ID:        uuid.NewString(),
		Folder:    folder,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
		Pages:     len(items),
		RawSize:   len(raw),
	}
	if _, err := s.db.ExecContext(ctx, insertSnapshotSQL, snap.ID, folder, reason,
		snap.CreatedAt.Format(tsLayout), snap.Pages, snap.RawSize, blob); err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	s.log.Debug("snapshot saved", slog.String("folder", folder), slog.String("id", snap.ID),
		slog.Int("raw", len(raw)), slog.Int("stored", len(blob)))
	return snap, nil
}

// ListSnapshots returns up to limit snapshots of folder, newest first.
func (s *Store) ListSnapshots(ctx context.Context, folder string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listSnapshotsSQL, folder, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var ts string
		if err := rows.Scan(&snap.ID, &snap.Folder, &snap.Reason, &ts, &snap.Pages, &snap.RawSize); err != nil {
			return nil, err
		}
		snap.CreatedAt, _ = time.Parse(tsLayout, ts)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest snapshot of folder.
func (s *Store) LatestSnapshot(ctx context.Context, folder string) (Snapshot, error) {
	list, err := s.ListSnapshots(ctx, folder, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(list) == 0 {
		return Snapshot{}, fmt.Errorf("snapshot of %s: %w", folder, ErrNotFound)
	}
	return list[0], nil
}

// LoadSnapshot returns a snapshot and its decoded collection. The id may be a unique
// prefix, as shown in listings.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (Snapshot, []domain.MacroItem, error) {
	id, err := s.resolveID(ctx, id)
	if err != nil {
		return Snapshot{}, nil, err
	}
	var snap Snapshot
	var ts string
	var blob []byte
	err = s.db.QueryRowContext(ctx, selectSnapshotSQL, id).
		Scan(&snap.ID, &snap.Folder, &snap.Reason, &ts, &snap.Pages, &snap.RawSize, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, nil, err
	}
	snap.CreatedAt, _ = time.Parse(tsLayout, ts)
	raw, err := DecompressLZ4(blob)
	if err != nil {
		return snap, nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	items, err := domain.ParseMacroItems(raw)
	if err != nil {
		return snap, nil, err
	}
	return snap, items, nil
}

func (s *Store) resolveID(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM snapshots WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("snapshot %s: %w", prefix, ErrNotFound)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("snapshot id %q is ambiguous", prefix)
}

// PruneSnapshots keeps the newest keep snapshots of folder and deletes the rest.
func (s *Store) PruneSnapshots(ctx context.Context, folder string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneOldSnapshotsSQL, folder, folder, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
