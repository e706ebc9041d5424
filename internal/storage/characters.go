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
	"strings"
	"time"

	"ximacro/internal/domain"
)

// Characters returns all characters in the order they were added.
func (s *Store) Characters(ctx context.Context) ([]domain.Character, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, folder FROM characters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Character
	for rows.Next() {
		var c domain.Character
		if err := rows.Scan(&c.Name, &c.Folder); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Character returns the character called name.
func (s *Store) Character(ctx context.Context, name string) (domain.Character, error) {
	var c domain.Character
	err := s.db.QueryRowContext(ctx, `SELECT name, folder FROM characters WHERE name = ?`, name).Scan(&c.Name, &c.Folder)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("character %q: %w", name, ErrNotFound)
	}
	return c, err
}

// AddCharacter stores c. Name and folder are trimmed and must each be unique; on a
// duplicate nothing is stored and the error wraps domain.ErrValidation with a message
// fit for the user.
func (s *Store) AddCharacter(ctx context.Context, c domain.Character) error {
	c.Name, c.Folder = strings.TrimSpace(c.Name), strings.TrimSpace(c.Folder)
	if err := c.Validate(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM characters WHERE name = ?`, c.Name).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: Character already exists.", domain.ErrValidation)
	}
	var owner string
	err = tx.QueryRowContext(ctx, `SELECT name FROM characters WHERE folder = ?`, c.Folder).Scan(&owner)
	switch {
	case err == nil:
		return fmt.Errorf("%w: Folder already assigned to %s.", domain.ErrValidation, owner)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO characters(name, folder, added_at) VALUES(?, ?, ?)`,
		c.Name, c.Folder, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("character added", slog.String("name", c.Name), slog.String("folder", c.Folder))
	return nil
}

// RemoveCharacter deletes the character called name.
func (s *Store) RemoveCharacter(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM characters WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("remove character: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("character %q: %w", name, ErrNotFound)
	}
	s.log.Info("character removed", slog.String("name", name))
	return nil
}
