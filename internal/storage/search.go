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
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"ximacro/internal/book"
	"ximacro/internal/domain"
	applog "ximacro/internal/log"
)

// MacroQuery searches the macro text index of one character folder.
// Text is split into terms; every term must match as a word prefix in the name or a line.
type MacroQuery struct {
	Folder string
	Text   string
	Limit  int
}

// MacroHit is one matching macro slot.
// Snippet marks the matched terms with [ ].
type MacroHit struct {
	File    string
	Page    int
	Slot    int
	Name    string
	Snippet string
}

// language=SQL
// dialect=SQLite
const insertMacroFTSSQL = `INSERT INTO macro_fts(folder, file, page, slot, name, body) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const searchMacroFTSSQL = `SELECT file, page, slot, name, snippet(macro_fts, 5, '[', ']', '...', 8)
FROM macro_fts
WHERE macro_fts MATCH ? AND folder = ?
ORDER BY rank, page, slot
LIMIT ?`

// IndexMacros replaces the search rows of folder with the non-empty slots of items.
func (s *Store) IndexMacros(ctx context.Context, folder string, items []domain.MacroItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM macro_fts WHERE folder = ?`, folder); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertMacroFTSSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	rows := 0
	for _, it := range items {
		file := filepath.Base(strings.ReplaceAll(it.FileName, `\`, "/"))
		page := book.ExtractPageNumber(it.FileName)
		for slot, m := range it.Macros {
			name := domain.DisplayText(m.Name)
			body := macroBody(m)
			if strings.TrimSpace(name) == "" && body == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, folder, file, page, slot, name, body); err != nil {
				return fmt.Errorf("index %s slot %d: %w", file, slot, err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	applog.WithOperation(s.log, "index").DebugContext(ctx, "macros indexed",
		slog.String("folder", folder), slog.Int("rows", rows))
	return nil
}

func macroBody(m domain.Macro) string {
	var lines []string
	for _, ln := range m.Lines {
		if d := domain.DisplayText(ln.Data); strings.TrimSpace(d) != "" {
			lines = append(lines, d)
		}
	}
	return strings.Join(lines, "\n")
}

// SearchMacros runs q against the index. An empty Text yields no hits.
func (s *Store) SearchMacros(ctx context.Context, q MacroQuery) ([]MacroHit, error) {
	match := matchExpr(q.Text)
	if match == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, searchMacroFTSSQL, match, q.Folder, limit)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []MacroHit
	for rows.Next() {
		var h MacroHit
		if err := rows.Scan(&h.File, &h.Page, &h.Slot, &h.Name, &h.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// matchExpr quotes every term so macro syntax like /ma or <t> is never read as FTS5 operators.
func matchExpr(text string) string {
	var terms []string
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, `"`)
		if f == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}
