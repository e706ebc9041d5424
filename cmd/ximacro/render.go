/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"ximacro/internal/backend"
	"ximacro/internal/book"
	"ximacro/internal/domain"
	"ximacro/internal/storage"
)

func newTable(w io.Writer, header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}

func renderCharacters(w io.Writer, chars []domain.Character) {
	if len(chars) == 0 {
		_, _ = fmt.Fprintln(w, "(no characters)")
		return
	}
	t := newTable(w, "Name", "Folder")
	for _, c := range chars {
		t.AppendRow(table.Row{c.Name, c.Folder})
	}
	t.Render()
}

func renderDiscovery(w io.Writer, game, folders []string) {
	t := newTable(w, "Kind", "Name")
	for _, g := range game {
		t.AppendRow(table.Row{"character (TEMP)", g})
	}
	for _, f := range folders {
		t.AppendRow(table.Row{"folder (USER)", f})
	}
	t.Render()
}

func renderBooks(w io.Writer, books []book.Book, name func(int) string) {
	if len(books) == 0 {
		_, _ = fmt.Fprintln(w, "(no macros)")
		return
	}
	t := newTable(w, "Book", "Name", "Pages")
	for _, b := range books {
		pages := make([]string, 0, len(b.Items))
		for _, it := range b.Items {
			pages = append(pages, fmt.Sprint(book.ExtractPageNumber(it.FileName)))
		}
		t.AppendRow(table.Row{b.Number(), name(b.Index), strings.Join(pages, " ")})
	}
	t.Render()
}

func renderMacros(w io.Writer, items []domain.MacroItem) {
	t := newTable(w, "File", "Slot", "Name", "Lines")
	for _, it := range items {
		file := filepath.Base(strings.ReplaceAll(it.FileName, `\`, "/"))
		for i, m := range it.Macros {
			if m.Name == "" && emptyLines(m) {
				continue
			}
			var lines []string
			for _, ln := range m.Lines {
				if ln.Data != "" {
					lines = append(lines, domain.DisplayText(ln.Data))
				}
			}
			t.AppendRow(table.Row{file, domain.SlotLabel(i), domain.DisplayText(m.Name), strings.Join(lines, "\n")})
		}
	}
	t.Render()
}

func emptyLines(m domain.Macro) bool {
	for _, ln := range m.Lines {
		if ln.Data != "" {
			return false
		}
	}
	return true
}

func renderSnapshots(w io.Writer, snaps []storage.Snapshot) {
	if len(snaps) == 0 {
		_, _ = fmt.Fprintln(w, "(no snapshots)")
		return
	}
	t := newTable(w, "ID", "Created", "Reason", "Pages", "Size")
	for _, s := range snaps {
		t.AppendRow(table.Row{s.ID[:8], s.CreatedAt.Local().Format(time.DateTime), s.Reason, s.Pages, s.RawSize})
	}
	t.Render()
}

func renderBackups(w io.Writer, backups []backend.Backup) {
	if len(backups) == 0 {
		_, _ = fmt.Fprintln(w, "(no backups)")
		return
	}
	t := newTable(w, "ID", "Created", "Host", "Character", "Pages")
	for _, b := range backups {
		t.AppendRow(table.Row{b.ID, b.CreatedAt.Local().Format(time.DateTime), b.Host, b.Character, b.Pages})
	}
	t.Render()
}

func renderHits(w io.Writer, hits []storage.MacroHit) {
	if len(hits) == 0 {
		_, _ = fmt.Fprintln(w, "(no matches)")
		return
	}
	t := newTable(w, "Book", "Page", "Slot", "Name", "Match")
	for _, h := range hits {
		t.AppendRow(table.Row{
			h.Page/book.PagesPerBook + 1,
			h.Page%book.PagesPerBook + 1,
			domain.SlotLabel(h.Slot),
			h.Name,
			h.Snippet,
		})
	}
	t.Render()
}
