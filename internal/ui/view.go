/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"ximacro/internal/book"
	"ximacro/internal/bridge"
	"ximacro/internal/domain"
	"ximacro/internal/session"
	"ximacro/internal/storage"
	"ximacro/internal/workspace"
)

// slotCaption is the text of a macro grid button.
func slotCaption(index int, m domain.Macro) string {
	name := strings.TrimSpace(domain.DisplayText(m.Name))
	if name == "" {
		name = "-"
	}
	return domain.SlotLabel(index) + ": " + name
}

// pageTitle names a page by its position inside its book, 1-based.
func pageTitle(it domain.MacroItem) string {
	return fmt.Sprintf("Page %d", book.ExtractPageNumber(it.FileName)%book.PagesPerBook+1)
}

// bookTitle is the list entry for a book.
func bookTitle(b book.Book, name string) string {
	return fmt.Sprintf("%d. %s (%d)", b.Number(), name, len(b.Items))
}

// counter renders "n/max" for an entry.
func counter(s string, max int) string {
	return fmt.Sprintf("%d/%d", utf8.RuneCountInString(s), max)
}

// statusText turns a bridge progress event into the status bar text.
func statusText(p bridge.Progress) string {
	switch p.Phase {
	case bridge.PhaseStarted:
		return p.Message
	case bridge.PhaseFailed:
		return "Failed: " + errorMessage(p.Err)
	}
	return fmt.Sprintf("Done in %s", p.Elapsed.Round(10*time.Millisecond))
}

// errorMessage is the user-facing text for an error.
func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotConfigured):
		return "Select the game installation directory first."
	case errors.Is(err, domain.ErrTimeout):
		return "The macro program did not finish within the time limit."
	case errors.Is(err, domain.ErrEmptyOutput):
		return "The macro program returned nothing. Check the character folder."
	case errors.Is(err, domain.ErrParseFailure):
		return "The macro data could not be read."
	case errors.Is(err, domain.ErrProcessFailure):
		var be *bridge.Error
		if errors.As(err, &be) && strings.TrimSpace(be.Stderr) != "" {
			return "The macro program failed: " + strings.TrimSpace(be.Stderr)
		}
		return "The macro program failed."
	case errors.Is(err, domain.ErrInvalidPath):
		return "That directory does not exist or is not a game installation (no USER folder)."
	case errors.Is(err, domain.ErrReadFailure):
		return "The directory could not be read."
	case errors.Is(err, domain.ErrValidation):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			return msg[i+2:]
		}
		return msg
	case errors.Is(err, session.ErrCommitInFlight):
		return "A save is already running."
	case errors.Is(err, session.ErrSelfPaste):
		return "Cannot paste a page onto itself."
	case errors.Is(err, session.ErrClipboardEmpty):
		return "Nothing has been copied yet."
	case errors.Is(err, session.ErrNoSelection):
		return "Select a page and a macro first."
	case errors.Is(err, workspace.ErrNoCharacter):
		return "Select a character first."
	case errors.Is(err, workspace.ErrNotLoaded):
		return "The macros of this character are not loaded. Go back and open it again."
	case errors.Is(err, storage.ErrNotFound):
		return "Not found."
	}
	return err.Error()
}

// defaultCharacter suggests a name and folder for the add form: the first game
// character and the first user folder not yet assigned.
func defaultCharacter(game, folders []string, known []domain.Character) domain.Character {
	usedName := map[string]bool{}
	usedFolder := map[string]bool{}
	for _, c := range known {
		usedName[c.Name] = true
		usedFolder[c.Folder] = true
	}
	var out domain.Character
	for _, g := range game {
		if !usedName[g] {
			out.Name = g
			break
		}
	}
	for _, f := range folders {
		if !usedFolder[f] {
			out.Folder = f
			break
		}
	}
	return out
}

// hitLine is one row of the find dialog.
func hitLine(h storage.MacroHit) string {
	return fmt.Sprintf("Book %d  Page %d  %s  %s", h.Page/book.PagesPerBook+1, h.Page%book.PagesPerBook+1,
		domain.SlotLabel(h.Slot), h.Snippet)
}

// locateHit finds the list position of the book holding h and the full file name of its page.
func locateHit(books []book.Book, h storage.MacroHit) (int, string, bool) {
	want := h.Page / book.PagesPerBook
	for i, b := range books {
		if b.Index != want {
			continue
		}
		for _, it := range b.Items {
			if filepath.Base(strings.ReplaceAll(it.FileName, `\`, "/")) == h.File {
				return i, it.FileName, true
			}
		}
	}
	return -1, "", false
}
