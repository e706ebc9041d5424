/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session holds the in-memory edit state of one character's macro collection:
// selection, clipboards, the dirty flag and commits through a Writer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ximacro/internal/book"
	"ximacro/internal/domain"
	applog "ximacro/internal/log"
	"ximacro/internal/undo"
)

var (
	// ErrUnknownItem is returned when a file name matches no page of the collection.
	ErrUnknownItem = errors.New("unknown macro page")
	// ErrNoSelection is returned by edits that need a selected page or slot.
	ErrNoSelection = errors.New("no macro selected")
	// ErrClipboardEmpty is returned by a paste before anything was copied.
	ErrClipboardEmpty = errors.New("clipboard is empty")
	// ErrSelfPaste rejects pasting a page onto the page it was copied from.
	ErrSelfPaste = errors.New("cannot paste a page onto itself")
	// ErrCommitInFlight is returned while another commit holds the write slot.
	ErrCommitInFlight = errors.New("a save is already in progress")
	// ErrNoWriter is returned by Commit on a session built without a Writer.
	ErrNoWriter = errors.New("session has no writer")
)

// Writer persists a full collection. The bridge implements it.
type Writer interface {
	WriteMacros(ctx context.Context, items []domain.MacroItem) (string, error)
}

// Clipboard mirrors copied macros to the system clipboard.
type Clipboard interface {
	WriteAll(text string) error
}

// Option configures a Session.
type Option func(*Session)

// WithClipboard mirrors CopyCurrentMacro to c.
func WithClipboard(c Clipboard) Option { return func(s *Session) { s.clip = c } }

// WithUndo sets the undo history limits.
func WithUndo(cfg undo.Config) Option { return func(s *Session) { s.undo = undo.NewManager(cfg) } }

// Session is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	writer Writer
	clip   Clipboard
	undo   *undo.Manager
	log    *slog.Logger

	items   []domain.MacroItem
	current int // index into items, -1 when none
	slot    int // -1 when none

	copiedMacro *domain.Macro
	copiedPage  *domain.MacroItem

	dirty      bool
	rev        uint64
	committing bool
}

// New returns an empty session writing through w.
func New(w Writer, opts ...Option) *Session {
	s := &Session{writer: w, current: -1, slot: -1, log: applog.WithComponent("session")}
	for _, o := range opts {
		o(s)
	}
	if s.undo == nil {
		s.undo = undo.NewManager(undo.Config{MaxPerPage: 50})
	}
	return s
}

// Load replaces the collection and resets selection, dirty flag and undo history.
// Clipboards are kept.
func (s *Session) Load(items []domain.MacroItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = domain.CloneItems(items)
	s.current, s.slot = -1, -1
	s.dirty = false
	s.rev++
	s.undo.Reset()
}

// Replace swaps in a whole new collection as an unsaved edit, as done by import and
// snapshot restore. The selection survives when its page still exists.
func (s *Session) Replace(items []domain.MacroItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sel string
	if s.current >= 0 {
		sel = s.items[s.current].FileName
	}
	s.items = domain.CloneItems(items)
	s.current = s.indexLocked(sel)
	if s.current < 0 {
		s.slot = -1
	}
	s.undo.Reset()
	s.markDirtyLocked()
}

func (s *Session) indexLocked(fileName string) int {
	if fileName == "" {
		return -1
	}
	for i := range s.items {
		if s.items[i].FileName == fileName {
			return i
		}
	}
	return -1
}

func (s *Session) markDirtyLocked() {
	s.dirty = true
	s.rev++
}

// SelectItem makes the page with fileName current and selects slot 0.
func (s *Session) SelectItem(fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(fileName)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, fileName)
	}
	s.current, s.slot = i, 0
	return nil
}

// SelectSlot selects a slot of the current page. It does nothing and returns false
// when no page is selected or index is out of range.
func (s *Session) SelectSlot(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || index < 0 || index >= len(s.items[s.current].Macros) {
		return false
	}
	s.slot = index
	return true
}

// Selection returns the current page file name and slot ("" and -1 when none).
func (s *Session) Selection() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return "", -1
	}
	return s.items[s.current].FileName, s.slot
}

// CurrentItem returns a copy of the selected page.
func (s *Session) CurrentItem() (domain.MacroItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return domain.MacroItem{}, false
	}
	return s.items[s.current].Clone(), true
}

// CurrentMacro returns a copy of the selected macro.
func (s *Session) CurrentMacro() (domain.Macro, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.currentMacroLocked()
	if m == nil {
		return domain.Macro{}, false
	}
	return m.Clone(), true
}

func (s *Session) currentMacroLocked() *domain.Macro {
	if s.current < 0 || s.slot < 0 || s.slot >= len(s.items[s.current].Macros) {
		return nil
	}
	return &s.items[s.current].Macros[s.slot]
}

// recordLocked saves the current page state for undo before it changes.
func (s *Session) recordLocked() {
	it := s.items[s.current]
	blob, err := json.Marshal(it)
	if err != nil {
		s.log.Warn("undo snapshot failed", slog.String("page", it.FileName), slog.Any("err", err))
		return
	}
	s.undo.Record(undo.Snapshot{Page: it.FileName, Blob: blob, TS: time.Now()})
}

// overwriteLocked copies name and line text of src into dst, keeping dst's offsets.
func overwriteLocked(dst *domain.Macro, src domain.Macro) {
	dst.Name = src.Name
	for i := range dst.Lines {
		if i < len(src.Lines) {
			dst.Lines[i].Data = src.Lines[i].Data
		} else {
			dst.Lines[i].Data = ""
		}
	}
}

// MutateCurrentMacro replaces the name and line text of the selected macro.
// Oversized fields are rejected, never truncated. Offsets stay those of the slot.
func (s *Session) MutateCurrentMacro(m domain.Macro) error {
	if err := domain.ValidateMacro(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.currentMacroLocked()
	if cur == nil {
		return ErrNoSelection
	}
	s.recordLocked()
	overwriteLocked(cur, m)
	s.markDirtyLocked()
	return nil
}

// SetName changes only the name of the selected macro.
func (s *Session) SetName(name string) error {
	m, ok := s.CurrentMacro()
	if !ok {
		return ErrNoSelection
	}
	m.Name = name
	return s.MutateCurrentMacro(m)
}

// SetLine changes one line of the selected macro.
func (s *Session) SetLine(i int, data string) error {
	m, ok := s.CurrentMacro()
	if !ok {
		return ErrNoSelection
	}
	if i < 0 || i >= len(m.Lines) {
		return fmt.Errorf("%w: line %d out of range", domain.ErrValidation, i+1)
	}
	m.Lines[i].Data = data
	return s.MutateCurrentMacro(m)
}

// CopyCurrentMacro stores a copy of the selected macro. The macro clipboard is not tied
// to a character or book. With a Clipboard configured the macro is also placed on the
// system clipboard as JSON; failures there are only logged.
func (s *Session) CopyCurrentMacro() error {
	s.mu.Lock()
	cur := s.currentMacroLocked()
	if cur == nil {
		s.mu.Unlock()
		return ErrNoSelection
	}
	c := cur.Clone()
	s.copiedMacro = &c
	clip := s.clip
	s.mu.Unlock()

	if clip != nil {
		b, err := domain.EncodeMacroIndent(c)
		if err == nil {
			err = clip.WriteAll(string(b))
		}
		if err != nil {
			s.log.Warn("system clipboard write failed", slog.Any("err", err))
		}
	}
	return nil
}

// PasteMacro overwrites the selected macro with the copied one, keeping the slot's offsets.
func (s *Session) PasteMacro() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copiedMacro == nil {
		return ErrClipboardEmpty
	}
	cur := s.currentMacroLocked()
	if cur == nil {
		return ErrNoSelection
	}
	s.recordLocked()
	overwriteLocked(cur, *s.copiedMacro)
	s.markDirtyLocked()
	return nil
}

// CopyCurrentPage stores a copy of the whole selected page.
func (s *Session) CopyCurrentPage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return ErrNoSelection
	}
	c := s.items[s.current].Clone()
	s.copiedPage = &c
	return nil
}

// PastePage overwrites every slot of the selected page with the copied page.
// Pasting onto the page it was copied from is rejected.
func (s *Session) PastePage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copiedPage == nil {
		return ErrClipboardEmpty
	}
	if s.current < 0 {
		return ErrNoSelection
	}
	dst := &s.items[s.current]
	if dst.FileName == s.copiedPage.FileName {
		return ErrSelfPaste
	}
	// a page paste restarts the page's history
	s.undo.ClearPage(dst.FileName)
	s.recordLocked()
	for i := range dst.Macros {
		if i < len(s.copiedPage.Macros) {
			overwriteLocked(&dst.Macros[i], s.copiedPage.Macros[i])
		}
	}
	s.markDirtyLocked()
	return nil
}

// CopiedMacro returns the macro clipboard.
func (s *Session) CopiedMacro() (domain.Macro, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copiedMacro == nil {
		return domain.Macro{}, false
	}
	return s.copiedMacro.Clone(), true
}

// CopiedPage returns the page clipboard.
func (s *Session) CopiedPage() (domain.MacroItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.copiedPage == nil {
		return domain.MacroItem{}, false
	}
	return s.copiedPage.Clone(), true
}

// ClearMacroClipboard empties the macro clipboard. The system clipboard is left alone.
func (s *Session) ClearMacroClipboard() {
	s.mu.Lock()
	s.copiedMacro = nil
	s.mu.Unlock()
}

// ClearPageClipboard empties the page clipboard.
func (s *Session) ClearPageClipboard() {
	s.mu.Lock()
	s.copiedPage = nil
	s.mu.Unlock()
}

// Undo restores the selected page to its state before the last edit.
func (s *Session) Undo() bool { return s.step(s.undo.Undo) }

// Redo reapplies the last undone edit of the selected page.
func (s *Session) Redo() bool { return s.step(s.undo.Redo) }

func (s *Session) step(fn func(string, []byte) (undo.Snapshot, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return false
	}
	it := &s.items[s.current]
	cur, err := json.Marshal(it)
	if err != nil {
		return false
	}
	snap, ok := fn(it.FileName, cur)
	if !ok {
		return false
	}
	var prev domain.MacroItem
	if err := json.Unmarshal(snap.Blob, &prev); err != nil {
		s.log.Warn("undo snapshot unreadable", slog.String("page", it.FileName), slog.Any("err", err))
		return false
	}
	*it = prev
	s.markDirtyLocked()
	return true
}

// CanUndo reports whether the selected page has undo history.
func (s *Session) CanUndo() bool {
	fn, _ := s.Selection()
	return fn != "" && s.undo.CanUndo(fn)
}

// CanRedo reports whether the selected page has redo history.
func (s *Session) CanRedo() bool {
	fn, _ := s.Selection()
	return fn != "" && s.undo.CanRedo(fn)
}

// Dirty reports unsaved edits.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Committing reports whether a commit is in flight.
func (s *Session) Committing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committing
}

// Leave is called when the character screen closes: the collection, selection, dirty
// flag and undo history are dropped. Clipboards are kept.
func (s *Session) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.rev++
	s.current, s.slot = -1, -1
	s.dirty = false
	s.undo.Reset()
}

// Items returns a deep copy of the collection.
func (s *Session) Items() []domain.MacroItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

// Books buckets the current collection into books.
func (s *Session) Books() []book.Book { return book.Bucket(s.Items()) }

// Commit writes the entire collection through the Writer. The dirty flag is cleared on
// success unless the collection changed while the write was running. On failure the
// dirty flag stays set and the writer's error is returned as is.
func (s *Session) Commit(ctx context.Context) (string, error) {
	out, _, err := s.CommitWith(ctx, nil)
	return out, err
}

// CommitWith is Commit with a prepare step. The commit slot is taken first, so a
// concurrent commit fails with ErrCommitInFlight before its prepare runs. A prepare
// error aborts without writing. The collection handed to the Writer is returned.
func (s *Session) CommitWith(ctx context.Context, prepare func(context.Context) error) (string, []domain.MacroItem, error) {
	s.mu.Lock()
	if s.writer == nil {
		s.mu.Unlock()
		return "", nil, ErrNoWriter
	}
	if s.committing {
		s.mu.Unlock()
		return "", nil, ErrCommitInFlight
	}
	s.committing = true
	s.mu.Unlock()

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			s.mu.Lock()
			s.committing = false
			s.mu.Unlock()
			return "", nil, err
		}
	}

	s.mu.Lock()
	items := domain.CloneItems(s.items)
	rev := s.rev
	s.mu.Unlock()

	l := applog.WithOperation(s.log, "commit").With(slog.Int("pages", len(items)))
	start := time.Now()
	out, err := s.writer.WriteMacros(ctx, items)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
	if err != nil {
		l.Error("commit failed", slog.Any("err", err), slog.Duration("took", time.Since(start)))
		return out, items, err
	}
	if s.rev == rev {
		s.dirty = false
	}
	l.Info("committed", slog.Duration("took", time.Since(start)), slog.Bool("still_dirty", s.dirty))
	if l.Enabled(ctx, slog.LevelDebug) {
		size, pages, snaps := s.undo.Stats()
		l.Debug("undo history", slog.Int("bytes", size), slog.Int("pages", pages), slog.Int("snapshots", snaps))
	}
	return out, items, nil
}
