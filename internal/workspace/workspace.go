/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package workspace holds the application state shared by the CLI and the desktop UI:
// the install path, the known characters, the selected character and its edit session.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ximacro/internal/book"
	"ximacro/internal/domain"
	"ximacro/internal/export"
	applog "ximacro/internal/log"
	"ximacro/internal/session"
	"ximacro/internal/storage"
	"ximacro/internal/watch"
)

// Directory names under the install path.
const (
	UserDir = "USER"
	TempDir = "TEMP"
)

var (
	// ErrNoCharacter is returned by operations that need a selected character.
	ErrNoCharacter = errors.New("no character selected")
	// ErrNotLoaded is returned by operations on the selected character's collection
	// before it was read from disk.
	ErrNotLoaded = errors.New("macros of the selected character are not loaded")
)

// defaultWriteTimeout matches the bridge's default executable timeout.
const defaultWriteTimeout = 30 * time.Second

// writeGrace keeps the watcher muted after the import executable returned, for
// events the OS delivers late.
const writeGrace = 2 * time.Second

// Bridge is the part of *bridge.Bridge the workspace drives.
type Bridge interface {
	SetInstallPath(p string)
	ListDirectories(ctx context.Context, path string) ([]string, error)
	LoadMacros(ctx context.Context, folderPath string) ([]domain.MacroItem, error)
	WriteMacros(ctx context.Context, items []domain.MacroItem) (string, error)
	ReadBooks(ctx context.Context, folderName string) ([]string, error)
}

// Mirror receives a copy of every committed collection.
type Mirror interface {
	Push(ctx context.Context, folder, character string, items []domain.MacroItem) (int64, error)
}

// Telemetry receives usage events.
type Telemetry interface {
	MacrosLoaded(pages, books int)
	MacrosSaved(pages int, took time.Duration, ok bool)
	MacrosImported(pages int, format string, restore bool)
	MacrosExported(pages int, format string)
}

// Options configures a Workspace. Store and Bridge are required.
type Options struct {
	Store     *storage.Store
	Bridge    Bridge
	Mirror    Mirror
	Telemetry Telemetry
	Clipboard session.Clipboard
	// KeepSnapshots bounds the pre-commit snapshots per folder; 0 keeps all.
	KeepSnapshots int
	// WatchDebounce is passed to the folder watcher.
	WatchDebounce time.Duration
	// WriteTimeout is the longest an import run takes; the watcher is muted that long
	// while saving. Zero means 30s.
	WriteTimeout time.Duration
}

type Workspace struct {
	store  *storage.Store
	bridge Bridge
	mirror Mirror
	tel    Telemetry
	sess   *session.Session
	keep   int
	wdeb   time.Duration
	mute   time.Duration
	grace  time.Duration
	log    *slog.Logger

	mu          sync.Mutex
	installPath string
	character   *domain.Character
	bookNames   []string
	// owner is the folder whose collection the session holds, "" when none.
	owner string
	// loaded is the collection as last read from or written to disk.
	loaded  []domain.MacroItem
	watcher *watch.Watcher
}

// New restores the saved install path and returns a workspace with no character selected.
func New(ctx context.Context, opt Options) (*Workspace, error) {
	if opt.Store == nil || opt.Bridge == nil {
		return nil, errors.New("workspace: store and bridge are required")
	}
	w := &Workspace{
		store:  opt.Store,
		bridge: opt.Bridge,
		mirror: opt.Mirror,
		tel:    opt.Telemetry,
		keep:   opt.KeepSnapshots,
		wdeb:   opt.WatchDebounce,
		mute:   opt.WriteTimeout,
		grace:  writeGrace,
		log:    applog.WithComponent("workspace"),
	}
	if w.mute <= 0 {
		w.mute = defaultWriteTimeout
	}
	var sopts []session.Option
	if opt.Clipboard != nil {
		sopts = append(sopts, session.WithClipboard(opt.Clipboard))
	}
	w.sess = session.New(writerFunc(w.write), sopts...)

	p, err := w.store.InstallPath(ctx)
	if err != nil {
		return nil, fmt.Errorf("read install path: %w", err)
	}
	w.installPath = p
	w.bridge.SetInstallPath(p)
	return w, nil
}

type writerFunc func(ctx context.Context, items []domain.MacroItem) (string, error)

func (f writerFunc) WriteMacros(ctx context.Context, items []domain.MacroItem) (string, error) {
	return f(ctx, items)
}

// write is the session's writer. The folder watcher is muted for the whole import run
// and a grace period after it, so the executable's own writes are not reported as
// external changes.
func (w *Workspace) write(ctx context.Context, items []domain.MacroItem) (string, error) {
	w.suppress(w.mute + w.grace)
	defer w.suppress(w.grace)
	return w.bridge.WriteMacros(ctx, items)
}

func (w *Workspace) suppress(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		w.watcher.Suppress(d)
	}
}

// Session returns the edit session of the selected character.
func (w *Workspace) Session() *session.Session { return w.sess }

// Store returns the state database.
func (w *Workspace) Store() *storage.Store { return w.store }

// InstallPath returns the game install directory, or "".
func (w *Workspace) InstallPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.installPath
}

// SetInstallPath stores p as the game install directory. p must contain a USER directory.
func (w *Workspace) SetInstallPath(ctx context.Context, p string) error {
	p = filepath.Clean(p)
	st, err := os.Stat(filepath.Join(p, UserDir))
	if err != nil || !st.IsDir() {
		return fmt.Errorf("%w: %s has no %s directory", domain.ErrInvalidPath, p, UserDir)
	}
	if err := w.store.SetInstallPath(ctx, p); err != nil {
		return err
	}
	w.mu.Lock()
	w.installPath = p
	w.mu.Unlock()
	w.bridge.SetInstallPath(p)
	w.log.Info("install path set", slog.String("path", p))
	return nil
}

// ClearInstallPath forgets the install directory and deselects the character.
func (w *Workspace) ClearInstallPath(ctx context.Context) error {
	if err := w.store.SetInstallPath(ctx, ""); err != nil {
		return err
	}
	w.mu.Lock()
	w.installPath = ""
	w.mu.Unlock()
	w.bridge.SetInstallPath("")
	w.Deselect()
	w.log.Info("install path cleared")
	return nil
}

// Reset wipes the stored install path and characters.
func (w *Workspace) Reset(ctx context.Context) error {
	if err := w.store.Clear(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.installPath = ""
	w.mu.Unlock()
	w.bridge.SetInstallPath("")
	w.Deselect()
	w.log.Info("stored data cleared")
	return nil
}

func (w *Workspace) subdir(name string) (string, error) {
	p := w.InstallPath()
	if p == "" {
		return "", domain.ErrNotConfigured
	}
	return filepath.Join(p, name), nil
}

// ListGameCharacters returns the character directories the game created under TEMP.
func (w *Workspace) ListGameCharacters(ctx context.Context) ([]string, error) {
	dir, err := w.subdir(TempDir)
	if err != nil {
		return nil, err
	}
	return w.bridge.ListDirectories(ctx, dir)
}

// ListUserFolders returns the per-character folders under USER.
func (w *Workspace) ListUserFolders(ctx context.Context) ([]string, error) {
	dir, err := w.subdir(UserDir)
	if err != nil {
		return nil, err
	}
	return w.bridge.ListDirectories(ctx, dir)
}

// Characters returns the stored characters in the order they were added.
func (w *Workspace) Characters(ctx context.Context) ([]domain.Character, error) {
	return w.store.Characters(ctx)
}

// AddCharacter stores a new character alias.
func (w *Workspace) AddCharacter(ctx context.Context, c domain.Character) error {
	return w.store.AddCharacter(ctx, c)
}

// RemoveCharacter deletes a character alias; it is deselected first when selected.
func (w *Workspace) RemoveCharacter(ctx context.Context, name string) error {
	if c, ok := w.Character(); ok && c.Name == name {
		w.Deselect()
	}
	return w.store.RemoveCharacter(ctx, name)
}

// SelectCharacter makes the stored character called name current. Its macros are not
// loaded until LoadMacros or Load.
func (w *Workspace) SelectCharacter(ctx context.Context, name string) (domain.Character, error) {
	c, err := w.store.Character(ctx, name)
	if err != nil {
		return c, err
	}
	w.Deselect()
	w.mu.Lock()
	w.character = &c
	w.mu.Unlock()
	w.log.Info("character selected", slog.String("name", c.Name), slog.String("folder", c.Folder))
	return c, nil
}

// Deselect leaves the selected character: the watcher stops and the session drops its
// collection.
func (w *Workspace) Deselect() {
	w.mu.Lock()
	wt := w.watcher
	w.watcher = nil
	w.character = nil
	w.bookNames = nil
	w.owner = ""
	w.loaded = nil
	w.mu.Unlock()
	if wt != nil {
		_ = wt.Close()
	}
	w.sess.Leave()
}

// Character returns the selected character.
func (w *Workspace) Character() (domain.Character, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.character == nil {
		return domain.Character{}, false
	}
	return *w.character, true
}

func (w *Workspace) selected() (domain.Character, string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.character == nil {
		return domain.Character{}, "", ErrNoCharacter
	}
	if w.installPath == "" {
		return domain.Character{}, "", domain.ErrNotConfigured
	}
	return *w.character, filepath.Join(w.installPath, UserDir, w.character.Folder), nil
}

// loadedSelection is selected, failing with ErrNotLoaded until the session holds the
// selected character's collection.
func (w *Workspace) loadedSelection() (domain.Character, string, error) {
	c, folder, err := w.selected()
	if err != nil {
		return c, folder, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owner != c.Folder {
		return domain.Character{}, "", ErrNotLoaded
	}
	return c, folder, nil
}

// FolderPath returns the USER folder of the selected character.
func (w *Workspace) FolderPath() (string, error) {
	_, p, err := w.selected()
	return p, err
}

// LoadBooks reads the book names of the selected character.
func (w *Workspace) LoadBooks(ctx context.Context) ([]string, error) {
	c, _, err := w.selected()
	if err != nil {
		return nil, err
	}
	names, err := w.bridge.ReadBooks(applog.WithFolder(ctx, c.Folder), c.Folder)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.bookNames = names
	w.mu.Unlock()
	return names, nil
}

// LoadMacros reads the selected character's collection into the session.
func (w *Workspace) LoadMacros(ctx context.Context) ([]domain.MacroItem, error) {
	c, folder, err := w.selected()
	if err != nil {
		return nil, err
	}
	items, err := w.bridge.LoadMacros(applog.WithFolder(ctx, c.Folder), folder)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	if w.character == nil || w.character.Folder != c.Folder {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: selection changed while loading %s", ErrNotLoaded, c.Name)
	}
	w.sess.Load(items)
	w.owner = c.Folder
	w.loaded = domain.CloneItems(items)
	w.mu.Unlock()
	w.index(ctx, c.Folder, items)
	if w.tel != nil {
		w.tel.MacrosLoaded(len(items), len(book.Bucket(items)))
	}
	return items, nil
}

// Load reads book names and macros concurrently.
func (w *Workspace) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := w.LoadBooks(gctx)
		return err
	})
	g.Go(func() error {
		_, err := w.LoadMacros(gctx)
		return err
	})
	return g.Wait()
}

// Books buckets the session's collection into books.
func (w *Workspace) Books() []book.Book { return w.sess.Books() }

// BookName returns the display name of the book at index.
func (w *Workspace) BookName(index int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return book.Name(index, w.bookNames)
}

// Save writes the whole collection through the import executable. The collection as it
// was on disk is snapshotted first, and the result is pushed to the mirror afterwards.
// Mirror failures are logged only.
func (w *Workspace) Save(ctx context.Context) (string, error) {
	c, _, err := w.loadedSelection()
	if err != nil {
		return "", err
	}
	ctx = applog.WithFolder(ctx, c.Folder)
	l := applog.WithOperation(w.log, "save")

	snapshot := func(ctx context.Context) error {
		w.mu.Lock()
		prev := w.loaded
		w.mu.Unlock()
		if len(prev) == 0 {
			return nil
		}
		if _, err := w.store.SaveSnapshot(ctx, c.Folder, "pre-commit", prev); err != nil {
			return fmt.Errorf("snapshot before save: %w", err)
		}
		if w.keep > 0 {
			if _, err := w.store.PruneSnapshots(ctx, c.Folder, w.keep); err != nil {
				l.WarnContext(ctx, "prune snapshots failed", slog.Any("err", err))
			}
		}
		return nil
	}

	start := time.Now()
	out, items, err := w.sess.CommitWith(ctx, snapshot)
	if w.tel != nil && items != nil {
		w.tel.MacrosSaved(len(items), time.Since(start), err == nil)
	}
	if err != nil {
		return out, err
	}
	w.mu.Lock()
	if w.owner == c.Folder {
		w.loaded = items
	}
	w.mu.Unlock()
	w.index(ctx, c.Folder, items)

	if w.mirror != nil {
		if v, err := w.mirror.Push(ctx, c.Folder, c.Name, items); err != nil {
			l.WarnContext(ctx, "mirror push failed", slog.Any("err", err))
		} else {
			l.DebugContext(ctx, "mirrored", slog.Int64("version", v))
		}
	}
	return out, nil
}

// index refreshes the search rows of folder. Failures only cost search results.
func (w *Workspace) index(ctx context.Context, folder string, items []domain.MacroItem) {
	if err := w.store.IndexMacros(ctx, folder, items); err != nil {
		applog.WithOperation(w.log, "index").WarnContext(ctx, "search index update failed", slog.Any("err", err))
	}
}

// Search finds macros of the selected character whose name or lines contain every
// term of text. The index reflects the collection as last loaded or saved.
func (w *Workspace) Search(ctx context.Context, text string, limit int) ([]storage.MacroHit, error) {
	c, _, err := w.selected()
	if err != nil {
		return nil, err
	}
	return w.store.SearchMacros(ctx, storage.MacroQuery{Folder: c.Folder, Text: text, Limit: limit})
}

// Export writes the selected character's collection to an archive file.
func (w *Workspace) Export(path string) error {
	if _, _, err := w.loadedSelection(); err != nil {
		return err
	}
	items := w.sess.Items()
	if err := export.WriteArchive(path, items); err != nil {
		return err
	}
	if w.tel != nil {
		w.tel.MacrosExported(len(items), formatName(path))
	}
	return nil
}

// PreviewImport reads and validates an archive and points its pages at the selected
// character's folder. Nothing is changed.
func (w *Workspace) PreviewImport(path string) ([]domain.MacroItem, error) {
	_, folder, err := w.selected()
	if err != nil {
		return nil, err
	}
	items, err := export.ReadArchive(path)
	if err != nil {
		return nil, err
	}
	return export.Retarget(items, folder), nil
}

// Import replaces every macro of the selected character with the archive at path and
// writes them.
func (w *Workspace) Import(ctx context.Context, path string) (string, error) {
	items, err := w.PreviewImport(path)
	if err != nil {
		return "", err
	}
	if err := w.adopt(items); err != nil {
		return "", err
	}
	out, err := w.Save(ctx)
	if err == nil && w.tel != nil {
		w.tel.MacrosImported(len(items), formatName(path), false)
	}
	return out, err
}

// Snapshots lists the selected character's snapshots, newest first.
func (w *Workspace) Snapshots(ctx context.Context, limit int) ([]storage.Snapshot, error) {
	c, _, err := w.selected()
	if err != nil {
		return nil, err
	}
	return w.store.ListSnapshots(ctx, c.Folder, limit)
}

// RestoreSnapshot writes a stored snapshot of the selected character back to disk.
func (w *Workspace) RestoreSnapshot(ctx context.Context, id string) (string, error) {
	c, folder, err := w.selected()
	if err != nil {
		return "", err
	}
	snap, items, err := w.store.LoadSnapshot(ctx, id)
	if err != nil {
		return "", err
	}
	if snap.Folder != c.Folder {
		return "", fmt.Errorf("%w: snapshot %s belongs to folder %s", domain.ErrValidation, snap.ID, snap.Folder)
	}
	return w.restore(ctx, export.Retarget(items, folder), "snapshot")
}

// RestoreItems writes a collection taken from elsewhere, such as the remote mirror,
// over the selected character's macros.
func (w *Workspace) RestoreItems(ctx context.Context, items []domain.MacroItem, source string) (string, error) {
	_, folder, err := w.selected()
	if err != nil {
		return "", err
	}
	if err := domain.ValidateItems(items); err != nil {
		return "", err
	}
	return w.restore(ctx, export.Retarget(items, folder), source)
}

func (w *Workspace) restore(ctx context.Context, items []domain.MacroItem, source string) (string, error) {
	if err := w.adopt(items); err != nil {
		return "", err
	}
	out, err := w.Save(ctx)
	if err == nil && w.tel != nil {
		w.tel.MacrosImported(len(items), source, true)
	}
	return out, err
}

// adopt replaces the session's collection with items of the selected character as an
// unsaved edit. It works without a prior load since every page is replaced.
func (w *Workspace) adopt(items []domain.MacroItem) error {
	c, _, err := w.selected()
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sess.Replace(items)
	w.owner = c.Folder
	return nil
}

// WriteBookSheet renders the book at index as a printable PDF.
func (w *Workspace) WriteBookSheet(out io.Writer, index int, compact bool) error {
	c, _, err := w.loadedSelection()
	if err != nil {
		return err
	}
	for _, b := range w.Books() {
		if b.Index == index {
			return export.BookSheetPDF(out, b, w.BookName(index), export.PDFOptions{Character: c.Name, Compact: compact})
		}
	}
	return fmt.Errorf("%w: no pages in book %d", domain.ErrValidation, index+1)
}

// Watch starts reporting external changes to the selected character's folder. A running
// watcher is replaced. It stops on Deselect, Close or when ctx ends.
func (w *Workspace) Watch(ctx context.Context, notify func(watch.Change)) error {
	_, folder, err := w.selected()
	if err != nil {
		return err
	}
	wt, err := watch.Start(ctx, folder, w.wdeb, notify)
	if err != nil {
		return err
	}
	w.mu.Lock()
	old := w.watcher
	w.watcher = wt
	w.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Close stops the watcher. The store is owned by the caller.
func (w *Workspace) Close() error {
	w.mu.Lock()
	wt := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if wt != nil {
		return wt.Close()
	}
	return nil
}

func formatName(path string) string {
	if export.FormatFor(path) == export.FormatJSONLZ4 {
		return "json.lz4"
	}
	return "json"
}
