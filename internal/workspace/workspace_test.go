/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ximacro/internal/domain"
	"ximacro/internal/export"
	"ximacro/internal/session"
	"ximacro/internal/storage"
	"ximacro/internal/watch"
)

type fakeBridge struct {
	mu      sync.Mutex
	install string
	items   []domain.MacroItem
	books   []string
	writes  [][]domain.MacroItem
	loadErr error

	// delay, then touch is written, as the import executable does
	delay   time.Duration
	touch   string
	block   chan struct{}
	started chan struct{}
}

func (f *fakeBridge) SetInstallPath(p string) { f.mu.Lock(); f.install = p; f.mu.Unlock() }

func (f *fakeBridge) ListDirectories(_ context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, domain.ErrInvalidPath
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (f *fakeBridge) LoadMacros(_ context.Context, folderPath string) ([]domain.MacroItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return domain.CloneItems(f.items), nil
}

func (f *fakeBridge) WriteMacros(_ context.Context, items []domain.MacroItem) (string, error) {
	f.mu.Lock()
	delay, touch, block, started := f.delay, f.touch, f.block, f.started
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	time.Sleep(delay)
	if touch != "" {
		if err := os.WriteFile(touch, []byte("macros"), 0o644); err != nil {
			return "", err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, domain.CloneItems(items))
	f.items = domain.CloneItems(items)
	return "ok", nil
}

func (f *fakeBridge) ReadBooks(context.Context, string) ([]string, error) {
	return append([]string(nil), f.books...), nil
}

func (f *fakeBridge) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeMirror struct {
	pushes int
	err    error
}

func (m *fakeMirror) Push(context.Context, string, string, []domain.MacroItem) (int64, error) {
	m.pushes++
	return int64(m.pushes), m.err
}

type fakeTelemetry struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeTelemetry) add(s string) { f.mu.Lock(); f.events = append(f.events, s); f.mu.Unlock() }
func (f *fakeTelemetry) MacrosLoaded(int, int) { f.add("loaded") }
func (f *fakeTelemetry) MacrosSaved(int, time.Duration, bool) { f.add("saved") }
func (f *fakeTelemetry) MacrosImported(int, string, bool) { f.add("imported") }
func (f *fakeTelemetry) MacrosExported(int, string) { f.add("exported") }

func page(folder, name string) domain.MacroItem {
	it := domain.MacroItem{FileName: filepath.Join(folder, name), FileSize: 7624}
	for i := 0; i < domain.MacrosPerItem; i++ {
		m := domain.Macro{Offset: "0x0010", Name: ""}
		for j := 0; j < domain.LinesPerMacro; j++ {
			m.Lines = append(m.Lines, domain.MacroLine{Offset: "0x0020"})
		}
		it.Macros = append(it.Macros, m)
	}
	return it
}

type fixture struct {
	ws      *Workspace
	bridge  *fakeBridge
	mirror  *fakeMirror
	tel     *fakeTelemetry
	store   *storage.Store
	install string
	folder  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	install := t.TempDir()
	folder := filepath.Join(install, UserDir, "0001-SE")
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(install, TempDir, "Bob"), 0o755))

	store, err := storage.Open(filepath.Join(t.TempDir(), storage.StateFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fb := &fakeBridge{
		items: []domain.MacroItem{page(folder, "mcr.dat"), page(folder, "mcr3.dat"), page(folder, "mcr12.dat")},
		books: []string{"Warrior", "Ninja"},
	}
	f := &fixture{bridge: fb, mirror: &fakeMirror{}, tel: &fakeTelemetry{}, store: store, install: install, folder: folder}
	ws, err := New(context.Background(), Options{
		Store: store, Bridge: fb, Mirror: f.mirror, Telemetry: f.tel, KeepSnapshots: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	f.ws = ws
	return f
}

func (f *fixture) selectBob(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ws.SetInstallPath(ctx, f.install))
	require.NoError(t, f.ws.AddCharacter(ctx, domain.Character{Name: "Bob", Folder: "0001-SE"}))
	_, err := f.ws.SelectCharacter(ctx, "Bob")
	require.NoError(t, err)
}

func (f *fixture) addAlice(t *testing.T) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.install, UserDir, "0002-SE"), 0o755))
	require.NoError(t, f.ws.AddCharacter(context.Background(), domain.Character{Name: "Alice", Folder: "0002-SE"}))
}

func TestEditAndSaveWritesOnce(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()

	require.NoError(t, f.ws.Load(ctx))
	books := f.ws.Books()
	require.Len(t, books, 2)
	assert.Equal(t, 0, books[0].Index)
	assert.Equal(t, 1, books[1].Index)
	assert.Equal(t, "Warrior", f.ws.BookName(0))
	assert.Equal(t, "Ninja", f.ws.BookName(1))

	s := f.ws.Session()
	target := books[0].Items[1].FileName
	require.NoError(t, s.SelectItem(target))
	require.True(t, s.SelectSlot(3))
	require.NoError(t, s.SetName("Provoke"))
	require.NoError(t, s.SetLine(0, "/ja Provoke <t>"))
	require.True(t, s.Dirty())

	_, err := f.ws.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.bridge.writeCount())
	assert.False(t, s.Dirty())

	written := f.bridge.writes[0]
	require.Len(t, written, 3)
	for _, it := range written {
		if it.FileName == target {
			assert.Equal(t, "Provoke", it.Macros[3].Name)
			assert.Equal(t, "/ja Provoke <t>", it.Macros[3].Lines[0].Data)
			assert.Equal(t, "0x0020", it.Macros[3].Lines[0].Offset)
		} else {
			assert.Empty(t, it.Macros[3].Name)
		}
	}

	snaps, err := f.ws.Snapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "pre-commit", snaps[0].Reason)
	assert.Equal(t, 1, f.mirror.pushes)
	assert.Contains(t, f.tel.events, "loaded")
	assert.Contains(t, f.tel.events, "saved")
}

func TestSetInstallPathRequiresUserDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.ws.SetInstallPath(ctx, t.TempDir())
	require.ErrorIs(t, err, domain.ErrInvalidPath)
	assert.Empty(t, f.ws.InstallPath())

	_, err = f.ws.ListGameCharacters(ctx)
	require.ErrorIs(t, err, domain.ErrNotConfigured)

	require.NoError(t, f.ws.SetInstallPath(ctx, f.install))
	assert.Equal(t, f.install, f.bridge.install)
	chars, err := f.ws.ListGameCharacters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, chars)
	folders, err := f.ws.ListUserFolders(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001-SE"}, folders)

	// survives a restart
	ws2, err := New(ctx, Options{Store: f.store, Bridge: &fakeBridge{}})
	require.NoError(t, err)
	assert.Equal(t, f.install, ws2.InstallPath())

	require.NoError(t, f.ws.ClearInstallPath(ctx))
	assert.Empty(t, f.ws.InstallPath())
}

func TestDuplicateCharacterRejected(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	err := f.ws.AddCharacter(ctx, domain.Character{Name: "Bob", Folder: "0002-SE"})
	require.ErrorIs(t, err, domain.ErrValidation)
	err = f.ws.AddCharacter(ctx, domain.Character{Name: "Alice", Folder: "0001-SE"})
	require.ErrorIs(t, err, domain.ErrValidation)
	chars, err := f.ws.Characters(ctx)
	require.NoError(t, err)
	assert.Len(t, chars, 1)
}

func TestRemoveSelectedCharacterDeselects(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))
	require.NoError(t, f.ws.RemoveCharacter(ctx, "Bob"))
	_, ok := f.ws.Character()
	assert.False(t, ok)
	_, err := f.ws.Save(ctx)
	require.ErrorIs(t, err, ErrNoCharacter)
}

func TestLoadFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	f.bridge.loadErr = domain.ErrTimeout
	err := f.ws.Load(context.Background())
	require.True(t, errors.Is(err, domain.ErrTimeout))
	assert.Empty(t, f.ws.Session().Items())
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	s := f.ws.Session()
	require.NoError(t, s.SelectItem(filepath.Join(f.folder, "mcr12.dat")))
	require.True(t, s.SelectSlot(0))
	require.NoError(t, s.SetName("Cure"))

	archive := filepath.Join(t.TempDir(), export.DefaultFileName+".lz4")
	require.NoError(t, f.ws.Export(archive))

	// a fresh load discards the unsaved edit
	require.NoError(t, f.ws.Load(ctx))
	preview, err := f.ws.PreviewImport(archive)
	require.NoError(t, err)
	require.Len(t, preview, 3)
	assert.Equal(t, 0, f.bridge.writeCount(), "preview must not write")

	_, err = f.ws.Import(ctx, archive)
	require.NoError(t, err)
	require.Equal(t, 1, f.bridge.writeCount())
	assert.Equal(t, "Cure", f.bridge.writes[0][2].Macros[0].Name)
	assert.False(t, s.Dirty())
	assert.Contains(t, f.tel.events, "imported")
}

func TestRestoreSnapshot(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	s := f.ws.Session()
	require.NoError(t, s.SelectItem(filepath.Join(f.folder, "mcr3.dat")))
	require.True(t, s.SelectSlot(5))
	require.NoError(t, s.SetName("Haste"))
	_, err := f.ws.Save(ctx)
	require.NoError(t, err)

	snaps, err := f.ws.Snapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	_, err = f.ws.RestoreSnapshot(ctx, snaps[0].ID[:8])
	require.NoError(t, err)
	require.Equal(t, 2, f.bridge.writeCount())
	assert.Empty(t, f.bridge.writes[1][1].Macros[5].Name)

	// the restore itself snapshotted the edited state; keep=2 bounds the list
	snaps, err = f.ws.Snapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestWriteBookSheet(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	require.NoError(t, f.ws.Load(context.Background()))
	var buf bytes.Buffer
	require.NoError(t, f.ws.WriteBookSheet(&buf, 1, false))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	require.ErrorIs(t, f.ws.WriteBookSheet(&buf, 7, false), domain.ErrValidation)
}

func TestSearchFollowsSavedCollection(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	hits, err := f.ws.Search(ctx, "provoke", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	s := f.ws.Session()
	require.NoError(t, s.SelectItem(f.ws.Books()[1].Items[0].FileName))
	require.True(t, s.SelectSlot(12))
	require.NoError(t, s.SetName("Provoke"))
	_, err = f.ws.Save(ctx)
	require.NoError(t, err)

	hits, err = f.ws.Search(ctx, "provoke", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mcr12.dat", hits[0].File)
	assert.Equal(t, 12, hits[0].Page)
	assert.Equal(t, 12, hits[0].Slot)
}

func TestSwitchCharacterDropsPreviousPages(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	f.addAlice(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	s := f.ws.Session()
	require.NoError(t, s.SelectItem(filepath.Join(f.folder, "mcr.dat")))
	require.NoError(t, s.SetName("Edited"))

	_, err := f.ws.SelectCharacter(ctx, "Alice")
	require.NoError(t, err)
	assert.Empty(t, f.ws.Books())
	assert.False(t, s.Dirty())

	_, err = f.ws.Save(ctx)
	require.ErrorIs(t, err, ErrNotLoaded)
	require.ErrorIs(t, f.ws.Export(filepath.Join(t.TempDir(), export.DefaultFileName)), ErrNotLoaded)
	var buf bytes.Buffer
	require.ErrorIs(t, f.ws.WriteBookSheet(&buf, 0, false), ErrNotLoaded)
	assert.Equal(t, 0, f.bridge.writeCount())

	snaps, err := f.ws.Snapshots(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, snaps)
	assert.Zero(t, f.mirror.pushes)
}

func TestFailedLoadAfterSwitchBlocksWrites(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	f.addAlice(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	_, err := f.ws.SelectCharacter(ctx, "Alice")
	require.NoError(t, err)
	f.bridge.loadErr = domain.ErrTimeout
	require.ErrorIs(t, f.ws.Load(ctx), domain.ErrTimeout)

	assert.Empty(t, f.ws.Books())
	_, err = f.ws.Save(ctx)
	require.ErrorIs(t, err, ErrNotLoaded)
	assert.Equal(t, 0, f.bridge.writeCount())

	// a successful reload makes the character writable again
	f.bridge.loadErr = nil
	require.NoError(t, f.ws.Load(ctx))
	_, err = f.ws.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.bridge.writeCount())
}

func TestImportWithoutLoad(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))
	archive := filepath.Join(t.TempDir(), export.DefaultFileName)
	require.NoError(t, f.ws.Export(archive))

	f.addAlice(t)
	_, err := f.ws.SelectCharacter(ctx, "Alice")
	require.NoError(t, err)
	_, err = f.ws.Import(ctx, archive)
	require.NoError(t, err)
	require.Equal(t, 1, f.bridge.writeCount())
	alice := filepath.Join(f.install, UserDir, "0002-SE")
	for _, it := range f.bridge.writes[0] {
		assert.Equal(t, alice, filepath.Dir(it.FileName))
	}
}

func TestSlowSaveIsNotReportedAsExternalChange(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	f.ws.wdeb = 50 * time.Millisecond
	f.ws.grace = 100 * time.Millisecond
	f.bridge.delay = 300 * time.Millisecond
	f.bridge.touch = filepath.Join(f.folder, "mcr.dat")

	changes := make(chan int, 4)
	require.NoError(t, f.ws.Watch(ctx, func(c watch.Change) { changes <- len(c.Files) }))

	_, err := f.ws.Save(ctx)
	require.NoError(t, err)
	select {
	case n := <-changes:
		require.FailNow(t, "own save reported as external change", "%d files", n)
	case <-time.After(400 * time.Millisecond):
	}

	// the grace period is over, so other writers are reported again
	require.NoError(t, os.WriteFile(filepath.Join(f.folder, "mcr1.dat"), []byte("x"), 0o644))
	select {
	case n := <-changes:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no notification for an external write")
	}
}

func TestConcurrentSaveKeepsOneSnapshot(t *testing.T) {
	f := newFixture(t)
	f.selectBob(t)
	ctx := context.Background()
	require.NoError(t, f.ws.Load(ctx))

	s := f.ws.Session()
	require.NoError(t, s.SelectItem(filepath.Join(f.folder, "mcr.dat")))
	require.NoError(t, s.SetName("Provoke"))

	f.bridge.block = make(chan struct{})
	f.bridge.started = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.ws.Save(ctx)
		done <- err
	}()
	<-f.bridge.started

	_, err := f.ws.Save(ctx)
	require.ErrorIs(t, err, session.ErrCommitInFlight)
	// an edit while the write runs is not part of what was saved
	require.NoError(t, s.SetName("Later"))
	close(f.bridge.block)
	require.NoError(t, <-done)

	snaps, err := f.ws.Snapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	hits, err := f.ws.Search(ctx, "provoke", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	hits, err = f.ws.Search(ctx, "later", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.True(t, s.Dirty())
}
