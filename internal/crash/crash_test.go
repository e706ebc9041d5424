/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ximacro/internal/domain"
	"ximacro/internal/export"
)

type fakeCollection struct {
	dirty bool
	items []domain.MacroItem
}

func (f fakeCollection) Dirty() bool               { return f.dirty }
func (f fakeCollection) Items() []domain.MacroItem { return f.items }

func sampleItems() []domain.MacroItem {
	it := domain.MacroItem{FileName: `C:\ffxi\USER\0001-SE\mcr3.dat`, FileSize: 7624}
	for i := 0; i < domain.MacrosPerItem; i++ {
		m := domain.Macro{Offset: "0x10", Name: "m"}
		for j := 0; j < domain.LinesPerMacro; j++ {
			m.Lines = append(m.Lines, domain.MacroLine{Offset: "0x20", Data: "/ja Provoke <t>"})
		}
		it.Macros = append(it.Macros, m)
	}
	return []domain.MacroItem{it}
}

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport("", "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "XI Macro Manager Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestDumpUnsavedSkipsCleanCollection(t *testing.T) {
	dir := t.TempDir()
	p, err := dumpUnsaved(dir, fakeCollection{dirty: false, items: sampleItems()})
	if err != nil || p != "" {
		t.Fatalf("clean collection dumped: %q %v", p, err)
	}
	if p, _ := dumpUnsaved(dir, nil); p != "" {
		t.Fatalf("nil collection dumped: %q", p)
	}
}

func TestRecoverWritesReportAndDump(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	dir := filepath.Join(t.TempDir(), "crash")
	src := fakeCollection{dirty: true, items: sampleItems()}
	func() {
		defer Recover(dir, src)
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	var report, dump string
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.Name(), "crash-"):
			report = filepath.Join(dir, e.Name())
		case strings.HasPrefix(e.Name(), "recovery-"):
			dump = filepath.Join(dir, e.Name())
		}
	}
	if report == "" || dump == "" {
		t.Fatalf("missing files in %s: %v", dir, entries)
	}
	got, err := export.ReadArchive(dump)
	if err != nil {
		t.Fatalf("dump is not importable: %v", err)
	}
	if len(got) != 1 || got[0].FileName != src.items[0].FileName {
		t.Fatalf("dump content = %#v", got)
	}
}
