/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"
)

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerPage: 10, MinInterval: 10 * time.Millisecond})
	pg := "mcr1.dat"
	t0 := time.Now()
	m.Record(Snapshot{Page: pg, Blob: []byte("a"), TS: t0})
	m.Record(Snapshot{Page: pg, Blob: []byte("b"), TS: t0.Add(20 * time.Millisecond)})
	if _, pages, total := m.Stats(); pages != 1 || total != 2 {
		t.Fatalf("expected 1 page and 2 snapshots, got pages=%d total=%d", pages, total)
	}
	s, ok := m.Undo(pg, []byte("c"))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
	if !m.CanRedo(pg) {
		t.Fatalf("expected redo history")
	}
	s, ok = m.Redo(pg, []byte("b"))
	if !ok || string(s.Blob) != "c" {
		t.Fatalf("redo expected 'c', got ok=%v blob=%q", ok, string(s.Blob))
	}
	s, ok = m.Undo(pg, []byte("c"))
	if !ok || string(s.Blob) != "b" {
		t.Fatalf("second undo expected 'b', got ok=%v blob=%q", ok, string(s.Blob))
	}
}

func TestRecordClearsRedo(t *testing.T) {
	m := NewManager(Config{MinInterval: -1})
	pg := "mcr2.dat"
	m.Record(Snapshot{Page: pg, Blob: []byte("a"), TS: time.Now()})
	if _, ok := m.Undo(pg, []byte("b")); !ok {
		t.Fatalf("undo failed")
	}
	m.Record(Snapshot{Page: pg, Blob: []byte("a"), TS: time.Now()})
	if m.CanRedo(pg) {
		t.Fatalf("new edit must drop redo history")
	}
}

func TestCoalesceKeepsOldestState(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024 * 1024, MaxPerPage: 10, MinInterval: 50 * time.Millisecond})
	pg := "mcr3.dat"
	t0 := time.Now()
	m.Record(Snapshot{Page: pg, Blob: []byte("1"), TS: t0})
	m.Record(Snapshot{Page: pg, Blob: []byte("2"), TS: t0.Add(10 * time.Millisecond)})
	m.Record(Snapshot{Page: pg, Blob: []byte("3"), TS: t0.Add(40 * time.Millisecond)})
	if _, _, total := m.Stats(); total != 1 {
		t.Fatalf("expected folded to 1 snapshot, got %d", total)
	}
	s, ok := m.Undo(pg, []byte("4"))
	if !ok || string(s.Blob) != "1" {
		t.Fatalf("expected state before the burst '1', got ok=%v blob=%q", ok, string(s.Blob))
	}
}

func TestCaps(t *testing.T) {
	m := NewManager(Config{MaxBytes: 1024, MaxPerPage: 2, MinInterval: -1})
	pg := "mcr4.dat"
	for i := 0; i < 10; i++ {
		m.Record(Snapshot{Page: pg, Blob: []byte("xxxxx"), TS: time.Now()})
	}
	if _, _, total := m.Stats(); total != 2 {
		t.Fatalf("expected MaxPerPage cap to limit to 2, got %d", total)
	}
}

func TestGlobalPruneAcrossPages(t *testing.T) {
	m := NewManager(Config{MaxBytes: 8, MinInterval: -1})
	t0 := time.Now()
	m.Record(Snapshot{Page: "p1", Blob: []byte("xxxx"), TS: t0})
	m.Record(Snapshot{Page: "p2", Blob: []byte("yyyy"), TS: t0.Add(time.Second)})
	m.Record(Snapshot{Page: "p2", Blob: []byte("zzzz"), TS: t0.Add(2 * time.Second)})
	if m.CanUndo("p1") {
		t.Fatalf("expected p1 to have been pruned")
	}
	if !m.CanUndo("p2") {
		t.Fatalf("expected p2 to have snapshots")
	}
}

func TestClearPageAndReset(t *testing.T) {
	m := NewManager(Config{MinInterval: -1})
	m.Record(Snapshot{Page: "a", Blob: []byte("abcdef"), TS: time.Now()})
	m.Record(Snapshot{Page: "b", Blob: []byte("abc"), TS: time.Now()})
	m.ClearPage("a")
	if tb, pages, total := m.Stats(); tb != 3 || pages != 1 || total != 1 {
		t.Fatalf("unexpected stats after clear: tb=%d pages=%d total=%d", tb, pages, total)
	}
	m.Reset()
	if tb, pages, total := m.Stats(); tb != 0 || pages != 0 || total != 0 {
		t.Fatalf("expected zero stats after reset, got tb=%d pages=%d total=%d", tb, pages, total)
	}
}
