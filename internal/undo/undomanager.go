/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps bounded per-page undo/redo histories of opaque page states.
package undo

import (
	"sync"
	"time"
)

// Snapshot is the state of one page before an edit.
// Blob is opaque to the manager and its size is counted as len(Blob).
type Snapshot struct {
	Page string
	Blob []byte
	TS   time.Time

	sealed bool // never folded into
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap across all pages; the oldest entries are pruned when exceeded.
	MaxBytes int
	// MaxPerPage limits the undo depth of one page (0 means unlimited).
	MaxPerPage int
	// MinInterval folds edits on the same page closer than this into one undo step,
	// so typing a line is undone in one go. Zero selects 250ms, negative disables folding.
	MinInterval time.Duration
}

// Manager provides an undo and a redo stack per page. It is safe for concurrent use.
type Manager struct {
	cfg        Config
	mu         sync.Mutex
	undo       map[string][]Snapshot
	redo       map[string][]Snapshot
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Record stores the state of a page as it was before an edit and drops its redo history.
// Within MinInterval of the previous record the older state is kept and only its
// timestamp advances.
func (m *Manager) Record(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearRedoLocked(s.Page)
	stack := m.undo[s.Page]
	if n := len(stack); n > 0 && !stack[n-1].sealed && m.cfg.MinInterval > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		stack[n-1].TS = s.TS
		return
	}
	m.undo[s.Page] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.Page)
}

// Undo returns the previous state of page and remembers current for Redo.
func (m *Manager) Undo(page string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[page]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[page] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	m.redo[page] = append(m.redo[page], Snapshot{Page: page, Blob: current, TS: time.Now()})
	m.totalBytes += len(current)
	return s, true
}

// Redo returns the state undone last and remembers current for Undo.
func (m *Manager) Redo(page string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[page]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[page] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	m.undo[page] = append(m.undo[page], Snapshot{Page: page, Blob: current, TS: time.Now(), sealed: true})
	m.totalBytes += len(current)
	m.enforceCapsLocked(page)
	return s, true
}

// CanUndo reports whether page has undo history.
func (m *Manager) CanUndo(page string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[page]) > 0
}

// CanRedo reports whether page has redo history.
func (m *Manager) CanRedo(page string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[page]) > 0
}

// ClearPage drops both histories of a page.
func (m *Manager) ClearPage(page string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[page] {
		m.totalBytes -= len(s.Blob)
	}
	m.clearRedoLocked(page)
	delete(m.undo, page)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Reset drops all history, e.g. when a new collection is loaded.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = make(map[string][]Snapshot)
	m.redo = make(map[string][]Snapshot)
	m.totalBytes = 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, pages int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, pages, totalSnapshots
}

func (m *Manager) clearRedoLocked(page string) {
	for _, s := range m.redo[page] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, page)
}

func (m *Manager) enforceCapsLocked(page string) {
	if m.cfg.MaxPerPage > 0 {
		stack := m.undo[page]
		if extra := len(stack) - m.cfg.MaxPerPage; extra > 0 {
			for i := 0; i < extra; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[page] = append([]Snapshot{}, stack[extra:]...)
		}
	}
	// global cap: prune the oldest bottom entry across pages
	for m.totalBytes > m.cfg.MaxBytes {
		oldest := ""
		found := false
		var oldestTS time.Time
		for p, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = p, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldest]
		m.totalBytes -= len(stack[0].Blob)
		if len(stack) == 1 {
			delete(m.undo, oldest)
		} else {
			m.undo[oldest] = stack[1:]
		}
	}
}
