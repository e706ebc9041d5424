/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package watch reports changes to macro files made outside the application, e.g. by the
// game client while the character is logged in.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "ximacro/internal/log"
)

// DefaultDebounce groups bursts of file events into one notification.
const DefaultDebounce = 300 * time.Millisecond

// Change lists the macro files touched during one debounce window.
type Change struct {
	Dir   string
	Files []string
}

// Watcher watches one character folder.
type Watcher struct {
	fw       *fsnotify.Watcher
	dir      string
	debounce time.Duration
	notify   func(Change)
	log      *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}

	mu         sync.Mutex
	mutedUntil time.Time
	pending    map[string]bool
	timer      *time.Timer
}

// IsMacroFile reports whether name is a macro page or book file.
func IsMacroFile(name string) bool {
	n := strings.ToLower(filepath.Base(name))
	return strings.HasPrefix(n, "mcr") && (strings.HasSuffix(n, ".dat") || strings.HasSuffix(n, ".ttl"))
}

// Start watches dir until ctx is done or Close is called. notify runs on a timer
// goroutine after debounce of quiet.
func Start(ctx context.Context, dir string, debounce time.Duration, notify func(Change)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		fw:       fw,
		dir:      dir,
		debounce: debounce,
		notify:   notify,
		log:      applog.WithComponent("watch").With(slog.String("dir", dir)),
		cancel:   cancel,
		done:     make(chan struct{}),
		pending:  map[string]bool{},
	}
	go w.loop(ctx)
	return w, nil
}

// Suppress drops events for d, used while the application writes the folder itself.
func (w *Watcher) Suppress(d time.Duration) {
	w.mu.Lock()
	w.mutedUntil = time.Now().Add(d)
	w.pending = map[string]bool{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fw.Close()
	<-w.done
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !IsMacroFile(ev.Name) {
				continue
			}
			w.add(filepath.Base(ev.Name))
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", slog.Any("err", err))
		}
	}
}

func (w *Watcher) add(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if time.Now().Before(w.mutedUntil) {
		return
	}
	w.pending[name] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = map[string]bool{}
	w.mu.Unlock()

	sort.Strings(files)
	w.log.Info("macro files changed on disk", slog.Int("files", len(files)))
	w.notify(Change{Dir: w.dir, Files: files})
}
