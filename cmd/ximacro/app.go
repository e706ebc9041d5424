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
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ximacro/internal/backend"
	"ximacro/internal/bridge"
	"ximacro/internal/config"
	"ximacro/internal/domain"
	applog "ximacro/internal/log"
	"ximacro/internal/session"
	"ximacro/internal/storage"
	"ximacro/internal/telemetry"
	"ximacro/internal/workspace"
)

// sessionRef lets the crash handler reach the session created later by a command.
type sessionRef struct {
	mu sync.Mutex
	s  *session.Session
}

func (r *sessionRef) set(s *session.Session) {
	r.mu.Lock()
	r.s = s
	r.mu.Unlock()
}

func (r *sessionRef) get() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

func (r *sessionRef) Dirty() bool {
	s := r.get()
	return s != nil && s.Dirty()
}

func (r *sessionRef) Items() []domain.MacroItem {
	if s := r.get(); s != nil {
		return s.Items()
	}
	return nil
}

// app wires the state database, bridge, optional mirror and telemetry into a workspace.
type app struct {
	cfg     config.AppConfig
	cfgPath string
	store   *storage.Store
	bridge  *bridge.Bridge
	mirror  *backend.Mirror
	ws      *workspace.Workspace
}

func openApp(ctx context.Context, cfg config.AppConfig, cfgPath string, ref *sessionRef) (*app, error) {
	l := applog.WithOperation(applog.WithComponent("cli"), "open")
	store, err := storage.Open(cfg.Storage.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	dir := cfg.Bridge.Dir()
	br := bridge.New(bridge.Config{
		Export:   bridge.ExecIn(dir, cfg.Bridge.ExportExe),
		Import:   bridge.ExecIn(dir, cfg.Bridge.ImportExe),
		Books:    bridge.ExecIn(dir, cfg.Bridge.BooksExe),
		Launcher: cfg.Bridge.LauncherArgs(),
		Timeout:  cfg.Bridge.Timeout(),
	})
	a := &app{cfg: cfg, cfgPath: cfgPath, store: store, bridge: br}

	opts := workspace.Options{
		Store:         store,
		Bridge:        br,
		Telemetry:     telemetry.Default(),
		Clipboard:     workspace.SystemClipboard{},
		KeepSnapshots: cfg.Storage.KeepSnapshots,
		WriteTimeout:  cfg.Bridge.Timeout(),
	}
	if cfg.Backup.RemoteEnabled {
		if m, err := openMirror(ctx); err != nil {
			l.Warn("remote backup unavailable", slog.Any("err", err))
		} else if m != nil {
			a.mirror = m
			opts.Mirror = m
		}
	}
	ws, err := workspace.New(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ws = ws
	if ref != nil {
		ref.set(ws.Session())
	}
	return a, nil
}

func openMirror(ctx context.Context) (*backend.Mirror, error) {
	dsn, err := config.RemoteDSN()
	if err != nil || dsn == "" {
		return nil, err
	}
	return backend.Open(ctx, dsn)
}

func (a *app) Close() {
	if a.ws != nil {
		_ = a.ws.Close()
	}
	if a.mirror != nil {
		_ = a.mirror.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// character selects name and loads its books and macros.
func (a *app) character(ctx context.Context, name string) (domain.Character, error) {
	c, err := a.ws.SelectCharacter(ctx, name)
	if err != nil {
		return c, err
	}
	return c, a.ws.Load(ctx)
}
