/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bridge runs the external macro executables. They are started with an argument
// vector, never through a shell, under a timeout, and their stdout is the result.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ximacro/internal/domain"
	applog "ximacro/internal/log"
)

// DefaultTimeout bounds every executable call.
const DefaultTimeout = 30 * time.Second

// BookFiles are the files under a character folder that hold book names, in display order.
var BookFiles = []string{"mcr.ttl", "mcr_2.ttl"}

var errNotDir = errors.New("not a directory")

// Exec is one external executable. Args are placed before the per-call arguments.
type Exec struct {
	Path string
	Args []string
}

// Config for a Bridge.
type Config struct {
	Export Exec // reads a character folder and prints its macros as JSON
	Import Exec // reads a macro collection as JSON on stdin and writes it to disk
	Books  Exec // prints the book names stored in one book file
	// Launcher is prepended to every command, e.g. ["wine"] to run the Windows
	// executables elsewhere.
	Launcher []string
	Timeout  time.Duration
}

// ExecIn returns an Exec for name inside dir, or name unchanged when it is absolute.
func ExecIn(dir, name string) Exec {
	if dir == "" || filepath.IsAbs(name) {
		return Exec{Path: name}
	}
	return Exec{Path: filepath.Join(dir, name)}
}

// Bridge is safe for concurrent use.
type Bridge struct {
	cfg Config
	log *slog.Logger
	hub hub

	mu          sync.RWMutex
	installPath string
}

// New returns a Bridge for cfg.
func New(cfg Config) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Bridge{cfg: cfg, log: applog.WithComponent("bridge")}
}

// SetInstallPath sets the game install directory used by ReadBooks.
func (b *Bridge) SetInstallPath(p string) {
	b.mu.Lock()
	b.installPath = p
	b.mu.Unlock()
}

// InstallPath returns the configured game install directory.
func (b *Bridge) InstallPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.installPath
}

// ReadMacros runs the export executable on folderPath and returns its trimmed output.
func (b *Bridge) ReadMacros(ctx context.Context, folderPath string) (string, error) {
	const op = "read-macros"
	out, err := b.run(ctx, op, b.cfg.Export, []string{folderPath}, nil)
	if err != nil {
		return "", err
	}
	if out == "" {
		err := &Error{Op: op, Kind: domain.ErrEmptyOutput}
		b.hub.emit(Progress{Op: op, Phase: PhaseFailed, Err: err, Message: err.Error()})
		return "", err
	}
	return out, nil
}

// LoadMacros reads and parses the collection in folderPath.
func (b *Bridge) LoadMacros(ctx context.Context, folderPath string) ([]domain.MacroItem, error) {
	out, err := b.ReadMacros(ctx, folderPath)
	if err != nil {
		return nil, err
	}
	items, err := domain.ParseMacroItems([]byte(out))
	if err != nil {
		return nil, &Error{Op: "read-macros", Kind: domain.ErrParseFailure, Err: err}
	}
	return items, nil
}

// WriteMacros streams the encoded collection to the import executable on stdin and
// returns its trimmed output, which may be empty.
func (b *Bridge) WriteMacros(ctx context.Context, items []domain.MacroItem) (string, error) {
	data, err := domain.EncodeMacroItems(items)
	if err != nil {
		return "", &Error{Op: "write-macros", Kind: domain.ErrParseFailure, Err: err}
	}
	return b.run(ctx, "write-macros", b.cfg.Import, nil, data)
}

// ReadBooks returns the book names of a character folder. Every book file is read by its
// own executable run, concurrently. Names are concatenated in file order with duplicates
// dropped, keeping the first.
func (b *Bridge) ReadBooks(ctx context.Context, folderName string) ([]string, error) {
	const op = "read-books"
	root := b.InstallPath()
	if root == "" {
		return nil, &Error{Op: op, Kind: domain.ErrNotConfigured}
	}
	results := make([][]string, len(BookFiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range BookFiles {
		i, f := i, f
		path := filepath.Join(root, "USER", folderName, f)
		g.Go(func() error {
			out, err := b.run(gctx, op, b.cfg.Books, []string{path}, nil)
			if err != nil {
				return err
			}
			names, err := domain.ParseBookNames([]byte(out))
			if err != nil {
				return &Error{Op: op, Kind: domain.ErrParseFailure, Err: fmt.Errorf("%s: %w", f, err)}
			}
			results[i] = names
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, r := range results {
		for _, n := range r {
			if seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

func (b *Bridge) argv(e Exec, args []string) []string {
	out := make([]string, 0, len(b.cfg.Launcher)+1+len(e.Args)+len(args))
	out = append(out, b.cfg.Launcher...)
	out = append(out, e.Path)
	out = append(out, e.Args...)
	return append(out, args...)
}

func (b *Bridge) run(ctx context.Context, op string, e Exec, args []string, stdin []byte) (string, error) {
	l := applog.WithOperation(b.log, op).With(slog.String("exe", filepath.Base(e.Path)))
	if e.Path == "" {
		err := &Error{Op: op, Kind: domain.ErrNotConfigured, Err: errors.New("executable path not set")}
		b.hub.emit(Progress{Op: op, Phase: PhaseFailed, Err: err, Message: err.Error()})
		return "", err
	}
	start := time.Now()
	b.hub.emit(Progress{Op: op, Phase: PhaseStarted, Message: startMessage(op)})

	tctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	argv := b.argv(e, args)
	cmd := exec.CommandContext(tctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.Cancel = func() error {
		killTree(cmd.Process.Pid)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = 2 * time.Second

	runErr := cmd.Run()
	elapsed := time.Since(start)
	l = l.With(slog.Duration("took", elapsed))

	var err error
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		err = &Error{Op: op, Kind: domain.ErrProcessFailure, Err: ctx.Err()}
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		err = &Error{Op: op, Kind: domain.ErrTimeout,
			Err: fmt.Errorf("operation timed out after %s", b.cfg.Timeout), Stderr: stderr.String()}
	default:
		err = &Error{Op: op, Kind: domain.ErrProcessFailure, Err: runErr, Stderr: stderr.String()}
	}
	if err != nil {
		l.Error("executable failed", slog.Any("err", err))
		b.hub.emit(Progress{Op: op, Phase: PhaseFailed, Err: err, Message: err.Error(), Elapsed: elapsed})
		return "", err
	}
	out := strings.TrimSpace(stdout.String())
	l.Debug("executable finished", slog.Int("bytes", len(out)))
	b.hub.emit(Progress{Op: op, Phase: PhaseFinished, Message: "Done", Elapsed: elapsed})
	return out, nil
}

func startMessage(op string) string {
	switch op {
	case "read-macros":
		return "Loading macros..."
	case "write-macros":
		return "Saving macros..."
	case "read-books":
		return "Loading books..."
	}
	return op
}
