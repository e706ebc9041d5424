/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log configures the process-wide slog logger. Records carry the
// Package log configures the process-wide slog logger. Records carry the
// component and op attributes, and the character folder when the context
// passed to a *Context logging call was tagged with WithFolder.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"ximacro/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization. FromEnv reads:
//   - XIM_LOG_LEVEL=debug|info|warn|error
//   - XIM_LOG_FORMAT=console|json
//   - XIM_LOG_FILE=<path> (rotated JSON file in addition to stderr)
//   - XIM_LOG_SOURCE=true|false
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string
	// Writer replaces stderr for the console output; used by tests.
	Writer io.Writer
}

var (
	mu      sync.RWMutex
	current *slog.Logger
	// level is shared by every handler built by Init, so SetLevel applies at once.
	level = new(slog.LevelVar)
)

// L returns the application logger, initializing it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l == nil {
		Init(FromEnv())
		mu.RLock()
		l = current
		mu.RUnlock()
	}
	return l
}

// Init replaces the application logger and slog.Default.
func Init(opts Options) {
	SetLevel(opts.Level)
	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var sinks tee
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		sinks = append(sinks, slog.NewJSONHandler(out, hopts))
	} else {
		sinks = append(sinks, newLineHandler(out, level, opts.AddSource))
	}
	if f := strings.TrimSpace(opts.File); f != "" {
		rot := &lj.Logger{Filename: f, MaxSize: 5, MaxBackups: 3, MaxAge: 14, Compress: true}
		sinks = append(sinks, slog.NewJSONHandler(rot, hopts))
	}

	var h slog.Handler = sinks
	if len(sinks) == 1 {
		h = sinks[0]
	}
	l := slog.New(folderHandler{h}).With(
		slog.String("app", "ximacro"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	current = l
	mu.Unlock()
	slog.SetDefault(l)
}

// SetLevel changes the minimum level of the running logger. Unknown names mean info.
func SetLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// FromEnv builds Options from XIM_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("XIM_LOG_LEVEL", "info"),
		Format:    getenv("XIM_LOG_FORMAT", "console"),
		AddSource: parseBool(os.Getenv("XIM_LOG_SOURCE")),
		File:      os.Getenv("XIM_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(v), "yes") || strings.EqualFold(strings.TrimSpace(v), "on")
	}
	return b
}

type folderKey struct{}

// WithFolder tags ctx with the character folder being worked on.
func WithFolder(ctx context.Context, folder string) context.Context {
	if folder == "" {
		return ctx
	}
	return context.WithValue(ctx, folderKey{}, folder)
}

// FolderFrom returns the folder tagged by WithFolder, or "".
func FolderFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(folderKey{}).(string)
	return s
}

// WithComponent returns a logger with the component attribute set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation adds the op attribute.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// folderHandler copies the context's folder tag onto each record.
type folderHandler struct{ slog.Handler }

func (f folderHandler) Handle(ctx context.Context, r slog.Record) error {
	if folder := FolderFrom(ctx); folder != "" {
		r = r.Clone()
		r.AddAttrs(slog.String("folder", folder))
	}
	return f.Handler.Handle(ctx, r)
}

func (f folderHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return folderHandler{f.Handler.WithAttrs(attrs)}
}

func (f folderHandler) WithGroup(name string) slog.Handler {
	return folderHandler{f.Handler.WithGroup(name)}
}

// tee sends each record to every handler that accepts its level.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}

// lineHandler writes one human-readable line per record:
//
//	15:04:05.000 INF message key=value group.key=value src=file.go:12
//
// Attributes added with WithAttrs are rendered once, when the handler is derived.
type lineHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	min       slog.Leveler
	addSource bool
	fixed     string // pre-rendered WithAttrs output, leading space included
	group     string // dotted key prefix, trailing dot included
}

func newLineHandler(w io.Writer, min slog.Leveler, addSource bool) *lineHandler {
	if min == nil {
		min = slog.LevelInfo
	}
	return &lineHandler{mu: &sync.Mutex{}, w: w, min: min, addSource: addSource}
}

func (h *lineHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.min.Level()
}

func (h *lineHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(ts.Format("15:04:05.000"))
	sb.WriteByte(' ')
	sb.WriteString(shortLevel(r.Level))
	if r.Message != "" {
		sb.WriteByte(' ')
		sb.WriteString(r.Message)
	}
	sb.WriteString(h.fixed)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.group, a)
		return true
	})
	if h.addSource && r.PC != 0 {
		if fr, _ := runtime.CallersFrames([]uintptr{r.PC}).Next(); fr.File != "" {
			sb.WriteString(" src=" + filepath.Base(fr.File) + ":" + strconv.Itoa(fr.Line))
		}
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var sb strings.Builder
	sb.WriteString(h.fixed)
	for _, a := range attrs {
		writeAttr(&sb, h.group, a)
	}
	c := *h
	c.fixed = sb.String()
	return &c
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.group = h.group + name + "."
	return &c
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(sb, p, ga)
		}
		return
	}
	sb.WriteByte(' ')
	sb.WriteString(prefix)
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(formatValue(a.Value))
}

var levelNames = map[slog.Level]string{
	slog.LevelDebug: "DBG",
	slog.LevelInfo:  "INF",
	slog.LevelWarn:  "WRN",
	slog.LevelError: "ERR",
}

func shortLevel(l slog.Level) string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return l.String()
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return v.String()
	}
}
