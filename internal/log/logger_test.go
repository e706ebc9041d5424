/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitAndStructuredLoggingToFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "ximacro.log")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, Writer: &console})
	t.Cleanup(func() { Init(Options{Writer: &bytes.Buffer{}}) })

	l := WithOperation(WithComponent("bridge"), "export")
	ctx := WithFolder(context.Background(), "0001-SE")
	l.InfoContext(ctx, "read macros", slog.Int("pages", 3))

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	if m["app"] != "ximacro" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "bridge" || m["op"] != "export" {
		t.Fatalf("context attrs mismatch: %v", m)
	}
	if m["folder"] != "0001-SE" {
		t.Fatalf("folder attr mismatch: %v", m["folder"])
	}
	if !strings.Contains(console.String(), `"msg":"read macros"`) {
		t.Fatalf("console writer not used: %q", console.String())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("XIM_LOG_LEVEL", "warn")
	t.Setenv("XIM_LOG_FORMAT", "json")
	t.Setenv("XIM_LOG_SOURCE", "1")
	t.Setenv("XIM_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("XIM_SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestPrettyTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := newLineHandler(&buf, slog.LevelWarn, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(
		slog.Int("n", 42),
		slog.Float64("pi", 3.14),
		slog.Bool("ok", true),
		slog.String("path", `C:\Program Files`),
		slog.Duration("took", 1500*time.Millisecond),
	)
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR", "boom", "k=v", "grp.n=42", "pi=3.14", "grp.ok=true", `grp.path="C:\\Program Files"`, "took=1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}

func TestFolderFromUntagged(t *testing.T) {
	if f := FolderFrom(context.Background()); f != "" {
		t.Fatalf("FolderFrom = %q", f)
	}
	if ctx := WithFolder(context.Background(), ""); FolderFrom(ctx) != "" {
		t.Fatalf("empty folder should not tag")
	}
}

func TestSetLevelAppliesToRunningLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Writer: &buf})
	t.Cleanup(func() { Init(Options{Writer: &bytes.Buffer{}}) })

	L().Info("hidden")
	SetLevel("debug")
	L().Debug("shown", slog.Group("req", slog.String("id", "a1")))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info logged at warn level: %q", out)
	}
	if !strings.Contains(out, "DBG shown") || !strings.Contains(out, "req.id=a1") {
		t.Fatalf("debug record missing after SetLevel: %q", out)
	}
}

func TestParseBool(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "true": true, "on": true, "yes": true, "0": false, "": false, "nope": false} {
		if got := parseBool(in); got != want {
			t.Fatalf("parseBool(%q) = %v", in, got)
		}
	}
}
