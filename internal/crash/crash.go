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
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"ximacro/internal/domain"
	"ximacro/internal/export"
	applog "ximacro/internal/log"
	"ximacro/internal/telemetry"
	"ximacro/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Collection is the in-memory macro state that may need rescuing.
type Collection interface {
	Dirty() bool
	Items() []domain.MacroItem
}

// Recover captures a panic, logs it with the stack, writes a report file under
// dir and, when src holds unsaved edits, dumps them as an importable archive.
// An empty dir means the OS temp directory.
//
// Usage: defer crash.Recover(dir, sess)
func Recover(dir string, src Collection) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(dir, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if dump, err := dumpUnsaved(dir, src); err != nil {
		l.Error("recovery dump failed", slog.Any("err", err))
	} else if dump != "" {
		l.Info("recovery dump written", slog.String("path", dump))
		_, _ = fmt.Fprintf(os.Stderr, "Unsaved macros were written to: %s\n", dump)
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func reportDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// dumpUnsaved writes the dirty collection to recovery-<stamp>.json; it returns "" when there is nothing to save.
func dumpUnsaved(dir string, src Collection) (string, error) {
	if src == nil || !src.Dirty() {
		return "", nil
	}
	items := src.Items()
	if len(items) == 0 {
		return "", nil
	}
	path := filepath.Join(reportDir(dir), "recovery-"+time.Now().Format("20060102-150405")+".json")
	if err := export.WriteArchive(path, items); err != nil {
		return "", err
	}
	return path, nil
}

func writeReport(dir string, panicVal any, stack []byte) (string, error) {
	path := filepath.Join(reportDir(dir), "crash-"+time.Now().Format("20060102-150405")+".log")

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "XI Macro Manager Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// opt-in via telemetry config
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
